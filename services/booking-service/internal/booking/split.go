package booking

import (
	"sort"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// SplitMinutes is the size of one ledger record.
const SplitMinutes = 60

// Split cuts a candidate into consecutive hour-long ledger slots from its
// start; the last one is clipped to the candidate's end.
func Split(c conflict.Candidate) []model.LedgerSlot {
	if c.DurationMinutes <= 0 {
		return nil
	}
	end := c.Start.Add(c.DurationMinutes)
	out := make([]model.LedgerSlot, 0, (c.DurationMinutes+SplitMinutes-1)/SplitMinutes)
	for s := c.Start; s < end; s = s.Add(SplitMinutes) {
		e := s.Add(SplitMinutes)
		if e > end {
			e = end
		}
		out = append(out, model.LedgerSlot{Start: s, End: e, Duration: int(e - s)})
	}
	return out
}

// Commit returns a new ledger with the candidate's slots merged into its
// date entry. The input ledger is left untouched.
func Commit(c conflict.Candidate, ledger model.Ledger) model.Ledger {
	out := ledger.Clone()
	idx := -1
	for i, d := range out.Days {
		if d.Date == c.Date {
			idx = i
			break
		}
	}
	if idx < 0 {
		out.Days = append(out.Days, model.BookedDay{Date: c.Date})
		idx = len(out.Days) - 1
	}

	day := &out.Days[idx]
	for _, s := range Split(c) {
		if containsSlot(day.Slots, s) {
			continue
		}
		day.Slots = append(day.Slots, s)
	}

	sort.SliceStable(out.Days, func(i, j int) bool { return out.Days[i].Date.Before(out.Days[j].Date) })
	return out
}

func containsSlot(slots []model.LedgerSlot, s model.LedgerSlot) bool {
	for _, x := range slots {
		if x == s {
			return true
		}
	}
	return false
}

// Covered sums the minutes held by a day's slots, counting overlaps once.
func Covered(slots []model.LedgerSlot) int {
	ranges := make([]clock.Range, 0, len(slots))
	for _, s := range slots {
		ranges = append(ranges, s.Range())
	}
	total := 0
	var cur *clock.Range
	for _, r := range clock.SortRanges(ranges) {
		if cur != nil && r.Start <= cur.End {
			if r.End > cur.End {
				total += int(r.End - cur.End)
				cur.End = r.End
			}
			continue
		}
		r := r
		cur = &r
		total += r.Minutes()
	}
	return total
}
