package slots

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// TimeSlot is a render-only projection; it is never persisted.
type TimeSlot struct {
	Time     clock.TimeOfDay `json:"time"`
	IsBooked bool            `json:"is_booked"`
	IsPassed bool            `json:"is_passed"`
}

// Grid is the bookable day: starts from DayStart through DayEnd inclusive, Step minutes apart.
type Grid struct {
	DayStart clock.TimeOfDay
	DayEnd   clock.TimeOfDay
	Step     int
}

func DefaultGrid() Grid {
	return Grid{DayStart: clock.MustTime("09:00"), DayEnd: clock.MustTime("21:00"), Step: 60}
}

// CustomGrid covers the whole day in half-hour steps for the ad-hoc slot picker.
func CustomGrid() Grid {
	return Grid{DayStart: 0, DayEnd: clock.EndOfDay, Step: 30}
}

func (g Grid) starts() []clock.TimeOfDay {
	if g.Step <= 0 || g.DayEnd < g.DayStart {
		return nil
	}
	var out []clock.TimeOfDay
	for t := g.DayStart; t <= g.DayEnd && t < clock.EndOfDay; t = t.Add(g.Step) {
		out = append(out, t)
	}
	return out
}

// Generate lists the grid for date. booked holds that date's ledger slots.
func Generate(g Grid, date clock.Date, booked []model.LedgerSlot, now time.Time) []TimeSlot {
	starts := g.starts()
	out := make([]TimeSlot, 0, len(starts))
	for _, t := range starts {
		out = append(out, TimeSlot{
			Time:     t,
			IsBooked: IsBooked(t, booked),
			IsPassed: clock.IsPast(t, date, now),
		})
	}
	return out
}

// IsBooked reports whether t falls in [b.Start, b.Start+b.Duration) for any booked slot.
func IsBooked(t clock.TimeOfDay, booked []model.LedgerSlot) bool {
	for _, b := range booked {
		if t >= b.Start && t < b.Start.Add(b.Duration) {
			return true
		}
	}
	return false
}

// Insert returns a new ordered list including s. It reports false, leaving
// the list as is, when a slot already starts at s.Time.
func Insert(list []TimeSlot, s TimeSlot) ([]TimeSlot, bool) {
	i := sort.Search(len(list), func(i int) bool { return list[i].Time >= s.Time })
	if i < len(list) && list[i].Time == s.Time {
		return list, false
	}
	out := make([]TimeSlot, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, s)
	out = append(out, list[i:]...)
	return out, true
}

// Probes splits the grid's day into size-minute windows for calendar rendering.
func Probes(g Grid, size int) []clock.Range {
	if size <= 0 {
		return nil
	}
	var out []clock.Range
	for t := g.DayStart; t < g.DayEnd && t < clock.EndOfDay; t = t.Add(size) {
		end := t.Add(size)
		if end > clock.EndOfDay {
			end = clock.EndOfDay
		}
		out = append(out, clock.Range{Start: t, End: end})
	}
	return out
}

// Free returns the starts, step minutes apart inside each window, where a
// booking of the given duration fits its window without touching booked time
// and has not already passed.
func Free(windows []clock.Range, duration, step int, date clock.Date, booked []model.LedgerSlot, now time.Time) []clock.TimeOfDay {
	if duration <= 0 || step <= 0 {
		return nil
	}
	var out []clock.TimeOfDay
	for _, w := range clock.SortRanges(windows) {
		for t := w.Start; t.Add(duration) <= w.End; t = t.Add(step) {
			if clock.IsPast(t, date, now) {
				continue
			}
			if !overlapsAny(t, t.Add(duration), booked) {
				out = append(out, t)
			}
		}
	}
	return out
}

func overlapsAny(start, end clock.TimeOfDay, booked []model.LedgerSlot) bool {
	for _, b := range booked {
		if clock.RangesOverlap(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}
