package model

import "github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"

// LedgerSlot is one booked sub-range. Start+Duration always equals End.
type LedgerSlot struct {
	Start    clock.TimeOfDay `json:"start_time"`
	End      clock.TimeOfDay `json:"end_time"`
	Duration int             `json:"duration"`
}

func (s LedgerSlot) Range() clock.Range { return clock.Range{Start: s.Start, End: s.End} }

type BookedDay struct {
	Date  clock.Date   `json:"date"`
	Slots []LedgerSlot `json:"slots"`
}

// Ledger is a specialist's booked time, one entry per date with bookings.
type Ledger struct {
	SpecialistID string      `json:"specialist_id"`
	Days         []BookedDay `json:"days"`
	Version      int64       `json:"version"`
}

// For returns the slots booked on date. The returned slice is shared; do not modify it.
func (l Ledger) For(date clock.Date) []LedgerSlot {
	for _, d := range l.Days {
		if d.Date == date {
			return d.Slots
		}
	}
	return nil
}

// Clone deep-copies the day entries.
func (l Ledger) Clone() Ledger {
	out := l
	out.Days = make([]BookedDay, len(l.Days))
	for i, d := range l.Days {
		out.Days[i] = BookedDay{Date: d.Date, Slots: append([]LedgerSlot(nil), d.Slots...)}
	}
	return out
}
