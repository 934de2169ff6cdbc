package conflict

import (
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

const (
	DefaultDuration    = 60
	DefaultMinDuration = 15
	DefaultMaxDuration = 240
)

type Candidate struct {
	Date            clock.Date      `json:"date"`
	Start           clock.TimeOfDay `json:"start"`
	DurationMinutes int             `json:"duration"`
}

func (c Candidate) Range() clock.Range {
	return clock.Range{Start: c.Start, End: c.Start.Add(c.DurationMinutes)}
}

type Policy struct {
	MinDuration int
	MaxDuration int
	// RequireFullFit demands the whole appointment sit inside one working
	// window instead of only its start.
	RequireFullFit bool
}

func DefaultPolicy() Policy {
	return Policy{MinDuration: DefaultMinDuration, MaxDuration: DefaultMaxDuration}
}

type Detector struct {
	policy Policy
}

func NewDetector(p Policy) *Detector {
	if p.MinDuration <= 0 {
		p.MinDuration = DefaultMinDuration
	}
	if p.MaxDuration < p.MinDuration {
		p.MaxDuration = DefaultMaxDuration
	}
	return &Detector{policy: p}
}

func (d *Detector) Policy() Policy { return d.policy }

// Validate runs the checks in order and returns the first failure.
// res must be the resolution for c.Date; booked holds that date's ledger slots.
func (d *Detector) Validate(c Candidate, res availability.Resolution, booked []model.LedgerSlot, now time.Time) Verdict {
	if c.Date.IsZero() || !res.Configured || res.Date != c.Date || c.Date.Before(clock.DateOf(now)) {
		return Reject(InvalidDate)
	}
	if c.DurationMinutes < d.policy.MinDuration || c.DurationMinutes > d.policy.MaxDuration {
		return Reject(DurationOutOfRange)
	}
	if clock.ExceedsDayBoundary(c.Start, c.DurationMinutes) {
		return Reject(DurationExceedsDayLimit)
	}
	if clock.IsPast(c.Start, c.Date, now) {
		return Reject(SlotInPast)
	}
	if !res.IsWorking {
		return Reject(NonWorkingDay)
	}
	if !d.withinHours(c, res) {
		return Reject(OutsideWorkingHours)
	}
	for _, b := range booked {
		if clock.RangesOverlap(c.Start, c.Start.Add(c.DurationMinutes), b.Start, b.End) {
			return Reject(SlotAlreadyBooked)
		}
	}
	return Accept()
}

func (d *Detector) withinHours(c Candidate, res availability.Resolution) bool {
	if d.policy.RequireFullFit {
		return res.Fits(c.Range())
	}
	return res.Contains(c.Start)
}
