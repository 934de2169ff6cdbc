package availability

import (
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
)

// DefaultHorizon bounds how far ahead recurring week rules are projected.
const DefaultHorizon = 2 * 365 * 24 * time.Hour

type Source string

const (
	SourceDay           Source = "day"
	SourceRecurringDay  Source = "recurring_day"
	SourceWeek          Source = "week"
	SourceRecurringWeek Source = "recurring_week"
	SourceFallback      Source = "fallback"
)

// Resolution is the effective ruling for one date.
type Resolution struct {
	Date       clock.Date    `json:"date"`
	Configured bool          `json:"configured"`
	IsWorking  bool          `json:"is_working"`
	Source     Source        `json:"source,omitempty"`
	Windows    []clock.Range `json:"windows"`
	Breaks     []clock.Range `json:"breaks"`
}

// Contains reports whether t falls inside a working window.
func (r Resolution) Contains(t clock.TimeOfDay) bool {
	for _, w := range r.Windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Fits reports whether rng lies entirely within a single working window.
func (r Resolution) Fits(rng clock.Range) bool {
	for _, w := range r.Windows {
		if w.Covers(rng) {
			return true
		}
	}
	return false
}

type Resolver struct {
	Horizon  time.Duration
	Fallback []clock.Range
}

func NewResolver(horizon time.Duration, fallback []clock.Range) *Resolver {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Resolver{Horizon: horizon, Fallback: fallback}
}

// DefaultFallback is the working day assumed when no rule matches.
func DefaultFallback() []clock.Range {
	return []clock.Range{{Start: clock.MustTime("09:00"), End: clock.MustTime("21:00")}}
}

// Resolve applies rule precedence for date: exact day, recurring day,
// non-recurring week, recurring week, then the fallback. now anchors the
// recurrence horizon.
func (r *Resolver) Resolve(p Profile, date clock.Date, now time.Time) Resolution {
	res := Resolution{Date: date, Configured: true}
	if !p.FirstVisitDate.IsZero() && date.Before(p.FirstVisitDate) {
		res.Configured = false
		return res
	}

	if d, ok := matchExactDay(p.Days, date); ok {
		return ruled(res, SourceDay, d.IsWorking, d.Windows)
	}
	if d, ok := matchRecurringDay(p.Days, date); ok {
		return ruled(res, SourceRecurringDay, d.IsWorking, d.Windows)
	}
	if w, ok := matchWeek(p.Weeks, date); ok {
		return ruled(res, SourceWeek, w.IsWorking, w.Windows)
	}
	if w, ok := matchRecurringWeek(p.Weeks, date, r.horizonEnd(now)); ok {
		return ruled(res, SourceRecurringWeek, w.IsWorking, w.Windows)
	}
	return ruled(res, SourceFallback, true, r.Fallback)
}

func (r *Resolver) horizonEnd(now time.Time) clock.Date {
	h := r.Horizon
	if h <= 0 {
		h = DefaultHorizon
	}
	return clock.DateOf(now.Add(h))
}

func ruled(res Resolution, src Source, working bool, windows []clock.Range) Resolution {
	res.Source = src
	res.IsWorking = working
	if !working {
		return res
	}
	res.Windows = clock.SortRanges(windows)
	res.Breaks = clock.Gaps(res.Windows)
	return res
}

func matchExactDay(days []DayRule, date clock.Date) (DayRule, bool) {
	for _, d := range days {
		if !d.IsRecurring && d.Date == date {
			return d, true
		}
	}
	return DayRule{}, false
}

func matchRecurringDay(days []DayRule, date clock.Date) (DayRule, bool) {
	for _, d := range days {
		if d.IsRecurring && d.Date.Day == date.Day && !date.Before(d.Date) {
			return d, true
		}
	}
	return DayRule{}, false
}

func matchWeek(weeks []WeekRule, date clock.Date) (WeekRule, bool) {
	for _, w := range weeks {
		if w.IsRecurring || w.placeholder() {
			continue
		}
		start, end := w.firstWeek()
		if date.Between(start, end) {
			return w, true
		}
	}
	return WeekRule{}, false
}

// matchRecurringWeek steps each recurring rule forward a week at a time
// until its occurrence starts past the horizon.
func matchRecurringWeek(weeks []WeekRule, date, limit clock.Date) (WeekRule, bool) {
	for _, w := range weeks {
		if !w.IsRecurring || w.placeholder() {
			continue
		}
		start, end := w.firstWeek()
		for !start.After(limit) && !start.After(date) {
			if date.Between(start, end) {
				return w, true
			}
			start, end = start.AddDays(7), end.AddDays(7)
		}
	}
	return WeekRule{}, false
}
