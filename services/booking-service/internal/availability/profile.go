package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
)

var ErrInvalidProfile = errors.New("invalid availability profile")

// DayRule overrides a single calendar date. A recurring rule repeats monthly
// on the same day-of-month, starting at Date.
type DayRule struct {
	Date        clock.Date    `json:"date"`
	IsWorking   bool          `json:"is_working"`
	IsRecurring bool          `json:"is_recurring"`
	Windows     []clock.Range `json:"durations"`
}

// WeekRule covers whole Monday..Sunday weeks from StartDate's week through
// EndDate's week. A recurring rule repeats that span every week.
type WeekRule struct {
	StartDate   clock.Date    `json:"start_date"`
	EndDate     clock.Date    `json:"end_date"`
	IsWorking   bool          `json:"is_working"`
	IsRecurring bool          `json:"is_recurring"`
	Windows     []clock.Range `json:"durations"`
	DefaultWeek bool          `json:"default_week,omitempty"`
}

func (w WeekRule) firstWeek() (clock.Date, clock.Date) {
	return w.StartDate.StartOfWeek(), w.EndDate.EndOfWeek()
}

// placeholder is an untouched default week; it never rules a date.
func (w WeekRule) placeholder() bool {
	return w.DefaultWeek && len(w.Windows) == 0
}

type Profile struct {
	SpecialistID   string     `json:"specialist_id"`
	FirstVisitDate clock.Date `json:"first_visit_date"`
	Days           []DayRule  `json:"days"`
	Weeks          []WeekRule `json:"weeks"`
	Version        int64      `json:"version"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty"`
}

// DefaultProfile seeds a specialist's first week as the synthetic default week.
func DefaultProfile(specialistID string, now time.Time) Profile {
	today := clock.DateOf(now)
	return Profile{
		SpecialistID:   specialistID,
		FirstVisitDate: today.StartOfWeek(),
		Weeks: []WeekRule{{
			StartDate:   today.StartOfWeek(),
			EndDate:     today.EndOfWeek(),
			IsWorking:   true,
			IsRecurring: true,
			DefaultWeek: true,
		}},
	}
}

// DropEmptyDefaultWeek returns a copy without the synthetic default week when
// it was saved with no windows.
func (p Profile) DropEmptyDefaultWeek() Profile {
	out := p
	out.Weeks = make([]WeekRule, 0, len(p.Weeks))
	for _, w := range p.Weeks {
		if w.placeholder() {
			continue
		}
		out.Weeks = append(out.Weeks, w)
	}
	out.Days = append([]DayRule(nil), p.Days...)
	return out
}

// Validate checks the rules a specialist may save. Every problem is reported,
// each wrapping ErrInvalidProfile.
func (p Profile) Validate() error {
	var errs []error
	seen := make(map[clock.Date]bool, len(p.Days))
	for i, d := range p.Days {
		label := fmt.Sprintf("days[%d] %s", i, d.Date)
		if d.Date.IsZero() {
			errs = append(errs, fmt.Errorf("%w: %s: date required", ErrInvalidProfile, label))
		}
		if !d.IsRecurring {
			if seen[d.Date] {
				errs = append(errs, fmt.Errorf("%w: %s: duplicate rule for date", ErrInvalidProfile, label))
			}
			seen[d.Date] = true
		}
		errs = append(errs, validateWindows(label, d.IsWorking, d.Windows)...)
	}
	for i, w := range p.Weeks {
		label := fmt.Sprintf("weeks[%d] %s..%s", i, w.StartDate, w.EndDate)
		switch {
		case w.StartDate.IsZero() || w.EndDate.IsZero():
			errs = append(errs, fmt.Errorf("%w: %s: start and end date required", ErrInvalidProfile, label))
		case w.StartDate.Weekday() != time.Monday || w.EndDate.Weekday() != time.Sunday:
			errs = append(errs, fmt.Errorf("%w: %s: weeks run monday to sunday", ErrInvalidProfile, label))
		case w.EndDate.Before(w.StartDate):
			errs = append(errs, fmt.Errorf("%w: %s: end before start", ErrInvalidProfile, label))
		}
		errs = append(errs, validateWindows(label, w.IsWorking, w.Windows)...)
	}
	return errors.Join(errs...)
}

func validateWindows(label string, working bool, windows []clock.Range) []error {
	var errs []error
	if !working {
		if len(windows) > 0 {
			errs = append(errs, fmt.Errorf("%w: %s: a day off cannot carry working windows", ErrInvalidProfile, label))
		}
		return errs
	}
	if len(windows) == 0 {
		errs = append(errs, fmt.Errorf("%w: %s: working rule needs at least one window", ErrInvalidProfile, label))
		return errs
	}
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, label, err))
		}
	}
	sorted := clock.SortRanges(windows)
	for i := 0; i+1 < len(sorted); i++ {
		// Adjacent windows must leave a gap; a shared endpoint is reported as an overlap.
		if sorted[i+1].Start <= sorted[i].End {
			errs = append(errs, fmt.Errorf("%w: %s: window %s overlaps %s", ErrInvalidProfile, label, sorted[i+1], sorted[i]))
		}
	}
	return errs
}
