package availability

import (
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
)

type WeekSummary struct {
	Start       clock.Date   `json:"start"`
	End         clock.Date   `json:"end"`
	Days        []Resolution `json:"days"`
	WorkingDays int          `json:"working_days"`
}

// Week resolves the Monday..Sunday week containing date.
func (r *Resolver) Week(p Profile, date clock.Date, now time.Time) WeekSummary {
	start := date.StartOfWeek()
	out := WeekSummary{Start: start, End: start.AddDays(6), Days: make([]Resolution, 0, 7)}
	for i := 0; i < 7; i++ {
		res := r.Resolve(p, start.AddDays(i), now)
		if res.Configured && res.IsWorking {
			out.WorkingDays++
		}
		out.Days = append(out.Days, res)
	}
	return out
}
