package clock

import (
	"fmt"
	"time"
)

const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time stored as minutes since midnight.
// Valid clock values are 0..1439; EndOfDay (24:00) may only close a range.
type TimeOfDay int

const EndOfDay TimeOfDay = MinutesPerDay

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay accepts "HH:mm" (24-hour) and "24:00".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return NewTimeOfDay(h, m)
}

// MustTime is ParseTimeOfDay for literals.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether t is a real clock time (not the 24:00 sentinel).
func (t TimeOfDay) Valid() bool { return t >= 0 && t < EndOfDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

func (t TimeOfDay) MarshalText() ([]byte, error) {
	if t < 0 || t > EndOfDay {
		return nil, fmt.Errorf("time of day out of range: %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// AddMinutes wraps within one day. Callers that care about crossing midnight
// check ExceedsDayBoundary first.
func AddMinutes(t TimeOfDay, minutes int) TimeOfDay {
	v := (int(t) + minutes) % MinutesPerDay
	if v < 0 {
		v += MinutesPerDay
	}
	return TimeOfDay(v)
}

func ExceedsDayBoundary(start TimeOfDay, durationMinutes int) bool {
	return int(start)+durationMinutes > MinutesPerDay
}

// RangesOverlap treats both ranges as half-open; touching endpoints do not overlap.
func RangesOverlap(startA, endA, startB, endB TimeOfDay) bool {
	return !(endA <= startB || startA >= endB)
}

// IsPast is true only for today's date, when t is strictly before now's clock time.
func IsPast(t TimeOfDay, d Date, now time.Time) bool {
	if d != DateOf(now) {
		return false
	}
	return d.At(t, now.Location()).Before(now)
}
