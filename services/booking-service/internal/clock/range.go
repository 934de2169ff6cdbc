package clock

import (
	"fmt"
	"sort"
)

// Range is a half-open [Start, End) span within one day.
type Range struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func NewRange(start, end TimeOfDay) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

func (r Range) Validate() error {
	if !r.Start.Valid() || r.End <= 0 || r.End > EndOfDay {
		return fmt.Errorf("range %s out of day bounds", r)
	}
	if r.Start >= r.End {
		return fmt.Errorf("range %s: start must be before end", r)
	}
	return nil
}

func (r Range) Minutes() int { return int(r.End - r.Start) }

func (r Range) Contains(t TimeOfDay) bool { return t >= r.Start && t < r.End }

// Covers reports whether o lies entirely inside r.
func (r Range) Covers(o Range) bool { return o.Start >= r.Start && o.End <= r.End }

func (r Range) Overlaps(o Range) bool { return RangesOverlap(r.Start, r.End, o.Start, o.End) }

func (r Range) String() string { return r.Start.String() + "-" + r.End.String() }

// SortRanges returns a start-ordered copy.
func SortRanges(in []Range) []Range {
	out := make([]Range, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Gaps returns the holes between consecutive sorted ranges.
func Gaps(sorted []Range) []Range {
	var gaps []Range
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i+1].Start > sorted[i].End {
			gaps = append(gaps, Range{Start: sorted[i].End, End: sorted[i+1].Start})
		}
	}
	return gaps
}
