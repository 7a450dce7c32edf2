package model

import (
	"sort"
	"time"
)

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the interval, or zero if it is empty.
func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Empty reports whether the interval has no length.
func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether two intervals share any instant. Touching
// intervals ([a,b) and [b,c)) do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether o lies entirely within iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Intersect returns the overlap of two intervals. The result may be empty.
func (iv Interval) Intersect(o Interval) Interval {
	out := Interval{Start: iv.Start, End: iv.End}
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	if out.End.Before(out.Start) {
		out.End = out.Start
	}
	return out
}

// SortIntervals orders intervals by start, then end.
func SortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].End.Before(ivs[j].End)
	})
}

// MergeIntervals returns the sorted union of ivs with empty spans removed.
// Touching intervals are joined.
func MergeIntervals(ivs []Interval) []Interval {
	cp := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Empty() {
			cp = append(cp, iv)
		}
	}
	SortIntervals(cp)

	var out []Interval
	for _, iv := range cp {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractIntervals removes every span in cut from base. base need not be
// sorted; the result is sorted, merged and free of empty spans.
func SubtractIntervals(base, cut []Interval) []Interval {
	cur := MergeIntervals(base)
	for _, c := range MergeIntervals(cut) {
		next := make([]Interval, 0, len(cur)+1)
		for _, iv := range cur {
			if !iv.Overlaps(c) {
				next = append(next, iv)
				continue
			}
			if c.Start.After(iv.Start) {
				next = append(next, Interval{Start: iv.Start, End: c.Start})
			}
			if c.End.Before(iv.End) {
				next = append(next, Interval{Start: c.End, End: iv.End})
			}
		}
		cur = next
	}
	return cur
}

// TotalDuration sums the lengths of ivs.
func TotalDuration(ivs []Interval) time.Duration {
	var d time.Duration
	for _, iv := range ivs {
		d += iv.Duration()
	}
	return d
}
