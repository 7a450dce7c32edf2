package model

import (
	"testing"
	"time"
)

var day0 = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func iv(h1, h2 int) Interval {
	return Interval{Start: day0.Add(time.Duration(h1) * time.Hour), End: day0.Add(time.Duration(h2) * time.Hour)}
}

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		a, b Interval
		want bool
	}{
		{iv(9, 10), iv(10, 11), false},
		{iv(9, 11), iv(10, 12), true},
		{iv(9, 12), iv(10, 11), true},
		{iv(9, 9), iv(9, 10), false},
	}
	for _, tt := range tests {
		if got := tt.a.Overlaps(tt.b); got != tt.want {
			t.Errorf("%v overlaps %v: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMergeIntervals(t *testing.T) {
	got := MergeIntervals([]Interval{iv(13, 14), iv(9, 10), iv(10, 11), iv(12, 12), iv(9, 10)})
	want := []Interval{iv(9, 11), iv(13, 14)}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("interval %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSubtractIntervals(t *testing.T) {
	got := SubtractIntervals([]Interval{iv(9, 17)}, []Interval{iv(10, 11), iv(12, 14), iv(16, 18)})
	want := []Interval{iv(9, 10), iv(11, 12), iv(14, 16)}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("interval %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if d := TotalDuration(got); d != 4*time.Hour {
		t.Errorf("expected 4h free, got %v", d)
	}
}

func TestIntersect(t *testing.T) {
	if got := iv(9, 12).Intersect(iv(11, 14)); got != iv(11, 12) {
		t.Errorf("expected 11-12, got %v", got)
	}
	if got := iv(9, 10).Intersect(iv(11, 12)); !got.Empty() {
		t.Errorf("expected empty intersection, got %v", got)
	}
}
