package scheduler

import (
	"github.com/rcliao/timeblock/internal/model"
)

// ResolveFixed orders fixed blocks by start and rejects overlaps between
// timed blocks of the same source. Overlap across sources is expected; the
// collector subtracts all fixed time from free capacity. All-day blocks
// carry day boundaries rather than precise instants and are not checked.
func ResolveFixed(blocks []model.Timeblock) ([]model.Timeblock, error) {
	out := make([]model.Timeblock, len(blocks))
	copy(out, blocks)
	model.SortBlocks(out)

	// Per source, the timed block that reaches furthest so far.
	last := make(map[model.Source]model.Timeblock)
	for _, b := range out {
		if b.IsAllDay {
			continue
		}
		if prev, ok := last[b.Source]; ok && prev.Interval().Overlaps(b.Interval()) {
			return nil, &model.OverlapError{A: prev, B: b}
		}
		if prev, ok := last[b.Source]; !ok || b.End.After(prev.End) {
			last[b.Source] = b
		}
	}
	return out, nil
}

// ResolveFinal re-checks an allocated schedule: every placement must have
// positive length and must not overlap another placement or a fixed block.
// A failure here is an allocator defect, never bad input.
func ResolveFinal(fixed []model.Timeblock, s *model.Schedule) error {
	if s == nil {
		return nil
	}
	placed := s.Blocks()
	model.SortBlocks(placed)

	for i, b := range placed {
		if !b.End.After(b.Start) {
			return &model.InvariantViolation{Msg: "placement has no length", A: b}
		}
		if i > 0 && placed[i-1].Interval().Overlaps(b.Interval()) {
			prev := placed[i-1]
			return &model.InvariantViolation{Msg: "placements overlap", A: b, B: &prev}
		}
	}

	fx := make([]model.Timeblock, len(fixed))
	copy(fx, fixed)
	model.SortBlocks(fx)

	// Both lists are sorted by start: sweep them together.
	j := 0
	for _, b := range placed {
		for j < len(fx) && !fx[j].End.After(b.Start) {
			j++
		}
		for k := j; k < len(fx) && fx[k].Start.Before(b.End); k++ {
			if fx[k].Interval().Overlaps(b.Interval()) {
				f := fx[k]
				return &model.InvariantViolation{Msg: "placement overlaps fixed block", A: b, B: &f}
			}
		}
	}
	return nil
}
