package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

// CollectInput is everything the collector needs for one user and horizon.
type CollectInput struct {
	UserID  string
	Horizon model.Interval
	Policy  model.Policy
	Now     time.Time
	Blocks  []model.Timeblock
	Tasks   []model.Task
}

// Constraints is the collector's output: what is fixed, what needs
// placement, and where it can go.
type Constraints struct {
	UserID  string
	Horizon model.Interval
	Policy  model.Policy
	Now     time.Time

	Fixed    []model.Timeblock
	Pending  []model.Task
	Excluded []model.Unplaced
	Free     []model.Interval

	// Superseded counts movable task blocks from a previous run that this
	// run will recompute.
	Superseded int

	// TakenIDs holds the ids of every fixed block in the input, inside the
	// horizon or not. New placements must not reuse them.
	TakenIDs map[string]bool
}

// Collect partitions blocks and tasks and computes the free-capacity set.
func Collect(in CollectInput) (*Constraints, error) {
	if in.Horizon.Empty() {
		return nil, &model.ValidationError{Field: "horizon", Msg: "must have positive length"}
	}
	if err := in.Policy.Validate(); err != nil {
		return nil, err
	}

	c := &Constraints{
		UserID:  in.UserID,
		Horizon: in.Horizon,
		Policy:  in.Policy,
		Now:     in.Now,

		TakenIDs: make(map[string]bool),
	}

	pinned := make(map[string]time.Duration)
	for _, b := range in.Blocks {
		if !b.Fixed() {
			c.Superseded++
			continue
		}
		c.TakenIDs[b.ID] = true
		// Pinned sessions count toward their task wherever they sit.
		if b.Source == model.SourceTask && b.TaskID != "" {
			pinned[b.TaskID] += b.Duration()
		}
		if !b.Interval().Overlaps(in.Horizon) && !(b.Duration() == 0 && in.Horizon.Contains(b.Interval())) {
			continue
		}
		c.Fixed = append(c.Fixed, b)
	}
	model.SortBlocks(c.Fixed)

	seen := make(map[string]bool, len(in.Tasks))
	for _, t := range in.Tasks {
		if err := t.Validate(); err != nil {
			c.Excluded = append(c.Excluded, model.Unplaced{
				TaskID: t.ID, Reason: model.ReasonInvalid,
				RemainingMinutes: minutes(t.Estimate()), Detail: err.Error(),
			})
			continue
		}
		if seen[t.ID] {
			c.Excluded = append(c.Excluded, model.Unplaced{
				TaskID: t.ID, Reason: model.ReasonInvalid,
				RemainingMinutes: minutes(t.Estimate()), Detail: "duplicate task id",
			})
			continue
		}
		seen[t.ID] = true

		if detail, out := outOfHorizon(t, in.Horizon); out {
			c.Excluded = append(c.Excluded, model.Unplaced{
				TaskID: t.ID, Reason: model.ReasonOutOfHorizon,
				RemainingMinutes: minutes(t.Estimate()), Detail: detail,
			})
			continue
		}

		if done := pinned[t.ID]; done > 0 {
			if done >= t.Estimate() {
				continue
			}
			t.EstimatedDuration = model.Duration(t.Estimate() - done)
			// A pinned share can leave less than the task's own minimum.
			if t.MinSessionMinutes > 0 && time.Duration(t.MinSessionMinutes)*time.Minute > t.Estimate() {
				t.MinSessionMinutes = minutes(t.Estimate())
			}
		}
		c.Pending = append(c.Pending, t)
	}
	sort.SliceStable(c.Excluded, func(i, j int) bool { return c.Excluded[i].TaskID < c.Excluded[j].TaskID })

	free, err := FreeCapacity(in.Policy, in.Horizon, in.Now, c.Fixed)
	if err != nil {
		return nil, err
	}
	c.Free = free
	return c, nil
}

// outOfHorizon reports tasks that cannot have any session in h: the
// earliest start is at or after the horizon end, or the deadline is at or
// before the horizon start. A deadline past the horizon end does not
// exclude the task; it is placed inside the horizon like any other.
func outOfHorizon(t model.Task, h model.Interval) (string, bool) {
	if t.EarliestStart != nil && !t.EarliestStart.Before(h.End) {
		return fmt.Sprintf("earliest start %s is at or after horizon end %s",
			t.EarliestStart.UTC().Format(time.RFC3339), h.End.UTC().Format(time.RFC3339)), true
	}
	if t.Deadline != nil && !t.Deadline.After(h.Start) {
		return fmt.Sprintf("deadline %s is at or before horizon start %s",
			t.Deadline.UTC().Format(time.RFC3339), h.Start.UTC().Format(time.RFC3339)), true
	}
	return "", false
}

// FreeCapacity returns the work-hour time inside the horizon, after now,
// that is not covered by a blackout or a fixed block.
func FreeCapacity(p model.Policy, horizon model.Interval, now time.Time, fixed []model.Timeblock) ([]model.Interval, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}

	open := horizon
	if !now.IsZero() && now.After(open.Start) {
		open.Start = now
	}
	if open.Empty() {
		return nil, nil
	}

	var windows []model.Interval
	local := open.Start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for day.Before(open.End) {
		for _, w := range p.WorkHours[day.Weekday()] {
			iv := model.Interval{Start: clockOn(day, w.Start), End: clockOn(day, w.End)}.Intersect(open)
			if !iv.Empty() {
				windows = append(windows, model.Interval{Start: iv.Start.UTC(), End: iv.End.UTC()})
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	cut := make([]model.Interval, 0, len(p.Blackouts)+len(fixed))
	cut = append(cut, p.Blackouts...)
	for _, b := range fixed {
		cut = append(cut, b.Interval())
	}
	return model.SubtractIntervals(windows, cut), nil
}

// clockOn resolves a wall-clock time on a local day. Going through
// time.Date keeps DST transitions right.
func clockOn(day time.Time, c model.ClockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}
