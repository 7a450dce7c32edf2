package gate

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
	"github.com/rcliao/timeblock/internal/scheduler"
)

var errNoSchedule = errors.New("pipeline returned no schedule")

// universal holds the assertions every successful scenario must satisfy.
var universal = []Assertion{
	{Name: "deterministic", Check: checkDeterministic},
	{Name: "no overlap", Check: checkNoOverlap},
	{Name: "within horizon", Check: checkWithinHorizon},
	{Name: "session bounds", Check: checkSessionBounds},
	{Name: "no silent overcommit", Check: checkNoOvercommit},
}

// assertionsFor picks what to evaluate for one outcome. A scenario that
// expects a failure is only checked for that failure; an unexpected
// failure is reported once instead of failing every schedule check.
func assertionsFor(sc *Scenario, o *Outcome) []Assertion {
	if sc.WantErr != nil {
		return []Assertion{failsWith(sc.WantErr)}
	}
	if o.Err != nil || o.Schedule == nil {
		return []Assertion{{Name: "pipeline succeeds", Check: func(_ *Scenario, o *Outcome) error {
			if o.Err != nil {
				return o.Err
			}
			return errNoSchedule
		}}}
	}
	out := make([]Assertion, 0, len(sc.Assertions)+len(universal))
	out = append(out, sc.Assertions...)
	return append(out, universal...)
}

func failsWith(want error) Assertion {
	return Assertion{
		Name: fmt.Sprintf("fails with %q and no schedule", want),
		Check: func(_ *Scenario, o *Outcome) error {
			if !errors.Is(o.Err, want) {
				return fmt.Errorf("got error %v", o.Err)
			}
			if o.Schedule != nil {
				return fmt.Errorf("schedule emitted: %s", describeBlocks(o.Schedule.Blocks()))
			}
			return nil
		},
	}
}

func checkDeterministic(_ *Scenario, o *Outcome) error {
	if o.RerunErr != nil {
		return fmt.Errorf("second run failed: %w", o.RerunErr)
	}
	if !reflect.DeepEqual(o.Schedule, o.Rerun) {
		return fmt.Errorf("runs differ:\n  first: %s\n  second: %s",
			describeBlocks(o.Schedule.Blocks()), describeBlocks(o.Rerun.Blocks()))
	}
	return nil
}

func checkNoOverlap(_ *Scenario, o *Outcome) error {
	return scheduler.ResolveFinal(o.Schedule.Fixed, o.Schedule)
}

func checkWithinHorizon(sc *Scenario, o *Outcome) error {
	h := sc.Input.Horizon
	for _, b := range o.Schedule.Blocks() {
		if !h.Contains(b.Interval()) {
			return fmt.Errorf("%s %s outside horizon %s", b.ID, describe(b.Interval()), describe(h))
		}
		if b.Start.Before(sc.Now) {
			return fmt.Errorf("%s starts before now (%s)", b.ID, sc.Now.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func checkSessionBounds(sc *Scenario, o *Outcome) error {
	c, err := constraints(sc)
	if err != nil {
		return err
	}
	pending := make(map[string]model.Task, len(c.Pending))
	for _, t := range c.Pending {
		pending[t.ID] = t
	}
	for _, p := range o.Schedule.Placements {
		t, ok := pending[p.TaskID]
		if !ok {
			return fmt.Errorf("%s placed for task %q that was not pending", p.Block.ID, p.TaskID)
		}
		minD, maxD, err := scheduler.SessionBounds(t, c.Policy)
		if err != nil {
			return fmt.Errorf("%s placed for invalid task: %w", p.Block.ID, err)
		}
		if d := p.Block.Duration(); d < minD || d > maxD {
			return fmt.Errorf("%s lasts %s, bounds [%s, %s]", p.Block.ID, d, minD, maxD)
		}
	}
	return nil
}

func checkNoOvercommit(sc *Scenario, o *Outcome) error {
	c, err := constraints(sc)
	if err != nil {
		return err
	}
	capacity := model.TotalDuration(c.Free)
	var demand time.Duration
	flagged := false
	for _, t := range c.Pending {
		demand += t.Estimate()
		if placed := o.Schedule.PlacedDuration(t.ID); placed > t.Estimate() {
			return fmt.Errorf("%s placed %s of %s", t.ID, placed, t.Estimate())
		}
		if _, ok := o.Schedule.Outcome(t.ID); ok {
			flagged = true
		}
	}
	if placed := model.TotalDuration(intervals(o.Schedule.Blocks())); placed > capacity {
		return fmt.Errorf("placed %s with only %s free", placed, capacity)
	}
	if demand > capacity && !flagged {
		return fmt.Errorf("demand %s exceeds capacity %s but no task is flagged", demand, capacity)
	}
	return nil
}

// constraints recomputes what the allocator saw for a scenario.
func constraints(sc *Scenario) (*scheduler.Constraints, error) {
	n, err := normalize.ForPolicy(sc.Input.Policy)
	if err != nil {
		return nil, err
	}
	blocks, _ := n.NormalizeAll(sc.Input.Records)
	return scheduler.Collect(scheduler.CollectInput{
		UserID:  sc.Input.UserID,
		Horizon: sc.Input.Horizon,
		Policy:  sc.Input.Policy,
		Now:     sc.Now,
		Blocks:  blocks,
		Tasks:   sc.Input.Tasks,
	})
}
