// Package gate runs the acceptance scenario battery against the scheduling
// pipeline. It is a release gate: every scenario runs, every assertion is
// evaluated, and the aggregate pass/fail decides the process exit code.
package gate

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	// Embedded zone data for scenarios that use IANA timezones.
	_ "time/tzdata"

	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/scheduler"
)

// DefaultBudget bounds a whole gate run.
const DefaultBudget = 30 * time.Second

// Options configures a Gate.
type Options struct {
	// Budget is the wall-clock limit for the whole run. Zero means DefaultBudget.
	Budget time.Duration
	// Sequential runs scenarios one at a time instead of in parallel.
	Sequential bool
	// Scenarios overrides the built-in catalogue.
	Scenarios []Scenario
}

// Gate executes a scenario battery.
type Gate struct {
	log        logging.Logger
	budget     time.Duration
	sequential bool
	scenarios  []Scenario
}

// New creates a Gate.
func New(log logging.Logger, opts Options) *Gate {
	g := &Gate{
		log:        log,
		budget:     opts.Budget,
		sequential: opts.Sequential,
		scenarios:  opts.Scenarios,
	}
	if g.budget <= 0 {
		g.budget = DefaultBudget
	}
	if g.scenarios == nil {
		g.scenarios = Scenarios()
	}
	return g
}

// Run executes every scenario and aggregates the results. It never stops
// at the first failure. Scenarios still running when the budget expires
// are reported as failed and the report is marked timed out.
func (g *Gate) Run(ctx context.Context) Report {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	var mu sync.Mutex
	results := make([]*ScenarioResult, len(g.scenarios))
	record := func(i int, r ScenarioResult) {
		mu.Lock()
		results[i] = &r
		mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if g.sequential {
			for i := range g.scenarios {
				if ctx.Err() != nil {
					return
				}
				record(i, g.runScenario(ctx, &g.scenarios[i]))
			}
			return
		}
		var wg sync.WaitGroup
		for i := range g.scenarios {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				record(i, g.runScenario(ctx, &g.scenarios[i]))
			}(i)
		}
		wg.Wait()
	}()

	timedOut := false
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		default:
			timedOut = true
		}
	}

	mu.Lock()
	defer mu.Unlock()

	rep := Report{
		Passed:    !timedOut,
		TimedOut:  timedOut,
		StartedAt: started.UTC(),
		Elapsed:   time.Since(started),
		Scenarios: make([]ScenarioResult, len(g.scenarios)),
	}
	for i, r := range results {
		if r == nil {
			r = &ScenarioResult{
				Name: g.scenarios[i].Name,
				Failures: []Failure{{
					Assertion: "budget",
					Detail:    fmt.Sprintf("did not finish within %s: %v", g.budget, ctx.Err()),
				}},
			}
		}
		rep.Scenarios[i] = *r
		if !r.Passed {
			rep.Passed = false
		}
	}

	if timedOut {
		g.log.Error("gate budget exceeded", logging.Duration("budget", g.budget))
	}
	g.log.Info("gate finished",
		logging.Bool("passed", rep.Passed),
		logging.Int("scenarios", len(rep.Scenarios)),
		logging.Int("failed", rep.Failed()),
		logging.Duration("elapsed", rep.Elapsed))
	return rep
}

// runScenario executes one scenario and evaluates its assertions. Panics
// in the pipeline or in an assertion become failures.
func (g *Gate) runScenario(ctx context.Context, sc *Scenario) (res ScenarioResult) {
	started := time.Now()
	res.Name = sc.Name
	defer func() {
		if r := recover(); r != nil {
			res.Failures = append(res.Failures, Failure{Assertion: "panic", Detail: fmt.Sprint(r)})
			g.log.Error("scenario panic", logging.String("scenario", sc.Name), logging.Any("panic", r), logging.String("stack", string(debug.Stack())))
		}
		res.Elapsed = time.Since(started)
		res.Passed = len(res.Failures) == 0
		if res.Passed {
			g.log.Debug("scenario passed", logging.String("scenario", sc.Name), logging.Duration("elapsed", res.Elapsed))
		} else {
			g.log.Warn("scenario failed", logging.String("scenario", sc.Name), logging.Int("failures", len(res.Failures)))
		}
	}()

	o := &Outcome{}
	o.Schedule, o.Log, o.Err = execute(ctx, sc)
	o.Rerun, _, o.RerunErr = execute(ctx, sc)

	for _, a := range assertionsFor(sc, o) {
		if err := evaluate(a, sc, o); err != nil {
			res.Failures = append(res.Failures, Failure{Assertion: a.Name, Detail: err.Error()})
		}
	}
	return res
}

func evaluate(a Assertion, sc *Scenario, o *Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Check(sc, o)
}

// execute runs the pipeline for a scenario with its own engine and a
// captured JSON log.
func execute(ctx context.Context, sc *Scenario) (*model.Schedule, string, error) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "debug", Format: "json", Out: &buf})
	now := sc.Now
	e := scheduler.NewEngine(log, scheduler.WithClock(func() time.Time { return now }))
	s, err := e.Run(ctx, sc.Input)
	return s, buf.String(), err
}
