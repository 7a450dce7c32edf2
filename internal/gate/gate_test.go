package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/scheduler"
)

func TestCatalogueNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, sc := range Scenarios() {
		if sc.Name == "" {
			t.Fatal("scenario without a name")
		}
		if seen[sc.Name] {
			t.Errorf("duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
	}
	if len(seen) < 14 {
		t.Errorf("expected at least 14 scenarios, got %d", len(seen))
	}
}

func TestGatePasses(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		rep := New(logging.Nop(), Options{Sequential: sequential}).Run(context.Background())
		if !rep.Passed {
			t.Fatalf("sequential=%v: gate failed:\n%s", sequential, rep.Text())
		}
		if rep.TimedOut {
			t.Errorf("sequential=%v: unexpected timeout", sequential)
		}
		if len(rep.Scenarios) != len(Scenarios()) {
			t.Errorf("expected %d results, got %d", len(Scenarios()), len(rep.Scenarios))
		}
	}
}

func TestGateReportsEveryFailure(t *testing.T) {
	broken := singleSession()
	broken.Name = "broken"
	broken.Assertions = append(broken.Assertions,
		placedAs("write", span(at(0, 10, 0), at(0, 12, 0))),
		reasonIs("write", model.ReasonDeadlineMissed))

	rep := New(logging.Nop(), Options{Scenarios: []Scenario{broken, splitSessions()}}).Run(context.Background())
	if rep.Passed {
		t.Fatal("expected gate to fail")
	}
	if rep.Failed() != 1 {
		t.Errorf("expected 1 failed scenario, got %d", rep.Failed())
	}
	if got := len(rep.Scenarios[0].Failures); got != 2 {
		t.Errorf("expected both failing assertions reported, got %d: %+v", got, rep.Scenarios[0].Failures)
	}
	if !rep.Scenarios[1].Passed {
		t.Errorf("expected the other scenario to still run and pass: %+v", rep.Scenarios[1])
	}
	text := rep.Text()
	if !strings.Contains(text, "FAIL broken") || !strings.Contains(text, "write marked deadline_missed") {
		t.Errorf("expected failure in text report, got:\n%s", text)
	}
}

func TestGateRecoversPanics(t *testing.T) {
	sc := singleSession()
	sc.Assertions = []Assertion{{Name: "explodes", Check: func(*Scenario, *Outcome) error {
		var s *model.Schedule
		_ = s.Placements
		return nil
	}}}
	rep := New(logging.Nop(), Options{Scenarios: []Scenario{sc}}).Run(context.Background())
	if rep.Passed {
		t.Fatal("expected panic to fail the gate")
	}
	f := rep.Scenarios[0].Failures
	if len(f) != 1 || f[0].Assertion != "explodes" || !strings.Contains(f[0].Detail, "panic") {
		t.Errorf("expected panic reported against its assertion, got %+v", f)
	}
}

func TestGateUnexpectedErrorFails(t *testing.T) {
	sc := sameSourceOverlap()
	sc.WantErr = nil
	rep := New(logging.Nop(), Options{Scenarios: []Scenario{sc}}).Run(context.Background())
	if rep.Passed {
		t.Fatal("expected failure")
	}
	f := rep.Scenarios[0].Failures
	if len(f) != 1 || f[0].Assertion != "pipeline succeeds" {
		t.Errorf("expected a single pipeline failure, got %+v", f)
	}
}

func TestGateFailsClosedOnBudget(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := singleSession()
	slow.Name = "slow"
	slow.Assertions = []Assertion{{Name: "blocks", Check: func(*Scenario, *Outcome) error {
		<-release
		return nil
	}}}

	start := time.Now()
	rep := New(logging.Nop(), Options{Budget: 50 * time.Millisecond, Scenarios: []Scenario{slow, splitSessions()}}).Run(context.Background())
	if time.Since(start) > 5*time.Second {
		t.Fatal("gate did not honor its budget")
	}
	if rep.Passed || !rep.TimedOut {
		t.Fatalf("expected timed out failure, got passed=%v timed_out=%v", rep.Passed, rep.TimedOut)
	}
	if rep.Scenarios[0].Passed || rep.Scenarios[0].Failures[0].Assertion != "budget" {
		t.Errorf("expected slow scenario to fail on budget, got %+v", rep.Scenarios[0])
	}
}

func TestUniversalAssertionsCatchBadSchedules(t *testing.T) {
	sc := singleSession()
	good, _, err := execute(context.Background(), &sc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Overlapping sessions, too short, and placed before now.
	bad := *good
	bad.Placements = append([]model.Placement{}, good.Placements...)
	b := good.Placements[0].Block
	b.ID = "write/1"
	b.Start = at(0, 8, 50)
	b.End = at(0, 9, 10)
	bad.Placements = append(bad.Placements, model.Placement{TaskID: "write", Block: b})

	o := &Outcome{Schedule: &bad, Rerun: good}
	for _, name := range []string{"deterministic", "no overlap", "within horizon", "session bounds", "no silent overcommit"} {
		var a Assertion
		for _, u := range universal {
			if u.Name == name {
				a = u
			}
		}
		if err := evaluate(a, &sc, o); err == nil {
			t.Errorf("expected %q to fail", name)
		}
	}
}

func TestNoSilentOvercommit(t *testing.T) {
	sc := overcommit()
	s, _, err := execute(context.Background(), &sc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	s.Unplaced = nil
	if err := checkNoOvercommit(&sc, &Outcome{Schedule: s}); err == nil {
		t.Error("expected overcommit to be detected when nothing is flagged")
	}
}

func TestWriteArtifact(t *testing.T) {
	rep := New(logging.Nop(), Options{Scenarios: []Scenario{singleSession()}}).Run(context.Background())
	path := filepath.Join(t.TempDir(), "out", "gate.json")
	if err := rep.WriteArtifact(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Passed    bool   `json:"passed"`
		Report    string `json:"report"`
		Scenarios []struct {
			Name string `json:"name"`
		} `json:"scenarios"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Passed || !strings.Contains(got.Report, "single-session") {
		t.Errorf("unexpected artifact: %s", data)
	}
	if len(got.Scenarios) != 1 || got.Scenarios[0].Name != "single-session" {
		t.Errorf("expected scenario list, got %+v", got.Scenarios)
	}
}

func TestScenarioSeesInjectedClock(t *testing.T) {
	sc := singleSession()
	sc.Now = at(0, 10, 0)
	e := scheduler.NewEngine(logging.Nop(), scheduler.WithClock(func() time.Time { return sc.Now }))
	s, err := e.Run(context.Background(), sc.Input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := s.PlacedFor("write")
	if len(got) != 1 || !got[0].Start.Equal(at(0, 10, 0)) {
		t.Errorf("expected placement at 10:00, got %+v", got)
	}
}
