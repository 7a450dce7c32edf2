package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Failure is one assertion that did not hold.
type Failure struct {
	Assertion string `json:"assertion"`
	Detail    string `json:"detail"`
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Failures []Failure     `json:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Report aggregates a gate run. Passed is true only when every assertion
// of every scenario held and the run finished within budget.
type Report struct {
	Passed    bool             `json:"passed"`
	TimedOut  bool             `json:"timed_out"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed_ns"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Failed counts failed scenarios.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Scenarios {
		if !s.Passed {
			n++
		}
	}
	return n
}

// Text renders the report for people.
func (r Report) Text() string {
	var b strings.Builder
	verdict := "PASS"
	if !r.Passed {
		verdict = "FAIL"
	}
	fmt.Fprintf(&b, "acceptance gate: %s (%d/%d scenarios passed, %s)\n",
		verdict, len(r.Scenarios)-r.Failed(), len(r.Scenarios), r.Elapsed.Round(time.Millisecond))
	if r.TimedOut {
		b.WriteString("  run exceeded its time budget\n")
	}
	for _, s := range r.Scenarios {
		mark := "ok  "
		if !s.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", mark, s.Name, s.Elapsed.Round(time.Microsecond))
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "       - %s: %s\n", f.Assertion, indent(f.Detail, "         "))
		}
	}
	return b.String()
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// artifact is the machine-readable result file.
type artifact struct {
	Report
	Text string `json:"report"`
}

// WriteArtifact writes the report as JSON to path, creating parent
// directories as needed.
func (r Report) WriteArtifact(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(artifact{Report: r, Text: r.Text()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
