package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rcliao/timeblock/internal/gate"
	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/store"
)

func TestParseDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC) // still Mar 3 in New York

	got, err := parseDay("", ny, now)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if want := time.Date(2025, 3, 3, 0, 0, 0, 0, ny); !got.Equal(want) {
		t.Errorf("expected local midnight %v, got %v", want, got)
	}

	got, err = parseDay("2025-03-10", ny, now)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if want := time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got.UTC())
	}

	got, err = parseDay("2025-03-10T09:30:00Z", ny, now)
	if err != nil {
		t.Fatalf("parse instant: %v", err)
	}
	if want := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := parseDay("next tuesday", ny, now); err == nil {
		t.Error("expected error for free text")
	}
}

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios(nil)
	if err != nil || all != nil {
		t.Fatalf("expected nil selection for the full catalogue, got %v %v", all, err)
	}

	got, err := selectScenarios([]string{"overcommit", "single-session"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 || got[0].Name != "overcommit" || got[1].Name != "single-session" {
		t.Errorf("unexpected selection: %+v", got)
	}

	if _, err := selectScenarios([]string{"missing"}); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestFinishGatePassingRun(t *testing.T) {
	scenarios, err := selectScenarios([]string{"single-session"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	report := gate.New(logging.Nop(), gate.Options{Scenarios: scenarios}).Run(context.Background())

	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "artifacts", "gate.json")
	if code := finishGate(&stdout, &stderr, report, out); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s%s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "acceptance gate: PASS") {
		t.Errorf("expected pass header, got %q", stdout.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var got struct {
		Passed bool   `json:"passed"`
		Report string `json:"report"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if !got.Passed || !strings.Contains(got.Report, "single-session") {
		t.Errorf("unexpected artifact: %s", data)
	}
}

func TestFinishGateFailingRunExitsNonZero(t *testing.T) {
	report := gate.Report{
		Scenarios: []gate.ScenarioResult{{
			Name:     "broken",
			Failures: []gate.Failure{{Assertion: "no overlap", Detail: "a/0 overlaps b/0"}},
		}},
	}
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "gate.json")
	if code := finishGate(&stdout, &stderr, report, out); code != 1 {
		t.Errorf("expected exit 1 for a failing run, got %d", code)
	}
	if !strings.Contains(stdout.String(), "FAIL broken") {
		t.Errorf("expected failing scenario in report, got %q", stdout.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected artifact even for a failing run: %v", err)
	}
}

func TestFinishGateArtifactErrorExitsNonZero(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	report := gate.Report{Passed: true}
	var stdout, stderr bytes.Buffer
	if code := finishGate(&stdout, &stderr, report, filepath.Join(blocker, "gate.json")); code != 1 {
		t.Errorf("expected exit 1 when the artifact cannot be written, got %d", code)
	}
	if !strings.Contains(stderr.String(), "write artifact") {
		t.Errorf("expected artifact error on stderr, got %q", stderr.String())
	}

	stdout.Reset()
	if code := finishGate(&stdout, &stderr, report, "-"); code != 0 {
		t.Errorf("expected exit 0 when the artifact is skipped, got %d", code)
	}
}

func TestWriteStats(t *testing.T) {
	last := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	st := &store.Stats{
		DBPath: "/tmp/tb.db", DBSizeBytes: 2048,
		Tasks: 3, Records: 7, Runs: 2, Links: 1, LastRunAt: &last,
		Users: []store.UserStats{{UserID: "u1", Tasks: 3, Sessions: 4, Pinned: 1, Calendar: 2, Busy: 0}},
	}
	var buf bytes.Buffer
	writeStats(&buf, st)
	out := buf.String()
	for _, want := range []string{"/tmp/tb.db (2.0 kB): 3 tasks, 7 records, 2 runs, 1 links", "last run: 2025-03-03T09:00:00Z", "SESSIONS", "u1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	writeStats(&buf, &store.Stats{DBPath: "x.db"})
	if !strings.Contains(buf.String(), "last run: never") || strings.Contains(buf.String(), "USER") {
		t.Errorf("unexpected output for empty store:\n%s", buf.String())
	}
}
