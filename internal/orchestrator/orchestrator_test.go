package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/validation"
	"github.com/crossval/crossval/internal/window"
)

type fakeRunner struct {
	mu     sync.Mutex
	ran    []string
	failOn map[string]error
	// bailOn simulates failures before the runner can build a result, such
	// as the progress row never being created.
	bailOn map[string]error
}

func (r *fakeRunner) ValidateTable(_ context.Context, m config.TableMapping, _ bool) (*validation.Result, error) {
	r.mu.Lock()
	r.ran = append(r.ran, m.SourceTable)
	r.mu.Unlock()

	if err := r.bailOn[m.SourceTable]; err != nil {
		return nil, err
	}
	if err := r.failOn[m.SourceTable]; err != nil {
		return &validation.Result{TableName: m.SourceTable, Status: validation.StatusFailed, ErrorMessage: err.Error()}, err
	}
	return &validation.Result{TableName: m.SourceTable, Status: validation.StatusSuccess}, nil
}

type fakeRecorder struct {
	latest map[string]*validation.Progress
}

func (r *fakeRecorder) CreateProgress(context.Context, string) (int64, error) { return 1, nil }
func (r *fakeRecorder) SetProgressTotal(context.Context, int64, int64) error  { return nil }
func (r *fakeRecorder) CheckpointProgress(context.Context, int64, int64, int64, int64, int64, string) error {
	return nil
}
func (r *fakeRecorder) CompleteProgress(context.Context, int64, string, string) error { return nil }
func (r *fakeRecorder) LatestProgress(_ context.Context, table string) (*validation.Progress, error) {
	return r.latest[table], nil
}
func (r *fakeRecorder) SaveResult(context.Context, *validation.Result) (int64, error) { return 1, nil }
func (r *fakeRecorder) SaveDetails(context.Context, int64, string, []validation.Detail) error {
	return nil
}
func (r *fakeRecorder) LastSuccessfulCompletion(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func mappings(names ...string) []config.TableMapping {
	var ms []config.TableMapping
	for _, n := range names {
		ms = append(ms, config.TableMapping{SourceTable: n, TargetTable: n, NaturalKeys: []string{"ID"}, ChunkSize: 100})
	}
	return ms
}

func newOrchestrator(runner *fakeRunner, rec *fakeRecorder) *Orchestrator {
	return &Orchestrator{
		Runner:      runner,
		Recorder:    rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Concurrency: 2,
	}
}

func TestRunAllTables(t *testing.T) {
	runner := &fakeRunner{}
	o := newOrchestrator(runner, &fakeRecorder{})

	s, err := o.Run(context.Background(), mappings("A", "B", "C"), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(s.Results))
	}
	if s.AnyFailed() {
		t.Error("no table failed, AnyFailed must be false")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]error{"B": errors.New("link down")}}
	o := newOrchestrator(runner, &fakeRecorder{})

	s, err := o.Run(context.Background(), mappings("A", "B", "C"), false)
	if err != nil {
		t.Fatalf("one table failing must not fail the run: %v", err)
	}
	if len(runner.ran) != 3 {
		t.Errorf("ran %v, want all three tables despite B failing", runner.ran)
	}
	if !s.AnyFailed() {
		t.Error("AnyFailed must report B's failure")
	}
	var statuses []string
	for _, r := range s.Results {
		statuses = append(statuses, r.Status)
	}
	if len(s.Results) != 3 {
		t.Errorf("results = %v, want all three recorded", statuses)
	}
}

func TestRunRecordsFailureWithoutResult(t *testing.T) {
	runner := &fakeRunner{bailOn: map[string]error{"B": errors.New("creating progress entry: store down")}}
	o := newOrchestrator(runner, &fakeRecorder{})

	s, err := o.Run(context.Background(), mappings("A", "B"), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.Results) != 2 {
		t.Fatalf("results = %d, want a result for every table", len(s.Results))
	}
	if !s.AnyFailed() {
		t.Error("AnyFailed must report B even when the runner returned no result")
	}
	var got *validation.Result
	for _, r := range s.Results {
		if r.TableName == "B" {
			got = r
		}
	}
	if got == nil {
		t.Fatal("no result recorded for B")
	}
	if got.Status != validation.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, validation.StatusFailed)
	}
	if got.ErrorMessage != "creating progress entry: store down" {
		t.Errorf("error message = %q, want the runner's error", got.ErrorMessage)
	}
}

func TestRunRefusesOutsideWindow(t *testing.T) {
	w, err := window.FromConfig(&config.WindowConfig{Start: "22:00", End: "02:00"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	runner := &fakeRunner{}
	o := newOrchestrator(runner, &fakeRecorder{})
	o.Window = w
	o.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }

	if _, err := o.Run(context.Background(), mappings("A"), false); err == nil {
		t.Fatal("expected an error outside the run window")
	}
	if len(runner.ran) != 0 {
		t.Errorf("no table may start outside the window, ran %v", runner.ran)
	}
}

func TestRunSkipsRemainingWhenWindowCloses(t *testing.T) {
	w, err := window.FromConfig(&config.WindowConfig{Start: "22:00", End: "02:00"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	// The clock starts inside the window and leaves it after the first
	// dispatch check.
	times := []time.Time{
		time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC), // run start
		time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC), // dispatch A
		time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC),   // dispatch B: closed
		time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC),
	}
	var calls int
	runner := &fakeRunner{}
	o := newOrchestrator(runner, &fakeRecorder{})
	o.Concurrency = 1
	o.Window = w
	o.now = func() time.Time {
		t := times[calls]
		if calls < len(times)-1 {
			calls++
		}
		return t
	}

	s, err := o.Run(context.Background(), mappings("A", "B"), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.ran) != 1 || runner.ran[0] != "A" {
		t.Errorf("ran %v, want only A", runner.ran)
	}
	if len(s.Skipped) != 1 || s.Skipped[0] != "B" {
		t.Errorf("skipped %v, want [B]", s.Skipped)
	}
}

func TestRunResumeSkipsCompletedTables(t *testing.T) {
	rec := &fakeRecorder{latest: map[string]*validation.Progress{
		"A": {Status: validation.ProgressCompleted},
		"B": {Status: validation.ProgressFailed},
	}}
	runner := &fakeRunner{}
	o := newOrchestrator(runner, rec)

	s, err := o.Run(context.Background(), mappings("A", "B", "C"), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ranSet := make(map[string]bool)
	for _, n := range runner.ran {
		ranSet[n] = true
	}
	if ranSet["A"] {
		t.Error("A already completed and must be skipped on resume")
	}
	if !ranSet["B"] || !ranSet["C"] {
		t.Errorf("ran %v, want B (interrupted) and C (never run)", runner.ran)
	}
	if len(s.Skipped) != 1 || s.Skipped[0] != "A" {
		t.Errorf("skipped %v, want [A]", s.Skipped)
	}
}
