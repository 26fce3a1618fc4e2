// Package orchestrator fans table validations out across a bounded worker
// pool. One table failing never stops its siblings; every table ends with a
// result, and the caller decides what a failure means for the exit code.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/validation"
	"github.com/crossval/crossval/internal/window"
)

// TableRunner validates a single table mapping.
type TableRunner interface {
	ValidateTable(ctx context.Context, m config.TableMapping, resume bool) (*validation.Result, error)
}

// Summary is the outcome of one batch run.
type Summary struct {
	Results   []*validation.Result
	Skipped   []string
	StartedAt time.Time
	Duration  time.Duration
}

// AnyFailed reports whether any table ended FAILED.
func (s *Summary) AnyFailed() bool {
	for _, r := range s.Results {
		if r != nil && r.Status == validation.StatusFailed {
			return true
		}
	}
	return false
}

// Orchestrator runs a batch of table validations with bounded concurrency
// and an optional run window.
type Orchestrator struct {
	Runner      TableRunner
	Recorder    validation.Recorder
	Window      *window.Window
	Logger      *slog.Logger
	Concurrency int

	now func() time.Time
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Run validates every mapping in tables. With resume set, tables whose most
// recent attempt already completed are skipped and interrupted attempts pick
// up from their checkpoint.
//
// The window is checked once up front, where a closed window is an error,
// and again before each table is dispatched, where it only skips the
// remaining tables. A validation already in flight is never preempted.
func (o *Orchestrator) Run(ctx context.Context, tables []config.TableMapping, resume bool) (*Summary, error) {
	start := o.clock()
	if o.Window != nil && !o.Window.Contains(start) {
		return nil, fmt.Errorf("outside the configured run window, next opening in %s", o.Window.Until(start).Round(time.Minute))
	}

	workers := o.Concurrency
	if workers < 1 {
		workers = 1
	}
	o.Logger.Info("starting validation run", "tables", len(tables), "concurrency", workers, "resume", resume)

	var (
		mu      sync.Mutex
		summary = Summary{StartedAt: start}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, mapping := range tables {
		if err := ctx.Err(); err != nil {
			break
		}
		if o.Window != nil && !o.Window.Contains(o.clock()) {
			o.Logger.Warn("run window closed, skipping remaining table", "table", mapping.SourceTable)
			mu.Lock()
			summary.Skipped = append(summary.Skipped, mapping.SourceTable)
			mu.Unlock()
			continue
		}
		if resume {
			done, err := o.alreadyCompleted(ctx, mapping.SourceTable)
			if err != nil {
				o.Logger.Error("checking prior progress", "table", mapping.SourceTable, "error", err)
			} else if done {
				o.Logger.Info("table already completed, skipping", "table", mapping.SourceTable)
				mu.Lock()
				summary.Skipped = append(summary.Skipped, mapping.SourceTable)
				mu.Unlock()
				continue
			}
		}

		m := mapping
		g.Go(func() error {
			res, err := o.Runner.ValidateTable(ctx, m, resume)
			if err != nil {
				o.Logger.Error("table validation error", "table", m.SourceTable, "error", err)
			}
			if res == nil {
				if err == nil {
					return nil
				}
				// The runner could not even record the failure itself. The
				// exit status depends on every failed table having a result,
				// so synthesize one.
				res = &validation.Result{
					TableName:    m.SourceTable,
					Status:       validation.StatusFailed,
					ErrorMessage: err.Error(),
				}
			}
			mu.Lock()
			summary.Results = append(summary.Results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Duration = o.clock().Sub(start)
	o.Logger.Info("validation run complete",
		"tables", len(summary.Results), "skipped", len(summary.Skipped),
		"failed", summary.AnyFailed(), "duration", summary.Duration)
	return &summary, nil
}

func (o *Orchestrator) alreadyCompleted(ctx context.Context, table string) (bool, error) {
	prev, err := o.Recorder.LatestProgress(ctx, table)
	if err != nil {
		return false, err
	}
	return prev != nil && prev.Status == validation.ProgressCompleted, nil
}
