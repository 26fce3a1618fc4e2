package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossval/crossval/internal/catalog"
	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/link"
)

// Validator runs the validation state machine for single tables: count the
// source, compare in key-ordered chunks with a checkpoint after every chunk,
// sweep for extra target rows, persist the outcome. All remote work goes
// through one target connection; the source is only ever reached via the
// link.
type Validator struct {
	Querier  link.Querier
	Dialect  link.Dialect
	Catalog  *catalog.Reader
	Recorder Recorder
	Logger   *slog.Logger
	Details  config.DetailConfig
}

// ValidateTable validates one table mapping. With resume set, a prior
// attempt that never completed is continued from its exact cursor position;
// otherwise a fresh attempt starts from the beginning.
//
// On unrecoverable error the progress entry is marked FAILED, a FAILED
// result with zeroed counts is persisted, and the error is returned together
// with that result so the caller can decide whether siblings continue.
func (v *Validator) ValidateTable(ctx context.Context, m config.TableMapping, resume bool) (*Result, error) {
	start := time.Now()
	logger := v.Logger.With("table", m.SourceTable)
	logger.Info("starting table validation", "chunk_size", m.ChunkSize, "incremental", m.Incremental)

	if m.ChunkSize <= 0 {
		return v.fail(ctx, m, 0, start, fmt.Errorf("chunk size must be greater than zero, got %d", m.ChunkSize))
	}

	table, err := v.Catalog.Columns(ctx, m.SourceTable)
	if err != nil {
		return v.fail(ctx, m, 0, start, fmt.Errorf("%w: %v", ErrCatalog, err))
	}

	plan, err := NewPlan(m, table, v.Dialect)
	if err != nil {
		return v.fail(ctx, m, 0, start, fmt.Errorf("%w: %v", ErrCatalog, err))
	}

	// Pick up a prior attempt when resuming. A malformed cursor is fatal:
	// restarting from the beginning would double-count and guessing a
	// position would skip rows.
	var (
		progressID int64
		totalRows  int64
		processed  int64
		matched    int64
		mismatched int64
		missing    int64
		cursor     []string
		resumed    bool
	)
	if resume {
		prev, err := v.Recorder.LatestProgress(ctx, m.SourceTable)
		if err != nil {
			return v.fail(ctx, m, 0, start, fmt.Errorf("loading prior progress: %w", err))
		}
		if prev != nil && prev.Resumable() && prev.LastKey != "" {
			cursor, err = DecodeCursor(prev.LastKey, len(plan.Keys()))
			if err != nil {
				return v.fail(ctx, m, prev.ID, start, err)
			}
			progressID = prev.ID
			totalRows = prev.TotalRows
			processed = prev.ProcessedRows
			matched = prev.Matched
			mismatched = prev.Mismatched
			missing = prev.Missing
			resumed = true
			logger.Info("resuming from checkpoint", "processed_rows", processed, "last_key", prev.LastKey)
		}
	}
	if !resumed {
		progressID, err = v.Recorder.CreateProgress(ctx, m.SourceTable)
		if err != nil {
			return nil, fmt.Errorf("creating progress entry: %w", err)
		}
	}

	// Incremental mode restricts the run to rows modified since the last
	// SUCCESS completion. Reads are not snapshot-isolated; concurrent
	// source writes during a long run can drift counts from chunk results.
	var bound *time.Time
	if m.Incremental {
		last, ok, err := v.Recorder.LastSuccessfulCompletion(ctx, m.SourceTable)
		if err != nil {
			return v.fail(ctx, m, progressID, start, fmt.Errorf("looking up last successful run: %w", err))
		}
		if ok {
			bound = &last
			logger.Info("incremental lower bound", "column", m.IncrementalCol, "since", last)
		}
	}

	if !resumed {
		val, err := v.Querier.QueryValue(ctx, plan.CountQuery(bound))
		if err != nil {
			return v.fail(ctx, m, progressID, start, fmt.Errorf("%w: counting source rows: %v", ErrConnectivity, err))
		}
		totalRows = toInt64(val)
		if err := v.Recorder.SetProgressTotal(ctx, progressID, totalRows); err != nil {
			return v.fail(ctx, m, progressID, start, fmt.Errorf("recording total rows: %w", err))
		}
		logger.Info("counted source rows", "total_rows", totalRows)
	}

	var collector *Collector
	if v.Details.Enabled {
		collector = NewCollector(v.Querier, plan, logger, v.Details.MaxPerTable)
	}
	executor := NewExecutor(v.Querier, plan)

	var details []Detail
	for processed < totalRows {
		chunk, err := executor.RunChunk(ctx, cursor, bound, collector.Remaining())
		if err != nil {
			return v.fail(ctx, m, progressID, start, err)
		}
		if chunk.Processed == 0 {
			// Source shrank under us; what was counted is no longer there.
			break
		}

		processed += chunk.Processed
		matched += chunk.Matched
		mismatched += chunk.Mismatched
		missing += chunk.Missing
		cursor = chunk.LastKey

		details = append(details, collector.CollectMismatches(ctx, chunk.MismatchedKeys)...)
		details = append(details, collector.CollectMissing(chunk.MissingKeys)...)

		if err := v.Recorder.CheckpointProgress(ctx, progressID, processed, matched, mismatched, missing, EncodeCursor(cursor)); err != nil {
			return v.fail(ctx, m, progressID, start, fmt.Errorf("checkpointing progress: %w", err))
		}
		logger.Debug("chunk complete", "processed_rows", processed, "total_rows", totalRows)

		if chunk.Processed < int64(plan.ChunkSize()) {
			break
		}
	}

	// Extra-in-target sweep runs even for an empty source: the target may
	// still hold rows the source never had.
	val, err := v.Querier.QueryValue(ctx, plan.ExtraCountQuery(bound))
	if err != nil {
		return v.fail(ctx, m, progressID, start, fmt.Errorf("%w: counting extra target rows: %v", ErrChunkExecution, err))
	}
	extra := toInt64(val)
	if extra > 0 {
		details = append(details, collector.CollectExtras(ctx, bound)...)
	}

	if err := v.Recorder.CompleteProgress(ctx, progressID, ProgressCompleted, ""); err != nil {
		return v.fail(ctx, m, progressID, start, fmt.Errorf("completing progress: %w", err))
	}

	end := time.Now()
	status := StatusSuccess
	if mismatched > 0 {
		status = StatusPartial
	}
	result := &Result{
		TableName:       m.SourceTable,
		TotalRows:       totalRows,
		MatchedRows:     matched,
		MismatchedRows:  mismatched,
		MissingInTarget: missing,
		ExtraInTarget:   extra,
		Duration:        end.Sub(start),
		StartedAt:       start,
		CompletedAt:     end,
		Status:          status,
		Details:         details,
	}

	id, err := v.Recorder.SaveResult(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("saving result for %s: %w", m.SourceTable, err)
	}
	result.ID = id

	if len(details) > 0 {
		if err := v.Recorder.SaveDetails(ctx, id, m.SourceTable, details); err != nil {
			logger.Warn("saving mismatch details failed", "error", fmt.Errorf("%w: %v", ErrDetailCollection, err))
		}
	}

	logger.Info("table validation complete",
		"status", status, "total_rows", totalRows, "matched", matched,
		"mismatched", mismatched, "missing_in_target", missing, "extra_in_target", extra,
		"duration", result.Duration)
	return result, nil
}

// fail records the terminal FAILED state for this attempt and hands the
// cause back to the orchestrator, which isolates it to this table.
func (v *Validator) fail(ctx context.Context, m config.TableMapping, progressID int64, start time.Time, cause error) (*Result, error) {
	v.Logger.Error("table validation failed", "table", m.SourceTable, "error", cause)

	if progressID != 0 {
		if err := v.Recorder.CompleteProgress(ctx, progressID, ProgressFailed, cause.Error()); err != nil {
			v.Logger.Error("marking progress failed", "table", m.SourceTable, "error", err)
		}
	}

	end := time.Now()
	result := &Result{
		TableName:    m.SourceTable,
		Duration:     end.Sub(start),
		StartedAt:    start,
		CompletedAt:  end,
		Status:       StatusFailed,
		ErrorMessage: cause.Error(),
	}
	if _, err := v.Recorder.SaveResult(ctx, result); err != nil {
		v.Logger.Error("saving failed result", "table", m.SourceTable, "error", err)
	}
	return result, cause
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return int64(val)
	case float32:
		return int64(val)
	case string:
		var n int64
		fmt.Sscan(val, &n)
		return n
	case []byte:
		var n int64
		fmt.Sscan(string(val), &n)
		return n
	default:
		return 0
	}
}
