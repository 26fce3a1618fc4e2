// Package store persists validation progress, results, and mismatch details
// in the target database. Keeping the bookkeeping next to the data being
// validated means one set of credentials and no extra infrastructure.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/link"
	"github.com/crossval/crossval/internal/validation"
)

// Repository reads and writes the three bookkeeping tables. It implements
// validation.Recorder.
type Repository struct {
	querier link.Querier
	dialect link.Dialect
	cfg     config.StoreConfig
}

func New(q link.Querier, d link.Dialect, cfg config.StoreConfig) *Repository {
	return &Repository{querier: q, dialect: d, cfg: cfg}
}

// EnsureTables creates any bookkeeping tables that do not exist yet. The
// details table references the results table, so order matters.
func (r *Repository) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{r.cfg.ProgressTable, r.dialect.ProgressTableDDL(r.cfg.ProgressTable)},
		{r.cfg.ResultsTable, r.dialect.ResultsTableDDL(r.cfg.ResultsTable)},
		{r.cfg.DetailsTable, r.dialect.DetailsTableDDL(r.cfg.DetailsTable, r.cfg.ResultsTable)},
	}
	for _, t := range tables {
		val, err := r.querier.QueryValue(ctx, r.dialect.TableExistsQuery(), t.name)
		if err != nil {
			return fmt.Errorf("checking for table %s: %w", t.name, err)
		}
		if asInt64(val) > 0 {
			continue
		}
		if err := r.querier.Exec(ctx, t.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", t.name, err)
		}
	}
	return nil
}

func (r *Repository) CreateProgress(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(
		`INSERT INTO %s (table_name, status, started_at, updated_at) VALUES (%s, %s, %s, %s)`,
		r.cfg.ProgressTable,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2),
		r.dialect.CurrentTimestamp(), r.dialect.CurrentTimestamp(),
	)
	id, err := r.querier.InsertReturningID(ctx, q, table, validation.ProgressInProgress)
	if err != nil {
		return 0, fmt.Errorf("inserting progress entry for %s: %w", table, err)
	}
	return id, nil
}

func (r *Repository) SetProgressTotal(ctx context.Context, id, total int64) error {
	q := fmt.Sprintf(
		`UPDATE %s SET total_rows = %s, updated_at = %s WHERE id = %s`,
		r.cfg.ProgressTable,
		r.dialect.Placeholder(1), r.dialect.CurrentTimestamp(), r.dialect.Placeholder(2),
	)
	return r.querier.Exec(ctx, q, total, id)
}

// CheckpointProgress records the cursor and running counts after a chunk.
// It also flips the status back to IN_PROGRESS, which re-activates an entry
// picked up by a resumed run.
func (r *Repository) CheckpointProgress(ctx context.Context, id int64, processed, matched, mismatched, missing int64, lastKey string) error {
	q := fmt.Sprintf(
		`UPDATE %s SET status = %s, processed_rows = %s, matched_rows = %s, mismatched_rows = %s, missing_rows = %s, last_processed_key = %s, updated_at = %s WHERE id = %s`,
		r.cfg.ProgressTable,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3),
		r.dialect.Placeholder(4), r.dialect.Placeholder(5), r.dialect.Placeholder(6),
		r.dialect.CurrentTimestamp(), r.dialect.Placeholder(7),
	)
	return r.querier.Exec(ctx, q, validation.ProgressInProgress, processed, matched, mismatched, missing, lastKey, id)
}

func (r *Repository) CompleteProgress(ctx context.Context, id int64, status, errMsg string) error {
	q := fmt.Sprintf(
		`UPDATE %s SET status = %s, error_message = %s, completed_at = %s, updated_at = %s WHERE id = %s`,
		r.cfg.ProgressTable,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2),
		r.dialect.CurrentTimestamp(), r.dialect.CurrentTimestamp(), r.dialect.Placeholder(3),
	)
	return r.querier.Exec(ctx, q, status, errMsg, id)
}

// LatestProgress returns the most recent progress entry for a table, or nil
// when the table has never been validated.
func (r *Repository) LatestProgress(ctx context.Context, table string) (*validation.Progress, error) {
	q := fmt.Sprintf(
		`SELECT id, table_name, status, total_rows, processed_rows, matched_rows, mismatched_rows, missing_rows, last_processed_key, started_at, updated_at, completed_at, error_message FROM %s WHERE table_name = %s ORDER BY started_at DESC %s`,
		r.cfg.ProgressTable, r.dialect.Placeholder(1), r.dialect.LimitClause(1),
	)
	rows, err := r.querier.QueryRows(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("loading progress for %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	p := &validation.Progress{
		ID:            asInt64(row["ID"]),
		TableName:     asString(row["TABLE_NAME"]),
		Status:        asString(row["STATUS"]),
		TotalRows:     asInt64(row["TOTAL_ROWS"]),
		ProcessedRows: asInt64(row["PROCESSED_ROWS"]),
		Matched:       asInt64(row["MATCHED_ROWS"]),
		Mismatched:    asInt64(row["MISMATCHED_ROWS"]),
		Missing:       asInt64(row["MISSING_ROWS"]),
		LastKey:       asString(row["LAST_PROCESSED_KEY"]),
		StartedAt:     asTime(row["STARTED_AT"]),
		UpdatedAt:     asTime(row["UPDATED_AT"]),
		ErrorMessage:  asString(row["ERROR_MESSAGE"]),
	}
	if row["COMPLETED_AT"] != nil {
		t := asTime(row["COMPLETED_AT"])
		p.CompletedAt = &t
	}
	return p, nil
}

func (r *Repository) SaveResult(ctx context.Context, res *validation.Result) (int64, error) {
	q := fmt.Sprintf(
		`INSERT INTO %s (table_name, total_rows, matched_rows, mismatched_rows, missing_in_target, extra_in_target, validation_duration_seconds, started_at, completed_at, status, error_message) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		r.cfg.ResultsTable,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3),
		r.dialect.Placeholder(4), r.dialect.Placeholder(5), r.dialect.Placeholder(6),
		r.dialect.Placeholder(7), r.dialect.Placeholder(8), r.dialect.Placeholder(9),
		r.dialect.Placeholder(10), r.dialect.Placeholder(11),
	)
	id, err := r.querier.InsertReturningID(ctx, q,
		res.TableName, res.TotalRows, res.MatchedRows, res.MismatchedRows,
		res.MissingInTarget, res.ExtraInTarget, res.Duration.Seconds(),
		res.StartedAt, res.CompletedAt, res.Status, res.ErrorMessage)
	if err != nil {
		return 0, fmt.Errorf("inserting result for %s: %w", res.TableName, err)
	}
	return id, nil
}

// SaveDetails inserts captured mismatch records tied to a result row. Key
// values are stored as a JSON object so composite keys survive round trips.
func (r *Repository) SaveDetails(ctx context.Context, validationID int64, table string, details []validation.Detail) error {
	q := fmt.Sprintf(
		`INSERT INTO %s (validation_id, table_name, mismatch_type, key_values, column_name, source_value, target_value, capture_time) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		r.cfg.DetailsTable,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3),
		r.dialect.Placeholder(4), r.dialect.Placeholder(5), r.dialect.Placeholder(6),
		r.dialect.Placeholder(7), r.dialect.CurrentTimestamp(),
	)
	for _, d := range details {
		keys, err := json.Marshal(d.KeyValues)
		if err != nil {
			return fmt.Errorf("encoding key values: %w", err)
		}
		err = r.querier.Exec(ctx, q,
			validationID, table, d.MismatchType, string(keys), d.Column,
			textOrNil(d.SourceValue), textOrNil(d.TargetValue))
		if err != nil {
			return fmt.Errorf("inserting detail for %s: %w", table, err)
		}
	}
	return nil
}

// LastSuccessfulCompletion returns when the table last validated clean, for
// use as the incremental lower bound.
func (r *Repository) LastSuccessfulCompletion(ctx context.Context, table string) (time.Time, bool, error) {
	q := fmt.Sprintf(
		`SELECT MAX(completed_at) FROM %s WHERE table_name = %s AND status = %s`,
		r.cfg.ResultsTable, r.dialect.Placeholder(1), r.dialect.Placeholder(2),
	)
	val, err := r.querier.QueryValue(ctx, q, table, validation.StatusSuccess)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading last successful run for %s: %w", table, err)
	}
	if val == nil {
		return time.Time{}, false, nil
	}
	return asTime(val), true, nil
}

// RecentResults returns the newest result rows across all tables.
func (r *Repository) RecentResults(ctx context.Context, limit int) ([]validation.Result, error) {
	q := fmt.Sprintf(
		`SELECT id, table_name, total_rows, matched_rows, mismatched_rows, missing_in_target, extra_in_target, validation_duration_seconds, started_at, completed_at, status, error_message FROM %s ORDER BY started_at DESC %s`,
		r.cfg.ResultsTable, r.dialect.LimitClause(limit),
	)
	rows, err := r.querier.QueryRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading recent results: %w", err)
	}
	results := make([]validation.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, validation.Result{
			ID:              asInt64(row["ID"]),
			TableName:       asString(row["TABLE_NAME"]),
			TotalRows:       asInt64(row["TOTAL_ROWS"]),
			MatchedRows:     asInt64(row["MATCHED_ROWS"]),
			MismatchedRows:  asInt64(row["MISMATCHED_ROWS"]),
			MissingInTarget: asInt64(row["MISSING_IN_TARGET"]),
			ExtraInTarget:   asInt64(row["EXTRA_IN_TARGET"]),
			Duration:        time.Duration(asFloat64(row["VALIDATION_DURATION_SECONDS"]) * float64(time.Second)),
			StartedAt:       asTime(row["STARTED_AT"]),
			CompletedAt:     asTime(row["COMPLETED_AT"]),
			Status:          asString(row["STATUS"]),
			ErrorMessage:    asString(row["ERROR_MESSAGE"]),
		})
	}
	return results, nil
}

func textOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func asInt64(v any) int64 {
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

func asFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		var f float64
		fmt.Sscan(val, &f)
		return f
	case []byte:
		var f float64
		fmt.Sscan(string(val), &f)
		return f
	default:
		return 0
	}
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func asTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
