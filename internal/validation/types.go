package validation

import (
	"context"
	"time"
)

// Progress entry statuses.
const (
	ProgressInProgress = "IN_PROGRESS"
	ProgressCompleted  = "COMPLETED"
	ProgressFailed     = "FAILED"
	ProgressPaused     = "PAUSED"
)

// Result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

// Mismatch detail types.
const (
	MismatchColumn  = "COLUMN_MISMATCH"
	MismatchMissing = "MISSING_IN_TARGET"
	MismatchExtra   = "EXTRA_IN_TARGET"
)

// Progress is one validation attempt's durable checkpoint. The running
// match/mismatch/missing aggregates are persisted alongside the cursor so a
// resumed attempt finishes with the same totals as an uninterrupted one.
type Progress struct {
	ID            int64
	TableName     string
	Status        string
	TotalRows     int64
	ProcessedRows int64
	Matched       int64
	Mismatched    int64
	Missing       int64
	LastKey       string
	StartedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	ErrorMessage  string
}

// Resumable reports whether this entry marks an attempt that should be
// picked up again: anything that never reached COMPLETED.
func (p *Progress) Resumable() bool {
	switch p.Status {
	case ProgressInProgress, ProgressPaused, ProgressFailed:
		return true
	}
	return false
}

// Result is the outcome of one table validation.
type Result struct {
	ID              int64
	TableName       string
	TotalRows       int64
	MatchedRows     int64
	MismatchedRows  int64
	MissingInTarget int64
	ExtraInTarget   int64
	Duration        time.Duration
	StartedAt       time.Time
	CompletedAt     time.Time
	Status          string
	ErrorMessage    string
	Details         []Detail
}

// Detail is one captured mismatch record. Capture is best-effort and bounded;
// aggregate counts stay accurate even when details are truncated.
type Detail struct {
	MismatchType string
	KeyValues    map[string]string
	Column       string
	SourceValue  *string
	TargetValue  *string
}

// Recorder persists progress checkpoints and validation outcomes. The store
// package provides the database-backed implementation.
type Recorder interface {
	CreateProgress(ctx context.Context, table string) (int64, error)
	SetProgressTotal(ctx context.Context, id, total int64) error
	CheckpointProgress(ctx context.Context, id int64, processed, matched, mismatched, missing int64, lastKey string) error
	CompleteProgress(ctx context.Context, id int64, status, errMsg string) error
	LatestProgress(ctx context.Context, table string) (*Progress, error)
	SaveResult(ctx context.Context, res *Result) (int64, error)
	SaveDetails(ctx context.Context, validationID int64, table string, details []Detail) error
	LastSuccessfulCompletion(ctx context.Context, table string) (time.Time, bool, error)
}
