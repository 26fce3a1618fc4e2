package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/crossval/crossval/internal/link"
)

// ChunkResult is the outcome of one bounded comparison round trip.
type ChunkResult struct {
	Processed  int64
	Matched    int64
	Mismatched int64
	Missing    int64

	// LastKey is the key tuple of the last row returned in key order, nil
	// when the chunk was empty. It becomes the next cursor.
	LastKey []string

	// MismatchedKeys and MissingKeys carry key tuples for detail capture,
	// bounded by the caller's remaining detail budget.
	MismatchedKeys [][]string
	MissingKeys    [][]string
}

// Executor issues chunk comparisons against the target connection. Each
// chunk is a single remote round trip; per-row round trips over a database
// link are prohibitively slow at scale.
type Executor struct {
	querier link.Querier
	plan    *Plan
}

// NewExecutor creates an executor for one table's plan.
func NewExecutor(q link.Querier, plan *Plan) *Executor {
	return &Executor{querier: q, plan: plan}
}

// RunChunk compares up to the plan's chunk size of source rows starting
// strictly after cursor (nil for the first chunk). keyCap bounds how many
// mismatched/missing key tuples are collected for detail capture; zero
// collects none. Execution errors are not retried here: link failures tend
// to mean real connectivity or data problems, and resume covers the rest.
func (e *Executor) RunChunk(ctx context.Context, cursor []string, bound *time.Time, keyCap int) (*ChunkResult, error) {
	query, err := e.plan.ChunkQuery(cursor, bound)
	if err != nil {
		return nil, err
	}

	rows, err := e.querier.QueryRows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkExecution, err)
	}

	result := &ChunkResult{}
	k := len(e.plan.Keys())
	for _, row := range rows {
		result.Processed++

		key := make([]string, k)
		for i := 0; i < k; i++ {
			key[i] = valueText(row[fmt.Sprintf("K%d", i)])
		}
		result.LastKey = key

		switch valueText(row[statusAlias]) {
		case rowMatch:
			result.Matched++
		case rowMismatch:
			result.Mismatched++
			if len(result.MismatchedKeys) < keyCap {
				result.MismatchedKeys = append(result.MismatchedKeys, key)
			}
		case rowMissing:
			result.Missing++
			if len(result.MissingKeys) < keyCap {
				result.MissingKeys = append(result.MissingKeys, key)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected row classification %q", ErrChunkExecution, row[statusAlias])
		}
	}

	return result, nil
}

// valueText renders a scanned database value as its textual form.
func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
