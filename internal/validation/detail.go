package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossval/crossval/internal/link"
)

// Collector captures mismatch details under a per-table budget shared by all
// three mismatch types. Collection is best-effort: secondary lookups that
// fail are logged and swallowed, and once the budget is spent further
// details are silently truncated. Aggregate counts never depend on it.
type Collector struct {
	querier   link.Querier
	plan      *Plan
	logger    *slog.Logger
	remaining int
}

// NewCollector creates a collector with the given detail budget. A nil
// collector is valid and collects nothing.
func NewCollector(q link.Querier, plan *Plan, logger *slog.Logger, budget int) *Collector {
	return &Collector{querier: q, plan: plan, logger: logger, remaining: budget}
}

// Remaining reports the unspent detail budget.
func (c *Collector) Remaining() int {
	if c == nil {
		return 0
	}
	return c.remaining
}

// CollectMismatches fetches both rows for each mismatched key and records
// one detail per differing column, budget permitting.
func (c *Collector) CollectMismatches(ctx context.Context, keys [][]string) []Detail {
	if c == nil || c.remaining <= 0 {
		return nil
	}

	var details []Detail
	for _, key := range keys {
		if c.remaining <= 0 {
			break
		}
		diffs, err := c.fetchRowDiffs(ctx, key)
		if err != nil {
			c.logger.Warn("mismatch detail lookup failed",
				"table", c.plan.mapping.SourceTable, "error", err)
			continue
		}
		for _, d := range diffs {
			if c.remaining <= 0 {
				break
			}
			details = append(details, Detail{
				MismatchType: MismatchColumn,
				KeyValues:    c.keyMap(key),
				Column:       d.Column,
				SourceValue:  d.SourceValue,
				TargetValue:  d.TargetValue,
			})
			c.remaining--
		}
	}
	return details
}

// CollectMissing records details for source rows absent from the target.
// The keys came back with the chunk, so no extra round trips are needed.
func (c *Collector) CollectMissing(keys [][]string) []Detail {
	if c == nil {
		return nil
	}
	var details []Detail
	for _, key := range keys {
		if c.remaining <= 0 {
			break
		}
		details = append(details, Detail{
			MismatchType: MismatchMissing,
			KeyValues:    c.keyMap(key),
		})
		c.remaining--
	}
	return details
}

// CollectExtras fetches key tuples of target rows absent from the source,
// bounded by the remaining budget.
func (c *Collector) CollectExtras(ctx context.Context, bound *time.Time) []Detail {
	if c == nil || c.remaining <= 0 {
		return nil
	}

	query := c.plan.ExtraKeysQuery(bound, c.remaining)
	rows, err := c.querier.QueryRows(ctx, query)
	if err != nil {
		c.logger.Warn("extra-in-target detail lookup failed",
			"table", c.plan.mapping.SourceTable, "error", err)
		return nil
	}

	k := len(c.plan.Keys())
	var details []Detail
	for _, row := range rows {
		if c.remaining <= 0 {
			break
		}
		key := make([]string, k)
		for i := 0; i < k; i++ {
			key[i] = valueText(row[fmt.Sprintf("K%d", i)])
		}
		details = append(details, Detail{
			MismatchType: MismatchExtra,
			KeyValues:    c.keyMap(key),
		})
		c.remaining--
	}
	return details
}

func (c *Collector) fetchRowDiffs(ctx context.Context, key []string) ([]ColumnDiff, error) {
	query, err := c.plan.RowPairQuery(key)
	if err != nil {
		return nil, err
	}
	rows, err := c.querier.QueryRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	source := make(map[string]*string)
	target := make(map[string]*string)
	columns := make([]string, 0, len(c.plan.CompareColumns()))
	for _, col := range c.plan.CompareColumns() {
		columns = append(columns, col.Name)
		source[col.Name] = nullableText(row["S_"+col.Name])
		target[col.Name] = nullableText(row["T_"+col.Name])
	}
	return DiffRow(columns, source, target), nil
}

func (c *Collector) keyMap(key []string) map[string]string {
	m := make(map[string]string, len(key))
	for i, k := range c.plan.Keys() {
		m[k.Name] = key[i]
	}
	return m
}

func nullableText(v any) *string {
	if v == nil {
		return nil
	}
	s := valueText(v)
	return &s
}
