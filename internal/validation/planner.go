package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crossval/crossval/internal/catalog"
	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/link"
)

// Aliases used in every generated comparison query: s is the source side
// (reached through the link), t is the target side. Filter predicates in the
// mapping may reference them.
const (
	srcAlias = "s"
	tgtAlias = "t"
)

const statusAlias = "CMP_STATUS"

// Row classification values emitted by the chunk query.
const (
	rowMatch    = "MATCH"
	rowMismatch = "MISMATCH"
	rowMissing  = "MISSING"
)

// Plan builds every query needed to validate one table: the count, the
// key-ordered chunk comparison, the extra-in-target sweep, and the per-key
// row fetches used for detail capture. All identifiers are resolved against
// the catalog before interpolation; a mistyped key or exclude column in the
// configuration fails here rather than producing runaway SQL.
type Plan struct {
	mapping config.TableMapping
	dialect link.Dialect

	keys        []catalog.Column
	compareCols []catalog.Column
}

// NewPlan resolves a table mapping against the source table's metadata.
func NewPlan(m config.TableMapping, table *catalog.Table, d link.Dialect) (*Plan, error) {
	p := &Plan{mapping: m, dialect: d}

	for _, key := range m.NaturalKeys {
		class, ok := table.Class(key)
		if !ok {
			return nil, fmt.Errorf("natural key %s is not a column of %s", key, m.SourceTable)
		}
		p.keys = append(p.keys, catalog.Column{Name: strings.ToUpper(key), Class: class})
	}

	for _, col := range m.ExcludeColumns {
		if !table.Has(col) {
			return nil, fmt.Errorf("excluded column %s is not a column of %s", col, m.SourceTable)
		}
	}
	if m.Incremental && !table.Has(m.IncrementalCol) {
		return nil, fmt.Errorf("incremental column %s is not a column of %s", m.IncrementalCol, m.SourceTable)
	}

	excluded := make(map[string]bool, len(m.ExcludeColumns))
	for _, col := range m.ExcludeColumns {
		excluded[strings.ToUpper(col)] = true
	}
	isKey := make(map[string]bool, len(p.keys))
	for _, k := range p.keys {
		isKey[k.Name] = true
	}
	for _, col := range table.Columns {
		if isKey[col.Name] || excluded[col.Name] {
			continue
		}
		p.compareCols = append(p.compareCols, col)
	}

	return p, nil
}

// Keys returns the resolved natural-key columns in declared order.
func (p *Plan) Keys() []catalog.Column { return p.keys }

// CompareColumns returns the non-key, non-excluded columns.
func (p *Plan) CompareColumns() []catalog.Column { return p.compareCols }

// ChunkSize returns the configured chunk size.
func (p *Plan) ChunkSize() int { return p.mapping.ChunkSize }

// CountQuery counts source rows under the mapping's predicate and, in
// incremental mode, the given lower bound.
func (p *Plan) CountQuery(bound *time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT(*) FROM %s %s WHERE 1=1",
		p.dialect.RemoteTable(p.mapping.SourceTable), srcAlias)
	p.writeFilters(&b, srcAlias, bound)
	return b.String()
}

// ChunkQuery builds one bounded, key-ordered comparison starting strictly
// after the given cursor (nil for the first chunk). The query emits the key
// tuple as text columns K0..Kn-1 plus a per-row classification, and is the
// table's single remote round trip for the chunk.
func (p *Plan) ChunkQuery(cursor []string, bound *time.Time) (string, error) {
	var b strings.Builder

	b.WriteString("SELECT ")
	for i, key := range p.keys {
		fmt.Fprintf(&b, "%s AS K%d, ", p.textExpr(srcAlias, key), i)
	}
	fmt.Fprintf(&b, "CASE WHEN %s.%s IS NULL THEN '%s' WHEN %s THEN '%s' ELSE '%s' END AS %s",
		tgtAlias, p.keys[0].Name, rowMissing, p.differencePredicate(), rowMismatch, rowMatch, statusAlias)

	fmt.Fprintf(&b, " FROM %s %s LEFT JOIN %s %s ON %s WHERE 1=1",
		p.dialect.RemoteTable(p.mapping.SourceTable), srcAlias,
		p.mapping.TargetTable, tgtAlias, p.joinCondition())
	p.writeFilters(&b, srcAlias, bound)

	if cursor != nil {
		seek, err := p.seekPredicate(cursor)
		if err != nil {
			return "", err
		}
		b.WriteString(" AND ")
		b.WriteString(seek)
	}

	b.WriteString(" ORDER BY ")
	for i, key := range p.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s.%s", srcAlias, key.Name)
	}
	b.WriteString(" ")
	b.WriteString(p.dialect.LimitClause(p.mapping.ChunkSize))

	return b.String(), nil
}

// ExtraCountQuery counts target rows with no corresponding source row. The
// mapping predicate goes inside the subquery, the only scope where the
// source alias exists; a target row whose source counterpart is filtered out
// counts as extra, matching the chunk queries' view of the source.
func (p *Plan) ExtraCountQuery(bound *time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT(*) FROM %s %s WHERE NOT EXISTS (SELECT 1 FROM %s %s WHERE %s",
		p.mapping.TargetTable, tgtAlias,
		p.dialect.RemoteTable(p.mapping.SourceTable), srcAlias, p.joinCondition())
	p.writeWhere(&b)
	b.WriteString(")")
	p.writeIncremental(&b, tgtAlias, bound)
	return b.String()
}

// ExtraKeysQuery fetches the key tuples of up to limit extra-in-target rows
// for detail capture.
func (p *Plan) ExtraKeysQuery(bound *time.Time, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, key := range p.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s AS K%d", p.textExpr(tgtAlias, key), i)
	}
	fmt.Fprintf(&b, " FROM %s %s WHERE NOT EXISTS (SELECT 1 FROM %s %s WHERE %s",
		p.mapping.TargetTable, tgtAlias,
		p.dialect.RemoteTable(p.mapping.SourceTable), srcAlias, p.joinCondition())
	p.writeWhere(&b)
	b.WriteString(")")
	p.writeIncremental(&b, tgtAlias, bound)
	b.WriteString(" ORDER BY ")
	for i, key := range p.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s.%s", tgtAlias, key.Name)
	}
	b.WriteString(" ")
	b.WriteString(p.dialect.LimitClause(limit))
	return b.String()
}

// RowPairQuery fetches one row from both sides by key, with every compared
// column rendered as text under S_/T_ aliases, for column-level diffing.
func (p *Plan) RowPairQuery(key []string) (string, error) {
	if len(key) != len(p.keys) {
		return "", fmt.Errorf("key tuple has %d components, want %d", len(key), len(p.keys))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range p.compareCols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s AS S_%s, %s AS T_%s",
			p.textExpr(srcAlias, col), col.Name, p.textExpr(tgtAlias, col), col.Name)
	}
	fmt.Fprintf(&b, " FROM %s %s LEFT JOIN %s %s ON %s WHERE ",
		p.dialect.RemoteTable(p.mapping.SourceTable), srcAlias,
		p.mapping.TargetTable, tgtAlias, p.joinCondition())

	for i, k := range p.keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		lit, err := p.keyLiteral(k, key[i])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s.%s = %s", srcAlias, k.Name, lit)
	}
	return b.String(), nil
}

// seekPredicate renders the strict composite continuation: a disjunction of
// one conjunction per key column, equality on the prefix and strict greater
// on the tie-break column. Strictly greater, never greater-or-equal: the
// cursor row itself was already consumed.
func (p *Plan) seekPredicate(cursor []string) (string, error) {
	if len(cursor) != len(p.keys) {
		return "", fmt.Errorf("%w: got %d components, want %d", ErrCursorDecode, len(cursor), len(p.keys))
	}

	var branches []string
	for i := range p.keys {
		var conds []string
		for j := 0; j < i; j++ {
			lit, err := p.keyLiteral(p.keys[j], cursor[j])
			if err != nil {
				return "", err
			}
			conds = append(conds, fmt.Sprintf("%s.%s = %s", srcAlias, p.keys[j].Name, lit))
		}
		lit, err := p.keyLiteral(p.keys[i], cursor[i])
		if err != nil {
			return "", err
		}
		conds = append(conds, fmt.Sprintf("%s.%s > %s", srcAlias, p.keys[i].Name, lit))
		branches = append(branches, "("+strings.Join(conds, " AND ")+")")
	}
	return "(" + strings.Join(branches, " OR ") + ")", nil
}

// differencePredicate is true when any compared column differs between the
// two sides. The NULL-handling branch depends on the type class: some
// engines resolve three-valued comparisons differently for text than for
// numeric and date representations.
func (p *Plan) differencePredicate() string {
	if len(p.compareCols) == 0 {
		return "1=0"
	}

	var parts []string
	for _, col := range p.compareCols {
		s := srcAlias + "." + col.Name
		t := tgtAlias + "." + col.Name
		var cmp string
		if col.Class == catalog.ClassText {
			cmp = fmt.Sprintf("(%s IS NULL AND %s IS NOT NULL) OR (%s IS NOT NULL AND %s IS NULL) OR (%s IS NOT NULL AND %s IS NOT NULL AND %s != %s)",
				s, t, s, t, s, t, s, t)
		} else {
			cmp = fmt.Sprintf("(%s IS NULL AND %s IS NOT NULL) OR (%s IS NOT NULL AND %s IS NULL) OR (%s != %s)",
				s, t, s, t, s, t)
		}
		parts = append(parts, "("+cmp+")")
	}
	return strings.Join(parts, " OR ")
}

func (p *Plan) joinCondition() string {
	var conds []string
	for _, key := range p.keys {
		conds = append(conds, fmt.Sprintf("%s.%s = %s.%s", tgtAlias, key.Name, srcAlias, key.Name))
	}
	return strings.Join(conds, " AND ")
}

// writeFilters appends the mapping predicate and the incremental lower bound
// for the given side alias. Only valid where the source alias is in scope.
func (p *Plan) writeFilters(b *strings.Builder, alias string, bound *time.Time) {
	p.writeWhere(b)
	p.writeIncremental(b, alias, bound)
}

// writeWhere appends the mapping's predicate. The predicate is written
// against the source alias, so it may only appear in a scope where that
// alias is defined.
func (p *Plan) writeWhere(b *strings.Builder) {
	if p.mapping.Where != "" {
		fmt.Fprintf(b, " AND (%s)", p.mapping.Where)
	}
}

func (p *Plan) writeIncremental(b *strings.Builder, alias string, bound *time.Time) {
	if p.mapping.Incremental && bound != nil {
		lit := p.dialect.TimestampLiteral(bound.Format("2006-01-02 15:04:05.000000"))
		fmt.Fprintf(b, " AND %s.%s > %s", alias, strings.ToUpper(p.mapping.IncrementalCol), lit)
	}
}

// textExpr renders a column as order-stable text for cursor capture and
// detail diffing.
func (p *Plan) textExpr(alias string, col catalog.Column) string {
	expr := alias + "." + col.Name
	switch col.Class {
	case catalog.ClassDate:
		return p.dialect.DateTextExpr(expr)
	case catalog.ClassTimestamp:
		return p.dialect.TimestampTextExpr(expr)
	default:
		return p.dialect.TextExpr(expr)
	}
}

// keyLiteral renders a cursor component as a literal for its type class.
// Numeric components must parse as numbers; anything else in a numeric key
// position means the cursor is corrupt.
func (p *Plan) keyLiteral(col catalog.Column, val string) (string, error) {
	switch col.Class {
	case catalog.ClassText:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case catalog.ClassDate:
		return p.dialect.DateLiteral(val), nil
	case catalog.ClassTimestamp:
		return p.dialect.TimestampLiteral(val), nil
	default:
		if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
			return "", fmt.Errorf("%w: %q is not numeric for key %s", ErrCursorDecode, val, col.Name)
		}
		return strings.TrimSpace(val), nil
	}
}
