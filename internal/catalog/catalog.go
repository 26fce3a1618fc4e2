// Package catalog reads column metadata for source tables through the
// cross-database link. Lookups are cached for the run; repeated remote
// catalog round trips are costly.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/crossval/crossval/internal/link"
)

// TypeClass groups declared column types by how they compare and how their
// values render as order-comparable text.
type TypeClass int

const (
	ClassText TypeClass = iota
	ClassNumeric
	ClassDate
	ClassTimestamp
)

func (c TypeClass) String() string {
	switch c {
	case ClassText:
		return "text"
	case ClassDate:
		return "date"
	case ClassTimestamp:
		return "timestamp"
	default:
		return "numeric"
	}
}

// Column is one column of a source table.
type Column struct {
	Name  string
	Class TypeClass
}

// Table holds the ordered column list for one table.
type Table struct {
	Name    string
	Columns []Column
	classes map[string]TypeClass
}

// NewTable builds a Table from an ordered column list.
func NewTable(name string, cols []Column) *Table {
	t := &Table{Name: strings.ToUpper(name), classes: make(map[string]TypeClass, len(cols))}
	for _, c := range cols {
		col := Column{Name: strings.ToUpper(c.Name), Class: c.Class}
		t.Columns = append(t.Columns, col)
		t.classes[col.Name] = col.Class
	}
	return t
}

// Has reports whether the table declares the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.classes[strings.ToUpper(name)]
	return ok
}

// Class returns the type class of the named column.
func (t *Table) Class(name string) (TypeClass, bool) {
	c, ok := t.classes[strings.ToUpper(name)]
	return c, ok
}

// Reader fetches and caches table metadata.
type Reader struct {
	querier link.Querier
	dialect link.Dialect

	mu    sync.Mutex
	cache map[string]*Table
}

// NewReader creates a metadata reader over the given connection.
func NewReader(q link.Querier, d link.Dialect) *Reader {
	return &Reader{querier: q, dialect: d, cache: make(map[string]*Table)}
}

// Columns returns the ordered columns of a source table as seen through the
// link. A table that is not visible (wrong name, missing permissions, link
// down) yields an error with no columns.
func (r *Reader) Columns(ctx context.Context, table string) (*Table, error) {
	key := strings.ToUpper(table)

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	query, args := r.dialect.ColumnsQuery(table)
	rows, err := r.querier.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading columns for %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s is not visible through the link", table)
	}

	t := &Table{Name: key, classes: make(map[string]TypeClass, len(rows))}
	for _, row := range rows {
		name := strings.ToUpper(asString(row["COLUMN_NAME"]))
		class := Classify(asString(row["DATA_TYPE"]))
		t.Columns = append(t.Columns, Column{Name: name, Class: class})
		t.classes[name] = class
	}

	r.mu.Lock()
	r.cache[key] = t
	r.mu.Unlock()
	return t, nil
}

// Classify maps a declared type name to its comparison class.
func Classify(dataType string) TypeClass {
	dt := strings.ToUpper(dataType)
	switch {
	case strings.Contains(dt, "CHAR"), strings.Contains(dt, "CLOB"), strings.Contains(dt, "TEXT"):
		return ClassText
	case dt == "DATE":
		return ClassDate
	case strings.Contains(dt, "TIMESTAMP"), strings.Contains(dt, "TIME"):
		return ClassTimestamp
	default:
		return ClassNumeric
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
