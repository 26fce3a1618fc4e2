package link

import (
	"fmt"

	"github.com/crossval/crossval/internal/config"
)

// Dialect abstracts the SQL differences between supported target engines:
// how the source is addressed through the link, literal and text rendering
// for key values, catalog lookups, and the persistence DDL.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(cfg config.TargetConfig) string

	// RemoteTable renders a source-side table reference reachable through
	// the cross-database link.
	RemoteTable(table string) string
	// Placeholder returns the bind marker for the i-th parameter (1-based).
	Placeholder(i int) string
	// LimitClause bounds a key-ordered query to n rows.
	LimitClause(n int) string

	// TextExpr renders an arbitrary column as text for cursor capture.
	TextExpr(expr string) string
	DateTextExpr(expr string) string
	TimestampTextExpr(expr string) string

	// DateLiteral and TimestampLiteral render cursor components back into
	// order-comparable literals.
	DateLiteral(val string) string
	TimestampLiteral(val string) string

	// ColumnsQuery returns the remote catalog lookup for a source table.
	ColumnsQuery(table string) (string, []any)
	// TableExistsQuery returns a count query taking the table name as its
	// only parameter, evaluated on the target side.
	TableExistsQuery() string
	// LinkProbeQuery returns a cheap query that fails when the path back to
	// the source is not usable.
	LinkProbeQuery() (string, []any)

	ProgressTableDDL(table string) string
	ResultsTableDDL(table string) string
	DetailsTableDDL(table, resultsTable string) string

	CurrentTimestamp() string
	// ReturningIDClause retrieves the generated identity of an insert; pos is
	// the bind position for engines that return it through an out bind.
	ReturningIDClause(pos int) string
	UsesOutBind() bool
}

// NewDialect selects the dialect for a target type.
func NewDialect(targetType string, lc config.LinkConfig) (Dialect, error) {
	switch targetType {
	case "oracle":
		return &OracleDialect{LinkName: lc.Name}, nil
	case "postgresql":
		return &PostgresDialect{ForeignSchema: lc.ForeignSchema}, nil
	default:
		return nil, fmt.Errorf("unsupported target type %q", targetType)
	}
}
