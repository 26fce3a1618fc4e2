package link

import (
	"fmt"

	// PostgreSQL driver (database/sql adapter over pgx)
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/crossval/crossval/internal/config"
)

// PostgresDialect targets PostgreSQL. The source is reached through a
// postgres_fdw foreign schema imported on the target.
type PostgresDialect struct {
	ForeignSchema string
}

func (d *PostgresDialect) Name() string       { return "postgresql" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) DSN(cfg config.TargetConfig) string {
	mode := "disable"
	if cfg.SSL {
		mode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, mode)
}

func (d *PostgresDialect) RemoteTable(table string) string {
	return d.ForeignSchema + "." + table
}

func (d *PostgresDialect) Placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

func (d *PostgresDialect) LimitClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

func (d *PostgresDialect) TextExpr(expr string) string {
	return fmt.Sprintf("(%s)::text", expr)
}

func (d *PostgresDialect) DateTextExpr(expr string) string {
	return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS')", expr)
}

func (d *PostgresDialect) TimestampTextExpr(expr string) string {
	return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS.FF6')", expr)
}

func (d *PostgresDialect) DateLiteral(val string) string {
	return fmt.Sprintf("TIMESTAMP '%s'", escapeQuotes(val))
}

func (d *PostgresDialect) TimestampLiteral(val string) string {
	return fmt.Sprintf("TIMESTAMP '%s'", escapeQuotes(val))
}

func (d *PostgresDialect) ColumnsQuery(table string) (string, []any) {
	q := `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = $1 AND table_name = lower($2) ORDER BY ordinal_position`
	return q, []any{d.ForeignSchema, table}
}

func (d *PostgresDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = lower($1)`
}

func (d *PostgresDialect) LinkProbeQuery() (string, []any) {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1`, []any{d.ForeignSchema}
}

func (d *PostgresDialect) ProgressTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    table_name VARCHAR(100) NOT NULL,
    status VARCHAR(20) NOT NULL,
    total_rows BIGINT,
    processed_rows BIGINT DEFAULT 0,
    matched_rows BIGINT DEFAULT 0,
    mismatched_rows BIGINT DEFAULT 0,
    missing_rows BIGINT DEFAULT 0,
    last_processed_key VARCHAR(1000),
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    error_message VARCHAR(4000),
    CONSTRAINT unique_table_progress UNIQUE (table_name, started_at)
)`, table)
}

func (d *PostgresDialect) ResultsTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    table_name VARCHAR(100) NOT NULL,
    total_rows BIGINT,
    matched_rows BIGINT,
    mismatched_rows BIGINT,
    missing_in_target BIGINT,
    extra_in_target BIGINT,
    validation_duration_seconds DOUBLE PRECISION,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    status VARCHAR(20) NOT NULL,
    error_message VARCHAR(4000)
)`, table)
}

func (d *PostgresDialect) DetailsTableDDL(table, resultsTable string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    validation_id BIGINT NOT NULL REFERENCES %s (id),
    table_name VARCHAR(100) NOT NULL,
    mismatch_type VARCHAR(20) NOT NULL,
    key_values VARCHAR(1000),
    column_name VARCHAR(100),
    source_value VARCHAR(4000),
    target_value VARCHAR(4000),
    capture_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, table, resultsTable)
}

func (d *PostgresDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}

func (d *PostgresDialect) ReturningIDClause(int) string {
	return "RETURNING id"
}

func (d *PostgresDialect) UsesOutBind() bool { return false }
