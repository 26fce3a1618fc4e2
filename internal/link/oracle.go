package link

import (
	"fmt"
	"strings"

	// Oracle driver
	_ "github.com/sijms/go-ora/v2"

	"github.com/crossval/crossval/internal/config"
)

// OracleDialect targets Oracle. Validation queries run on the target; the
// source is reached through a database link created on the target.
type OracleDialect struct {
	LinkName string
}

func (d *OracleDialect) Name() string       { return "oracle" }
func (d *OracleDialect) DriverName() string { return "oracle" }

func (d *OracleDialect) DSN(cfg config.TargetConfig) string {
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func (d *OracleDialect) RemoteTable(table string) string {
	return table + "@" + d.LinkName
}

func (d *OracleDialect) Placeholder(i int) string {
	return fmt.Sprintf(":%d", i)
}

func (d *OracleDialect) LimitClause(n int) string {
	return fmt.Sprintf("FETCH FIRST %d ROWS ONLY", n)
}

func (d *OracleDialect) TextExpr(expr string) string {
	return fmt.Sprintf("TO_CHAR(%s)", expr)
}

func (d *OracleDialect) DateTextExpr(expr string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD HH24:MI:SS')", expr)
}

func (d *OracleDialect) TimestampTextExpr(expr string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD HH24:MI:SS.FF6')", expr)
}

func (d *OracleDialect) DateLiteral(val string) string {
	return fmt.Sprintf("TO_DATE('%s', 'YYYY-MM-DD HH24:MI:SS')", escapeQuotes(val))
}

func (d *OracleDialect) TimestampLiteral(val string) string {
	return fmt.Sprintf("TO_TIMESTAMP('%s', 'YYYY-MM-DD HH24:MI:SS.FF')", escapeQuotes(val))
}

func (d *OracleDialect) ColumnsQuery(table string) (string, []any) {
	q := fmt.Sprintf(`SELECT column_name, data_type FROM user_tab_columns@%s WHERE table_name = UPPER(:1) ORDER BY column_id`, d.LinkName)
	return q, []any{table}
}

func (d *OracleDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM user_tables WHERE table_name = UPPER(:1)`
}

func (d *OracleDialect) LinkProbeQuery() (string, []any) {
	return fmt.Sprintf(`SELECT 1 FROM dual@%s`, d.LinkName), nil
}

func (d *OracleDialect) ProgressTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id NUMBER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    table_name VARCHAR2(100) NOT NULL,
    status VARCHAR2(20) NOT NULL,
    total_rows NUMBER,
    processed_rows NUMBER DEFAULT 0,
    matched_rows NUMBER DEFAULT 0,
    mismatched_rows NUMBER DEFAULT 0,
    missing_rows NUMBER DEFAULT 0,
    last_processed_key VARCHAR2(1000),
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    error_message VARCHAR2(4000),
    CONSTRAINT unique_table_progress UNIQUE (table_name, started_at)
)`, table)
}

func (d *OracleDialect) ResultsTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id NUMBER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    table_name VARCHAR2(100) NOT NULL,
    total_rows NUMBER,
    matched_rows NUMBER,
    mismatched_rows NUMBER,
    missing_in_target NUMBER,
    extra_in_target NUMBER,
    validation_duration_seconds NUMBER,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    status VARCHAR2(20) NOT NULL,
    error_message VARCHAR2(4000)
)`, table)
}

func (d *OracleDialect) DetailsTableDDL(table, resultsTable string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id NUMBER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    validation_id NUMBER NOT NULL REFERENCES %s (id),
    table_name VARCHAR2(100) NOT NULL,
    mismatch_type VARCHAR2(20) NOT NULL,
    key_values VARCHAR2(1000),
    column_name VARCHAR2(100),
    source_value VARCHAR2(4000),
    target_value VARCHAR2(4000),
    capture_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, table, resultsTable)
}

func (d *OracleDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}

func (d *OracleDialect) ReturningIDClause(pos int) string {
	return fmt.Sprintf("RETURNING id INTO :%d", pos)
}

func (d *OracleDialect) UsesOutBind() bool { return true }

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
