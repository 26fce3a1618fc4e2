// Package link provides query execution against the target database and,
// through it, the cross-database link back to the source. Connections are
// owned by an explicit Manager injected into collaborators; there is no
// process-global pool state.
package link

import (
	"context"
	"database/sql"
	"fmt"

	go_ora "github.com/sijms/go-ora/v2"
)

// Querier executes queries on one database endpoint. Implementations must be
// safe for concurrent use.
type Querier interface {
	// QueryRows executes a query and returns all rows as ordered maps keyed
	// by upper-cased column name.
	QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	// QueryValue executes a query expected to return a single scalar.
	QueryValue(ctx context.Context, query string, args ...any) (any, error)
	// Exec executes a statement (DML or DDL) without returning rows.
	Exec(ctx context.Context, query string, args ...any) error
	// InsertReturningID executes an insert and returns the generated identity.
	InsertReturningID(ctx context.Context, query string, args ...any) (int64, error)
	Ping(ctx context.Context) error
}

// Conn is a Querier over a pooled database/sql connection.
type Conn struct {
	db      *sql.DB
	dialect Dialect
}

// Dialect exposes the dialect this connection speaks.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

func (c *Conn) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[upper(col)] = vals[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

func (c *Conn) QueryValue(ctx context.Context, query string, args ...any) (any, error) {
	var val any
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&val); err != nil {
		return nil, fmt.Errorf("executing scalar query: %w", err)
	}
	return val, nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

// InsertReturningID appends the dialect's identity-returning clause and
// executes the insert. Oracle returns the identity through an out bind;
// PostgreSQL returns it as a result row.
func (c *Conn) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	full := query + " " + c.dialect.ReturningIDClause(len(args)+1)
	if c.dialect.UsesOutBind() {
		outArgs := append(append([]any{}, args...), go_ora.Out{Dest: &id})
		if _, err := c.db.ExecContext(ctx, full, outArgs...); err != nil {
			return 0, fmt.Errorf("executing insert: %w", err)
		}
		return id, nil
	}
	if err := c.db.QueryRowContext(ctx, full, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("executing insert: %w", err)
	}
	return id, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

func upper(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}
