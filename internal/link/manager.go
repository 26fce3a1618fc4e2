package link

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/crossval/crossval/internal/config"
)

// Manager owns the connection pools, keyed by endpoint identity. Pools are
// opened lazily on first use and drained together at shutdown. Safe for
// concurrent use.
type Manager struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager creates an empty pool manager.
func NewManager() *Manager {
	return &Manager{conns: make(map[string]*Conn)}
}

// Get returns the connection for the given target endpoint, opening it on
// first use. Pool size follows cfg.MaxConnections; it should be at least the
// worker concurrency so sibling validations do not starve one another.
func (m *Manager) Get(ctx context.Context, cfg config.TargetConfig, lc config.LinkConfig) (*Conn, error) {
	dialect, err := NewDialect(cfg.Type, lc)
	if err != nil {
		return nil, err
	}
	dsn := dialect.DSN(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.conns[dsn]; ok {
		return conn, nil
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Type, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s at %s:%d: %w", cfg.Type, cfg.Host, cfg.Port, err)
	}

	conn := &Conn{db: db, dialect: dialect}
	m.conns[dsn] = conn
	return conn, nil
}

// Close drains and closes every pool the manager owns.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for dsn, conn := range m.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing pool: %w", err)
		}
		delete(m.conns, dsn)
	}
	return firstErr
}
