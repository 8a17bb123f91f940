// Package store provides a unified interface over the supported SQL backends.
// Postgres runs on pgxpool; MySQL and SQLite run on database/sql. Repos only
// see the seam below plus a Dialect for the backend-specific bits
package store

import (
	"context"
	"errors"
	"fmt"

	"ivodsync/internal/platform/logger"
)

// Store is the facade over the selected backend.
// zero value is safe but does nothing
type Store struct {
	// Log is the logger used by adapters for SQL tracing
	Log logger.Logger

	// DB is the sql seam for the selected backend
	DB TxRunner

	// Dialect carries the backend-specific SQL shapes
	Dialect Dialect
}

// Row exposes the minimal scan contract a single row needs
type Row interface {
	Scan(dest ...any) error
}

// Rows exposes the minimal iteration and scan for a result set
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

// CommandTag is a tiny interface to inspect command results
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the read and write surface repos use for sql
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner wraps transaction execution around a function
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// Open constructs a Store for the backend named in cfg
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	// defaults for zero logger to avoid nil checks
	s.Log = s.Log.With().Logger()

	switch cfg.Backend {
	case BackendPostgres:
		db, err := openPG(ctx, cfg, s)
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.Dialect = PGDialect{}
	case BackendMySQL:
		db, err := openSQL(ctx, cfg, s, "mysql", cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.Dialect = MySQLDialect{}
	case BackendSQLite:
		db, err := openSQL(ctx, cfg, s, "sqlite", cfg.SQLiteDSN())
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.Dialect = SQLiteDialect{}
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.Backend)
	}

	return s, nil
}

// Guard verifies the configured backend responds
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	if s.DB == nil {
		return errors.New("store: no backend configured")
	}
	if p, ok := any(s.DB).(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Dialect.Name(), err)
		}
	}
	return nil
}

// Close closes the backend gracefully; a nil backend is ignored
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	if c, ok := s.DB.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Option mutates Store during Open
type Option func(*Store) error

// WithLogger sets the logger used by adapters
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}
