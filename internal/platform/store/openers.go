package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	// database/sql drivers for the non-pg backends
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// openPG opens pgxpool and wraps it with the pg adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL())
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	ping := func(toCtx context.Context) error { return pool.Ping(toCtx) }
	if err := pingWithRetry(ctx, cfg, ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	// publish the adapter only after the pool is healthy
	return newPGAdapter(pool, s.Log, cfg.LogSQL, cfg.SlowQueryMs), nil
}

// openSQL opens a database/sql backend (mysql or sqlite) with the same
// ping/backoff guardrails as postgres
func openSQL(ctx context.Context, cfg Config, s *Store, driver, dsn string) (TxRunner, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if driver == "sqlite" {
		// sqlite files serialize writers; one conn avoids SQLITE_BUSY churn
		db.SetMaxOpenConns(1)
	}

	ping := func(toCtx context.Context) error { return db.PingContext(toCtx) }
	if err := pingWithRetry(ctx, cfg, ping); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", driver, err)
	}

	return newSQLAdapter(db, s.Log, cfg.LogSQL, cfg.SlowQueryMs), nil
}

// pingWithRetry pings with exponential backoff until success, exhaustion, or ctx cancel
func pingWithRetry(ctx context.Context, cfg Config, ping func(context.Context) error) error {
	maxAttempts := cfg.ConnectRetries
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for i := 0; i < maxAttempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = ping(toCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}
	return fmt.Errorf("ping failed after %d attempts: %w", maxAttempts, lastErr)
}
