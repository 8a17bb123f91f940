package store

import (
	"context"
	"errors"
	"time"

	"ivodsync/internal/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgAdapter wraps pgxpool and implements RowQuerier + TxRunner.
// When tracing is enabled every statement is logged at debug with timing
type pgAdapter struct {
	pool   *pgxpool.Pool
	log    logger.Logger
	trace  bool
	slowMs int
}

func newPGAdapter(pool *pgxpool.Pool, log logger.Logger, trace bool, slowMs int) *pgAdapter {
	return &pgAdapter{pool: pool, log: log, trace: trace, slowMs: slowMs}
}

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("pg: nil adapter")
	}
	return a.pool.Ping(ctx)
}

func (a *pgAdapter) Close() error { a.pool.Close(); return nil }

func (a *pgAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := a.pool.Exec(ctx, sql, args...)
	a.emit(ctx, sql, start, err)
	return pgTag{ct}, err
}

func (a *pgAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := a.pool.Query(ctx, sql, args...)
	a.emit(ctx, sql, start, err)
	if err != nil {
		return nil, err
	}
	return pgRows{r: rs}, nil
}

func (a *pgAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := a.pool.QueryRow(ctx, sql, args...)
	// wrap to emit after Scan completes, capturing the Scan error
	return pgRow{
		r: r,
		after: func(scanErr error) {
			a.emit(ctx, sql, start, scanErr)
		},
	}
}

func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	q := pgTxQuerier{tx: tx, a: a}
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// emit logs a statement when tracing is on; slow statements log at warn
func (a *pgAdapter) emit(ctx context.Context, sql string, start time.Time, err error) {
	if a == nil || !a.trace {
		return
	}
	elapsed := time.Since(start)
	ev := a.log.Debug()
	if a.slowMs > 0 && elapsed >= time.Duration(a.slowMs)*time.Millisecond {
		ev = a.log.Warn().Bool("slow", true)
	}
	ev.Str("sql", sql).Dur("elapsed", elapsed).Err(err).Msg("pg query")
}

// adapters for pgx to our tiny Row/Rows/CommandTag

type pgRow struct {
	r     pgx.Row
	after func(error)
}

func (x pgRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type pgRows struct{ r pgx.Rows }

func (x pgRows) Next() bool            { return x.r.Next() }
func (x pgRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x pgRows) Err() error            { return x.r.Err() }
func (x pgRows) Close()                { x.r.Close() }
func (x pgRows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = string(f[i].Name)
	}
	return out
}

type pgTag struct{ t pgconn.CommandTag }

func (t pgTag) String() string      { return t.t.String() }
func (t pgTag) RowsAffected() int64 { return t.t.RowsAffected() }

// pgTxQuerier uses pgx.Tx to satisfy RowQuerier inside a Tx
// it mirrors pgAdapter emit behavior so statements inside transactions are also traced
type pgTxQuerier struct {
	tx pgx.Tx
	a  *pgAdapter
}

func (t pgTxQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := t.tx.Exec(ctx, sql, args...)
	t.a.emit(ctx, sql, start, err)
	return pgTag{ct}, err
}

func (t pgTxQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.tx.Query(ctx, sql, args...)
	t.a.emit(ctx, sql, start, err)
	if err != nil {
		return nil, err
	}
	return pgRows{r: rs}, nil
}

func (t pgTxQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := t.tx.QueryRow(ctx, sql, args...)
	return pgRow{
		r: r,
		after: func(scanErr error) {
			t.a.emit(ctx, sql, start, scanErr)
		},
	}
}
