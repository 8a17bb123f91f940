package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ivodsync/internal/platform/logger"
)

// sqlAdapter wraps database/sql and implements RowQuerier + TxRunner.
// It carries MySQL and SQLite; Postgres goes through the native pgx adapter
type sqlAdapter struct {
	db     *sql.DB
	log    logger.Logger
	trace  bool
	slowMs int
}

func newSQLAdapter(db *sql.DB, log logger.Logger, trace bool, slowMs int) *sqlAdapter {
	return &sqlAdapter{db: db, log: log, trace: trace, slowMs: slowMs}
}

func (a *sqlAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("sql: nil adapter")
	}
	return a.db.PingContext(ctx)
}

func (a *sqlAdapter) Close() error { return a.db.Close() }

func (a *sqlAdapter) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := a.db.ExecContext(ctx, q, args...)
	a.emit(ctx, q, start, err)
	if err != nil {
		return sqlTag{}, err
	}
	return newSQLTag(res), nil
}

func (a *sqlAdapter) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := a.db.QueryContext(ctx, q, args...)
	a.emit(ctx, q, start, err)
	if err != nil {
		return nil, err
	}
	return sqlRows{r: rs}, nil
}

func (a *sqlAdapter) QueryRow(ctx context.Context, q string, args ...any) Row {
	start := time.Now()
	r := a.db.QueryRowContext(ctx, q, args...)
	return sqlRow{
		r: r,
		after: func(scanErr error) {
			a.emit(ctx, q, start, scanErr)
		},
	}
}

func (a *sqlAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	q := sqlTxQuerier{tx: tx, a: a}
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (a *sqlAdapter) emit(ctx context.Context, q string, start time.Time, err error) {
	if a == nil || !a.trace {
		return
	}
	elapsed := time.Since(start)
	ev := a.log.Debug()
	if a.slowMs > 0 && elapsed >= time.Duration(a.slowMs)*time.Millisecond {
		ev = a.log.Warn().Bool("slow", true)
	}
	ev.Str("sql", q).Dur("elapsed", elapsed).Err(err).Msg("sql query")
}

// adapters for database/sql to our tiny Row/Rows/CommandTag

type sqlRow struct {
	r     *sql.Row
	after func(error)
}

func (x sqlRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type sqlRows struct{ r *sql.Rows }

func (x sqlRows) Next() bool            { return x.r.Next() }
func (x sqlRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x sqlRows) Err() error            { return x.r.Err() }
func (x sqlRows) Close()                { _ = x.r.Close() }
func (x sqlRows) Columns() []string {
	cols, err := x.r.Columns()
	if err != nil {
		return nil
	}
	return cols
}

type sqlTag struct {
	affected int64
	known    bool
}

func newSQLTag(res sql.Result) sqlTag {
	n, err := res.RowsAffected()
	if err != nil {
		return sqlTag{}
	}
	return sqlTag{affected: n, known: true}
}

func (t sqlTag) String() string {
	if !t.known {
		return "OK"
	}
	return fmt.Sprintf("OK %d", t.affected)
}

func (t sqlTag) RowsAffected() int64 { return t.affected }

// sqlTxQuerier uses *sql.Tx to satisfy RowQuerier inside a Tx
type sqlTxQuerier struct {
	tx *sql.Tx
	a  *sqlAdapter
}

func (t sqlTxQuerier) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, q, args...)
	t.a.emit(ctx, q, start, err)
	if err != nil {
		return sqlTag{}, err
	}
	return newSQLTag(res), nil
}

func (t sqlTxQuerier) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.tx.QueryContext(ctx, q, args...)
	t.a.emit(ctx, q, start, err)
	if err != nil {
		return nil, err
	}
	return sqlRows{r: rs}, nil
}

func (t sqlTxQuerier) QueryRow(ctx context.Context, q string, args ...any) Row {
	start := time.Now()
	r := t.tx.QueryRowContext(ctx, q, args...)
	return sqlRow{
		r: r,
		after: func(scanErr error) {
			t.a.emit(ctx, q, start, scanErr)
		},
	}
}
