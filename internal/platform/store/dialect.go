package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
)

// Dialect hides the backend differences repos must not care about:
// placeholder style, the committee list encoding, timestamp columns, and the
// DDL fragments for both
type Dialect interface {
	Name() string

	// Rebind rewrites '?' placeholders into the backend's style.
	// Queries in this codebase are always written with '?'
	Rebind(query string) string

	// DDL column fragments
	TypeTimestamp() string
	TypeCommittees() string
	TypeLongText() string

	// TableExistsQuery returns a one-arg query (table name, '?' placeholder)
	// selecting a count > 0 when the table exists
	TableExistsQuery() string

	// EncodeCommittees converts a name list into a bind arg
	EncodeCommittees(names []string) (any, error)

	// CommitteeScan returns a scan target for a committee column
	CommitteeScan() CommitteeScan

	// EncodeTime converts an optional timestamp into a bind arg
	EncodeTime(t *time.Time) any

	// TimeScan returns a scan target for a nullable timestamp column
	TimeScan() TimeScan
}

// CommitteeScan is a reusable scan destination for committee columns
type CommitteeScan interface {
	Dest() any
	Value() ([]string, error)
}

// TimeScan is a reusable scan destination for nullable timestamp columns
type TimeScan interface {
	Dest() any
	Value() (*time.Time, error)
}

// PGDialect speaks native Postgres: $n placeholders, text[], timestamptz
type PGDialect struct{}

// Name implements Dialect
func (PGDialect) Name() string { return BackendPostgres }

// Rebind rewrites ? to $1..$n, skipping quoted literals
func (PGDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (PGDialect) TypeTimestamp() string  { return "TIMESTAMPTZ" }
func (PGDialect) TypeCommittees() string { return "TEXT[]" }
func (PGDialect) TypeLongText() string   { return "TEXT" }

func (PGDialect) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?"
}

func (PGDialect) EncodeCommittees(names []string) (any, error) {
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (PGDialect) CommitteeScan() CommitteeScan { return &pgCommitteeScan{} }

func (PGDialect) EncodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (PGDialect) TimeScan() TimeScan { return &pgTimeScan{} }

// pgx scans text[] into []string and NULL into a nil pointer directly

type pgCommitteeScan struct{ v []string }

func (s *pgCommitteeScan) Dest() any                { return &s.v }
func (s *pgCommitteeScan) Value() ([]string, error) { return s.v, nil }

type pgTimeScan struct{ v *time.Time }

func (s *pgTimeScan) Dest() any                  { return &s.v }
func (s *pgTimeScan) Value() (*time.Time, error) { return s.v, nil }

// MySQLDialect: ? placeholders, JSON committee column, DATETIME timestamps
// (parseTime=true makes the driver scan DATETIME as time.Time)
type MySQLDialect struct{}

func (MySQLDialect) Name() string               { return BackendMySQL }
func (MySQLDialect) Rebind(query string) string { return query }
func (MySQLDialect) TypeTimestamp() string      { return "DATETIME" }
func (MySQLDialect) TypeCommittees() string     { return "JSON" }
func (MySQLDialect) TypeLongText() string       { return "LONGTEXT" }

func (MySQLDialect) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (MySQLDialect) EncodeCommittees(names []string) (any, error) { return jsonCommittees(names) }
func (MySQLDialect) CommitteeScan() CommitteeScan                 { return &jsonCommitteeScan{} }

func (MySQLDialect) EncodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// DATETIME has no zone; store the wall clock of the UTC+8 stamp
	return t.In(clock.Taipei).Format("2006-01-02 15:04:05")
}

func (MySQLDialect) TimeScan() TimeScan { return &nullTimeScan{} }

// SQLiteDialect: ? placeholders, JSON-in-TEXT committees, RFC3339 TEXT timestamps
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string               { return BackendSQLite }
func (SQLiteDialect) Rebind(query string) string { return query }
func (SQLiteDialect) TypeTimestamp() string      { return "TEXT" }
func (SQLiteDialect) TypeCommittees() string     { return "TEXT" }
func (SQLiteDialect) TypeLongText() string       { return "TEXT" }

func (SQLiteDialect) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}

func (SQLiteDialect) EncodeCommittees(names []string) (any, error) { return jsonCommittees(names) }
func (SQLiteDialect) CommitteeScan() CommitteeScan                 { return &jsonCommitteeScan{} }

func (SQLiteDialect) EncodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.In(clock.Taipei).Format(time.RFC3339)
}

func (SQLiteDialect) TimeScan() TimeScan { return &textTimeScan{} }

// shared JSON committee codec for mysql and sqlite

func jsonCommittees(names []string) (any, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeData, "encode committee_names")
	}
	return string(b), nil
}

type jsonCommitteeScan struct{ v sql.NullString }

func (s *jsonCommitteeScan) Dest() any { return &s.v }

func (s *jsonCommitteeScan) Value() ([]string, error) {
	if !s.v.Valid || strings.TrimSpace(s.v.String) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.v.String), &out); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeParsing, "decode committee_names")
	}
	return out, nil
}

type nullTimeScan struct{ v sql.NullTime }

func (s *nullTimeScan) Dest() any { return &s.v }

func (s *nullTimeScan) Value() (*time.Time, error) {
	if !s.v.Valid {
		return nil, nil
	}
	// DATETIME round-trips as wall clock; re-attach the UTC+8 zone
	t := s.v.Time
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), clock.Taipei)
	return &t, nil
}

type textTimeScan struct{ v sql.NullString }

func (s *textTimeScan) Dest() any { return &s.v }

func (s *textTimeScan) Value() (*time.Time, error) {
	if !s.v.Valid || strings.TrimSpace(s.v.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.v.String)
	if err != nil {
		return nil, perr.Parsingf("decode timestamp %q", s.v.String)
	}
	t = t.In(clock.Taipei)
	return &t, nil
}
