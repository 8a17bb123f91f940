// Package repo provides the transcript repository over the store seam.
// All SQL is written with '?' placeholders and rebound per dialect
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/transcripts/domain"
)

// Table is the one table this system owns
const Table = "ivod_transcripts"

type (
	repo struct {
		q store.RowQuerier
		d store.Dialect
	}

	// Binder binds the repo to a querier (pool or open transaction)
	Binder struct{ D store.Dialect }
)

// New constructs a repo binder for the given dialect
func New(d store.Dialect) Binder { return Binder{D: d} }

// Bind returns a Storage view over q; pass a Tx querier to join a transaction
func (b Binder) Bind(q store.RowQuerier) Storage { return &repo{q: q, d: b.D} }

// Storage defines the transcript repository
type Storage interface {
	EnsureTable(ctx context.Context) error
	TableExists(ctx context.Context) (bool, error)
	Get(ctx context.Context, ivodID int64) (*domain.Transcript, error)
	GetByIDs(ctx context.Context, ivodIDs []int64) ([]domain.Transcript, error)
	Upsert(ctx context.Context, rec *domain.Transcript) error
	ApplyPatch(ctx context.Context, ivodID int64, p domain.Patch) error
	QueryFailed(ctx context.Context, kind domain.Kind, maxRetries int) ([]domain.Transcript, error)
	QueryUpdatedSince(ctx context.Context, since time.Time) ([]domain.Transcript, error)
	ListAll(ctx context.Context) ([]domain.Transcript, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// selectCols must stay aligned with scanTranscript
const selectCols = `ivod_id, ivod_url, date, meeting_code, meeting_code_str, category,
	committee_names, video_type, video_start, video_end, video_length, video_url,
	title, speaker_name, meeting_time, meeting_name,
	ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated`

// EnsureTable creates the transcript table when missing
func (r *repo) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ivod_id          BIGINT PRIMARY KEY,
		ivod_url         TEXT NOT NULL,
		date             VARCHAR(10) NOT NULL,
		meeting_code     TEXT,
		meeting_code_str TEXT,
		category         TEXT,
		committee_names  %s,
		video_type       TEXT,
		video_start      TEXT,
		video_end        TEXT,
		video_length     TEXT,
		video_url        TEXT,
		title            TEXT,
		speaker_name     TEXT,
		meeting_time     %s,
		meeting_name     TEXT,
		ai_transcript    %s,
		ai_status        VARCHAR(16) NOT NULL DEFAULT 'pending',
		ai_retries       INTEGER NOT NULL DEFAULT 0,
		ly_transcript    %s,
		ly_status        VARCHAR(16) NOT NULL DEFAULT 'pending',
		ly_retries       INTEGER NOT NULL DEFAULT 0,
		last_updated     %s NOT NULL
	)`, Table, r.d.TypeCommittees(), r.d.TypeTimestamp(),
		r.d.TypeLongText(), r.d.TypeLongText(), r.d.TypeTimestamp())

	if _, err := r.q.Exec(ctx, ddl); err != nil {
		return perr.FromDBf(err, "create table %s", Table)
	}
	return nil
}

// TableExists reports whether the transcript table is present
func (r *repo) TableExists(ctx context.Context) (bool, error) {
	n, err := store.Scalar[int64](ctx, r.q, r.d.Rebind(r.d.TableExistsQuery()), Table)
	if err != nil {
		return false, perr.FromDBf(err, "check table %s", Table)
	}
	return n > 0, nil
}

// Get returns one record or perr.ErrNotFound
func (r *repo) Get(ctx context.Context, ivodID int64) (*domain.Transcript, error) {
	q := r.d.Rebind("SELECT " + selectCols + " FROM " + Table + " WHERE ivod_id = ?")
	t, err := store.One(ctx, r.q, r.scanTranscript, q, ivodID)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil, err
		}
		return nil, perr.FromDBf(err, "get transcript %d", ivodID)
	}
	return &t, nil
}

// GetByIDs returns the stored records among ivodIDs, ordered (date, id)
func (r *repo) GetByIDs(ctx context.Context, ivodIDs []int64) ([]domain.Transcript, error) {
	if len(ivodIDs) == 0 {
		return nil, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ivodIDs)), ",")
	q := r.d.Rebind("SELECT " + selectCols + " FROM " + Table +
		" WHERE ivod_id IN (" + ph + ") ORDER BY date, ivod_id")
	args := make([]any, len(ivodIDs))
	for i, id := range ivodIDs {
		args[i] = id
	}
	out, err := store.Many(ctx, r.q, r.scanTranscript, q, args...)
	if err != nil {
		return nil, perr.FromDBf(err, "get %d transcripts by id", len(ivodIDs))
	}
	return out, nil
}

// Upsert writes rec with get-then-update-else-insert semantics, which every
// backend supports without conflict-clause differences
func (r *repo) Upsert(ctx context.Context, rec *domain.Transcript) error {
	_, err := r.Get(ctx, rec.IVODID)
	switch {
	case err == nil:
		return r.update(ctx, rec)
	case perr.IsCode(err, perr.ErrorCodeNotFound):
		return r.insert(ctx, rec)
	default:
		return err
	}
}

func (r *repo) insert(ctx context.Context, rec *domain.Transcript) error {
	args, err := r.bindArgs(rec)
	if err != nil {
		return err
	}
	q := r.d.Rebind("INSERT INTO " + Table + " (" + selectCols + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?,", 23), ",") + ")")
	if _, err := r.q.Exec(ctx, q, args...); err != nil {
		return perr.FromDBf(err, "insert transcript %d", rec.IVODID)
	}
	return nil
}

func (r *repo) update(ctx context.Context, rec *domain.Transcript) error {
	args, err := r.bindArgs(rec)
	if err != nil {
		return err
	}
	// bindArgs puts ivod_id first; move it to the WHERE position
	args = append(args[1:], args[0])

	var sb strings.Builder
	sb.WriteString("UPDATE " + Table + " SET ")
	cols := []string{
		"ivod_url", "date", "meeting_code", "meeting_code_str", "category",
		"committee_names", "video_type", "video_start", "video_end", "video_length",
		"video_url", "title", "speaker_name", "meeting_time", "meeting_name",
		"ai_transcript", "ai_status", "ai_retries", "ly_transcript", "ly_status",
		"ly_retries", "last_updated",
	}
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c + " = ?")
	}
	sb.WriteString(" WHERE ivod_id = ?")

	if _, err := r.q.Exec(ctx, r.d.Rebind(sb.String()), args...); err != nil {
		return perr.FromDBf(err, "update transcript %d", rec.IVODID)
	}
	return nil
}

// ApplyPatch updates one transcript side in place and touches last_updated
func (r *repo) ApplyPatch(ctx context.Context, ivodID int64, p domain.Patch) error {
	if p.Kind != domain.KindAI && p.Kind != domain.KindLY {
		return perr.Dataf("patch needs a transcript kind")
	}

	var sb strings.Builder
	var args []any
	set := func(col string, v any) {
		if len(args) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col + " = ?")
		args = append(args, v)
	}

	sb.WriteString("UPDATE " + Table + " SET ")
	prefix := string(p.Kind)
	if p.Transcript != nil {
		set(prefix+"_transcript", *p.Transcript)
	}
	if p.Status != nil {
		set(prefix+"_status", string(*p.Status))
	}
	if p.Retries != nil {
		set(prefix+"_retries", *p.Retries)
	}
	if len(args) == 0 {
		return perr.Dataf("empty patch for transcript %d", ivodID)
	}
	set("last_updated", r.d.EncodeTime(clock.Ptr(clock.Now())))
	sb.WriteString(" WHERE ivod_id = ?")
	args = append(args, ivodID)

	tag, err := r.q.Exec(ctx, r.d.Rebind(sb.String()), args...)
	if err != nil {
		return perr.FromDBf(err, "patch transcript %d", ivodID)
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("transcript %d not found", ivodID)
	}
	return nil
}

// QueryFailed returns failed rows for one kind that still have retry budget,
// ordered (date, id) so the circuit breaker sees days in order
func (r *repo) QueryFailed(ctx context.Context, kind domain.Kind, maxRetries int) ([]domain.Transcript, error) {
	prefix := string(kind)
	q := r.d.Rebind("SELECT " + selectCols + " FROM " + Table +
		" WHERE " + prefix + "_status = ? AND " + prefix + "_retries < ?" +
		" ORDER BY date, ivod_id")
	out, err := store.Many(ctx, r.q, r.scanTranscript, q, string(domain.StatusFailed), maxRetries)
	if err != nil {
		return nil, perr.FromDBf(err, "query failed %s transcripts", kind)
	}
	return out, nil
}

// QueryUpdatedSince returns rows touched at or after since, ordered (date, id)
func (r *repo) QueryUpdatedSince(ctx context.Context, since time.Time) ([]domain.Transcript, error) {
	q := r.d.Rebind("SELECT " + selectCols + " FROM " + Table +
		" WHERE last_updated >= ? ORDER BY date, ivod_id")
	out, err := store.Many(ctx, r.q, r.scanTranscript, q, r.d.EncodeTime(&since))
	if err != nil {
		return nil, perr.FromDBf(err, "query recently updated transcripts")
	}
	return out, nil
}

// ListAll returns every record ordered (date, id)
func (r *repo) ListAll(ctx context.Context) ([]domain.Transcript, error) {
	q := "SELECT " + selectCols + " FROM " + Table + " ORDER BY date, ivod_id"
	out, err := store.Many(ctx, r.q, r.scanTranscript, q)
	if err != nil {
		return nil, perr.FromDBf(err, "list transcripts")
	}
	return out, nil
}

// DeleteAll clears the table (restore --force-clear)
func (r *repo) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, "DELETE FROM "+Table); err != nil {
		return perr.FromDBf(err, "clear %s", Table)
	}
	return nil
}

// Count returns the number of stored records
func (r *repo) Count(ctx context.Context) (int64, error) {
	n, err := store.Scalar[int64](ctx, r.q, "SELECT COUNT(*) FROM "+Table)
	if err != nil {
		return 0, perr.FromDBf(err, "count %s", Table)
	}
	return n, nil
}

// bindArgs renders rec into the insert arg list, selectCols order
func (r *repo) bindArgs(rec *domain.Transcript) ([]any, error) {
	committees, err := r.d.EncodeCommittees(rec.CommitteeNames)
	if err != nil {
		return nil, err
	}
	last := rec.LastUpdated
	if last.IsZero() {
		last = clock.Now()
	}
	return []any{
		rec.IVODID, rec.IVODURL, clock.FormatDate(rec.Date),
		rec.MeetingCode, rec.MeetingCodeStr, rec.Category,
		committees, rec.VideoType, rec.VideoStart, rec.VideoEnd,
		rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName,
		r.d.EncodeTime(rec.MeetingTime), rec.MeetingName,
		rec.AITranscript, string(rec.AIStatus), rec.AIRetries,
		rec.LYTranscript, string(rec.LYStatus), rec.LYRetries,
		r.d.EncodeTime(&last),
	}, nil
}

// scanTranscript maps one row, selectCols order
func (r *repo) scanTranscript(row store.Row) (domain.Transcript, error) {
	var (
		t       domain.Transcript
		dateStr string
		cs      = r.d.CommitteeScan()
		mt      = r.d.TimeScan()
		lu      = r.d.TimeScan()
	)
	err := row.Scan(
		&t.IVODID, &t.IVODURL, &dateStr,
		&t.MeetingCode, &t.MeetingCodeStr, &t.Category,
		cs.Dest(), &t.VideoType, &t.VideoStart, &t.VideoEnd,
		&t.VideoLength, &t.VideoURL, &t.Title, &t.SpeakerName,
		mt.Dest(), &t.MeetingName,
		&t.AITranscript, (*string)(&t.AIStatus), &t.AIRetries,
		&t.LYTranscript, (*string)(&t.LYStatus), &t.LYRetries,
		lu.Dest(),
	)
	if err != nil {
		return domain.Transcript{}, err
	}

	if t.Date, err = clock.ParseDate(dateStr); err != nil {
		return domain.Transcript{}, err
	}
	if t.CommitteeNames, err = cs.Value(); err != nil {
		return domain.Transcript{}, err
	}
	if t.MeetingTime, err = mt.Value(); err != nil {
		return domain.Transcript{}, err
	}
	luv, err := lu.Value()
	if err != nil {
		return domain.Transcript{}, err
	}
	if luv != nil {
		t.LastUpdated = *luv
	}
	return t, nil
}
