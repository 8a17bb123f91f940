package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/platform/testkit"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"
)

func testService(t *testing.T) (*Service, repo.Storage) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "backup_test.db"),
	})
	testkit.MustNoErr(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	s := repo.New(st.Dialect).Bind(st.DB)
	testkit.MustNoErr(t, s.EnsureTable(ctx))
	return New(st), s
}

func seed(t *testing.T, s repo.Storage, id int64) *domain.Transcript {
	t.Helper()
	d, _ := clock.ParseDate("2024-03-15")
	mt := time.Date(2024, 3, 15, 9, 0, 0, 0, clock.Taipei)
	rec := &domain.Transcript{
		IVODID:         id,
		IVODURL:        "https://ivod.ly.gov.tw/Play/Clip/300K/1",
		Date:           d,
		CommitteeNames: []string{"內政委員會"},
		Title:          "第5次會議",
		MeetingTime:    &mt,
		AITranscript:   "主席請",
		AIStatus:       domain.StatusSuccess,
		LYStatus:       domain.StatusFailed,
		LYRetries:      2,
		LastUpdated:    time.Date(2024, 3, 16, 12, 0, 0, 0, clock.Taipei),
	}
	testkit.MustNoErr(t, s.Upsert(context.Background(), rec))
	return rec
}

func TestDumpWritesEnvelope(t *testing.T) {
	svc, s := testService(t)
	seed(t, s, 1)
	seed(t, s, 2)

	path := filepath.Join(t.TempDir(), "out", "snap.json")
	got, err := svc.Dump(context.Background(), path)
	testkit.MustNoErr(t, err)
	if got != path {
		t.Fatalf("Dump returned %q", got)
	}

	data, err := os.ReadFile(path)
	testkit.MustNoErr(t, err)

	var env Envelope
	testkit.MustNoErr(t, json.Unmarshal(data, &env))
	if env.Metadata.RecordCount != 2 || env.Metadata.Version != "1.0" {
		t.Fatalf("metadata = %+v", env.Metadata)
	}
	if env.Metadata.DBBackend != "sqlite" {
		t.Fatalf("db_backend = %q", env.Metadata.DBBackend)
	}
	if len(env.Data) != 2 || env.Data[0].Date != "2024-03-15" {
		t.Fatalf("data = %+v", env.Data)
	}
}

func TestDumpEmptyStoreWritesNothing(t *testing.T) {
	svc, _ := testService(t)
	path := filepath.Join(t.TempDir(), "snap.json")
	got, err := svc.Dump(context.Background(), path)
	testkit.MustNoErr(t, err)
	if got != "" {
		t.Fatalf("Dump on empty store returned %q", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file written despite empty store")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcStore := testService(t)
	want := seed(t, srcStore, 1)

	path := filepath.Join(t.TempDir(), "snap.json")
	_, err := src.Dump(ctx, path)
	testkit.MustNoErr(t, err)

	dst, dstStore := testService(t)
	testkit.MustNoErr(t, dst.Restore(ctx, path, RestoreOptions{ForceCreate: true, ForceClear: true}))

	got, err := dstStore.Get(ctx, 1)
	testkit.MustNoErr(t, err)
	if got.Title != want.Title || got.AITranscript != want.AITranscript {
		t.Fatalf("restored = %+v", got)
	}
	if got.LYRetries != 2 || got.LYStatus != domain.StatusFailed {
		t.Fatalf("LY triple lost: %s/%d", got.LYStatus, got.LYRetries)
	}
	// restore keeps the original stamp rather than minting a fresh one
	if !got.LastUpdated.Equal(want.LastUpdated) {
		t.Fatalf("last_updated = %v, want %v", got.LastUpdated, want.LastUpdated)
	}
}

func TestRestoreDeclinedClear(t *testing.T) {
	ctx := context.Background()
	src, srcStore := testService(t)
	seed(t, srcStore, 1)

	path := filepath.Join(t.TempDir(), "snap.json")
	_, err := src.Dump(ctx, path)
	testkit.MustNoErr(t, err)

	dst, dstStore := testService(t)
	seed(t, dstStore, 7)

	// existing rows, no force, confirm says no
	err = dst.Restore(ctx, path, RestoreOptions{ForceCreate: true})
	testkit.MustErrCode(t, err, perr.ErrorCodeInterrupted)

	// the existing data is untouched
	n, err := dstStore.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 1 {
		t.Fatalf("count = %d after declined restore", n)
	}
}

func TestRestoreRejectsBadEnvelope(t *testing.T) {
	svc, _ := testService(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	testkit.MustNoErr(t, os.WriteFile(path, []byte(`{"data":[]}`), 0o644))

	err := svc.Restore(context.Background(), path, RestoreOptions{ForceCreate: true, ForceClear: true})
	testkit.MustErrCode(t, err, perr.ErrorCodeConfig)

	err = svc.Restore(context.Background(), filepath.Join(t.TempDir(), "missing.json"), RestoreOptions{})
	testkit.MustErrCode(t, err, perr.ErrorCodeNotFound)
}

func TestRestoreCountsBadRecords(t *testing.T) {
	ctx := context.Background()
	svc, s := testService(t)

	env := Envelope{
		Metadata: Metadata{
			BackupTime:  clock.Now().Format(time.RFC3339),
			DBBackend:   "sqlite",
			RecordCount: 2,
			Version:     "1.0",
		},
		Data: []Record{
			{IVODID: 1, Date: "2024-03-15", LastUpdated: "2024-03-16T12:00:00+08:00"},
			{IVODID: 2, Date: "not-a-date"},
		},
	}
	payload, err := json.Marshal(env)
	testkit.MustNoErr(t, err)
	path := filepath.Join(t.TempDir(), "partial.json")
	testkit.MustNoErr(t, os.WriteFile(path, payload, 0o644))

	testkit.MustNoErr(t, svc.Restore(ctx, path, RestoreOptions{ForceCreate: true, ForceClear: true}))

	n, err := s.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 1 {
		t.Fatalf("count = %d, want 1 (bad record skipped)", n)
	}
}
