package service

import (
	"context"
	"path/filepath"
	"testing"

	"ivodsync/internal/platform/clock"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/platform/testkit"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"
)

func testStore(t *testing.T) (*store.Store, repo.Storage) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "batch_test.db"),
	})
	testkit.MustNoErr(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	s := repo.New(st.Dialect).Bind(st.DB)
	testkit.MustNoErr(t, s.EnsureTable(ctx))
	return st, s
}

func record(id int64) *domain.Transcript {
	d, _ := clock.ParseDate("2024-03-15")
	return &domain.Transcript{
		IVODID:       id,
		IVODURL:      "https://ivod.ly.gov.tw/Play/Clip/300K/1",
		Date:         d,
		AITranscript: "x",
		AIStatus:     domain.StatusSuccess,
		LYStatus:     domain.StatusFailed,
		LYRetries:    1,
		LastUpdated:  clock.Now(),
	}
}

func TestBatchCommitsAtInterval(t *testing.T) {
	st, s := testStore(t)
	ctx := context.Background()

	// batchSize 2, commitInterval 2: a commit lands every 4 records
	b := NewBatch(st.DB, repo.New(st.Dialect), 2, 2)

	for id := int64(1); id <= 3; id++ {
		testkit.MustNoErr(t, b.Add(ctx, record(id)))
	}
	n, err := s.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 0 {
		t.Fatalf("committed before the interval: %d rows", n)
	}

	testkit.MustNoErr(t, b.Add(ctx, record(4)))
	n, err = s.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 4 {
		t.Fatalf("rows after interval commit = %d, want 4", n)
	}

	processed, errs := b.Stats()
	if processed != 4 || errs != 0 {
		t.Fatalf("stats = %d/%d", processed, errs)
	}
}

func TestBatchFlushCommitsResidue(t *testing.T) {
	st, s := testStore(t)
	ctx := context.Background()

	b := NewBatch(st.DB, repo.New(st.Dialect), 10, 10)
	for id := int64(1); id <= 3; id++ {
		testkit.MustNoErr(t, b.Add(ctx, record(id)))
	}
	testkit.MustNoErr(t, b.Flush(ctx))

	n, err := s.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 3 {
		t.Fatalf("rows after flush = %d, want 3", n)
	}
}

func TestBatchCountsInvalidItems(t *testing.T) {
	st, s := testStore(t)
	ctx := context.Background()

	b := NewBatch(st.DB, repo.New(st.Dialect), 10, 10)
	testkit.MustNoErr(t, b.Add(ctx, nil))
	testkit.MustNoErr(t, b.Add(ctx, &domain.Transcript{}))
	testkit.MustNoErr(t, b.Add(ctx, record(1)))
	testkit.MustNoErr(t, b.AddPatches(ctx, 0, nil))
	testkit.MustNoErr(t, b.Flush(ctx))

	processed, errs := b.Stats()
	if processed != 1 || errs != 3 {
		t.Fatalf("stats = %d/%d, want 1/3", processed, errs)
	}
	n, err := s.Count(ctx)
	testkit.MustNoErr(t, err)
	if n != 1 {
		t.Fatalf("rows = %d", n)
	}
}

func TestBatchAppliesPatches(t *testing.T) {
	st, s := testStore(t)
	ctx := context.Background()

	testkit.MustNoErr(t, s.Upsert(ctx, record(1)))

	text := "後補逐字稿"
	status := domain.StatusSuccess
	retries := 0
	b := NewBatch(st.DB, repo.New(st.Dialect), 10, 10)
	testkit.MustNoErr(t, b.AddPatches(ctx, 1, []domain.Patch{{
		Kind: domain.KindLY, Transcript: &text, Status: &status, Retries: &retries,
	}}))
	testkit.MustNoErr(t, b.Flush(ctx))

	got, err := s.Get(ctx, 1)
	testkit.MustNoErr(t, err)
	if got.LYTranscript != "後補逐字稿" || got.LYStatus != domain.StatusSuccess || got.LYRetries != 0 {
		t.Fatalf("patch result = %q/%s/%d", got.LYTranscript, got.LYStatus, got.LYRetries)
	}
	// the AI side is untouched
	if got.AITranscript != "x" {
		t.Fatalf("AI side changed: %q", got.AITranscript)
	}
}

func TestBatchCommitFailurePropagates(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	// patching an id that does not exist fails the whole commit group
	text := "x"
	b := NewBatch(st.DB, repo.New(st.Dialect), 10, 10)
	testkit.MustNoErr(t, b.AddPatches(ctx, 12345, []domain.Patch{{
		Kind: domain.KindAI, Transcript: &text,
	}}))
	if err := b.Flush(ctx); err == nil {
		t.Fatalf("expected commit failure for unknown id")
	}
}
