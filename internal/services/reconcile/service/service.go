// Package service orchestrates the reconciliation workflows: full,
// incremental, retry, and fix. Each run shares the same prelude (schema
// check, fetcher, batch processor) and the same per-record error policy:
// log, ledger, continue
package service

import (
	"context"
	"time"

	"ivodsync/internal/adapters/ingest/lyapi"
	"ivodsync/internal/core/assemble"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/search"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"

	"github.com/google/uuid"
)

// Fetcher is the catalog surface the workflows consume
type Fetcher interface {
	LatestDate(ctx context.Context) (time.Time, error)
	ListIDs(ctx context.Context, date time.Time) ([]int64, error)
	GetRecord(ctx context.Context, ivodID int64) (*lyapi.RawRecord, error)
	PoliteSleep()
}

// Options wires the service together
type Options struct {
	Store   *store.Store
	Fetcher Fetcher
	Speech  lyapi.SpeechFetcher
	Ledger  *ledger.Ledger
	Aligner *search.Aligner // nil disables index alignment

	MaxRetries     int
	BatchSize      int
	CommitInterval int
}

// Service runs the reconciliation workflows
type Service struct {
	st     *store.Store
	binder repo.Binder
	fetch  Fetcher
	speech lyapi.SpeechFetcher
	led    *ledger.Ledger
	align  *search.Aligner
	log    logger.Logger

	maxRetries     int
	batchSize      int
	commitInterval int
}

// New builds a Service; Store, Fetcher, and Ledger are required
func New(o Options) *Service {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.CommitInterval <= 0 {
		o.CommitInterval = DefaultCommitInterval
	}
	return &Service{
		st:             o.Store,
		binder:         repo.New(o.Store.Dialect),
		fetch:          o.Fetcher,
		speech:         o.Speech,
		led:            o.Ledger,
		align:          o.Aligner,
		log:            *logger.Named("reconcile"),
		maxRetries:     o.MaxRetries,
		batchSize:      o.BatchSize,
		commitInterval: o.CommitInterval,
	}
}

// runCtx tags ctx with the workflow name and a fresh run id for log correlation
func (s *Service) runCtx(ctx context.Context, workflow string) context.Context {
	return logger.WithRun(ctx, workflow, uuid.NewString())
}

// storage returns a repo view over the pool (outside any transaction)
func (s *Service) storage() repo.Storage { return s.binder.Bind(s.st.DB) }

// ensureSchema verifies the transcript table exists, creating it when missing
func (s *Service) ensureSchema(ctx context.Context) error {
	st := s.storage()
	ok, err := st.TableExists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	logger.C(ctx).Info().Msg("transcript table missing, creating")
	return st.EnsureTable(ctx)
}

// processOne fetches, assembles, and returns one record. prev feeds retry
// counts; when nil the stored record is looked up first
func (s *Service) processOne(ctx context.Context, ivodID int64, prev *domain.Transcript) (*domain.Transcript, error) {
	if prev == nil {
		got, err := s.storage().Get(ctx, ivodID)
		switch {
		case err == nil:
			prev = got
		case perr.IsCode(err, perr.ErrorCodeNotFound):
			// new id
		default:
			return nil, err
		}
	}

	s.fetch.PoliteSleep()
	raw, err := s.fetch.GetRecord(ctx, ivodID)
	if err != nil {
		return nil, err
	}
	return assemble.Record(ctx, ivodID, raw, prev, s.speech)
}

// cancelled converts a context cancellation into an Interrupted error
func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return perr.Wrap(ctx.Err(), perr.ErrorCodeInterrupted, "run interrupted")
	default:
		return nil
	}
}

// alignIndex runs one alignment pass when the index is reachable; alignment
// problems are warnings, never run failures
func (s *Service) alignIndex(ctx context.Context, run func(context.Context) (search.Result, error), what string) {
	log := logger.C(ctx)
	if s.align == nil {
		return
	}
	if !s.align.Available(ctx) {
		log.Info().Str("scope", what).Msg("elasticsearch unavailable, skipping index alignment")
		return
	}
	res, err := run(ctx)
	if err != nil {
		log.Warn().Err(err).Str("scope", what).Msg("index alignment failed")
		return
	}
	log.Info().
		Str("scope", what).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Msg("index alignment done")
}
