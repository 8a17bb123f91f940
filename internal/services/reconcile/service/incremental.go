package service

import (
	"context"
	"sort"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/search"
	"ivodsync/internal/services/transcripts/domain"
)

// incrementalWindowDays is how far back the incremental run looks
const incrementalWindowDays = 14

// incrementalBatchSize keeps incremental commit groups small
const incrementalBatchSize = 50

// RunIncremental collects the catalog ids of the past two weeks, inserts the
// new ones, and backfills whichever transcript side is still empty on the
// known ones. Each id is fetched and assembled at most once per run
func (s *Service) RunIncremental(ctx context.Context) error {
	ctx = s.runCtx(ctx, "incremental")
	log := logger.C(ctx)

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	today := clock.Today()
	since := today.AddDate(0, 0, -incrementalWindowDays)

	idSet := make(map[int64]bool)
	for _, day := range clock.DateRange(since, today) {
		if err := cancelled(ctx); err != nil {
			return err
		}
		s.fetch.PoliteSleep()
		ids, err := s.fetch.ListIDs(ctx, day)
		if err != nil {
			log.Warn().Err(err).Str("date", clock.FormatDate(day)).Msg("catalog list failed, skipping date")
			continue
		}
		for _, id := range ids {
			idSet[id] = true
		}
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	log.Info().Int("candidates", len(ids)).Msg("starting incremental run")

	batch := NewBatch(s.st.DB, s.binder, incrementalBatchSize, s.commitInterval)
	st := s.storage()

	for _, id := range ids {
		if err := cancelled(ctx); err != nil {
			return err
		}

		prev, err := st.Get(ctx, id)
		switch {
		case perr.IsCode(err, perr.ErrorCodeNotFound):
			rec, perr2 := s.processOne(ctx, id, nil)
			if perr2 != nil {
				log.Error().Err(perr2).Int64("ivod_id", id).Msg("new record processing failed")
				s.ledgerAppend(ctx, id, ledger.PhaseIncremental)
				continue
			}
			if err := batch.Add(ctx, rec); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}

		needAI := prev.AITranscript == ""
		needLY := prev.LYTranscript == ""
		if !needAI && !needLY {
			continue
		}

		// one reassembly covers both sides
		rec, perr2 := s.processOne(ctx, id, prev)
		if perr2 != nil {
			log.Error().Err(perr2).Int64("ivod_id", id).Msg("incremental update failed")
			s.ledgerAppend(ctx, id, ledger.PhaseIncremental)
			continue
		}

		var patches []domain.Patch
		if needAI {
			patches = append(patches, sidePatch(rec, domain.KindAI))
		}
		if needLY {
			patches = append(patches, sidePatch(rec, domain.KindLY))
		}
		if err := batch.AddPatches(ctx, id, patches); err != nil {
			return err
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return err
	}
	processed, errs := batch.Stats()
	log.Info().Int("processed", processed).Int("errors", errs).Msg("incremental run complete")

	s.alignIndex(ctx, func(c context.Context) (search.Result, error) {
		return s.align.AlignRecent(c, search.RecentWindowDays)
	}, "recent")
	return nil
}

// sidePatch extracts one side of rec as a Patch, leaving the other side alone
func sidePatch(rec *domain.Transcript, k domain.Kind) domain.Patch {
	text := rec.TranscriptFor(k)
	status := rec.StatusFor(k)
	retries := rec.RetriesFor(k)
	return domain.Patch{Kind: k, Transcript: &text, Status: &status, Retries: &retries}
}

func (s *Service) ledgerAppend(ctx context.Context, id int64, phase ledger.Phase) {
	if err := s.led.Append(id, phase); err != nil {
		logger.C(ctx).Warn().Err(err).Int64("ivod_id", id).Msg("ledger append failed")
	}
}
