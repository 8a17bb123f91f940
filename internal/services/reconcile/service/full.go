package service

import (
	"context"
	"time"

	"ivodsync/internal/platform/clock"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/search"
)

// earliestDate is the first day the upstream catalog has usable records
const earliestDate = "2024-02-01"

// RunFull walks every date in [start, end] and upserts each record.
// Empty bounds take the defaults; out-of-range bounds clamp with a warning
func (s *Service) RunFull(ctx context.Context, startStr, endStr string) error {
	ctx = s.runCtx(ctx, "full")
	log := logger.C(ctx)

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	start, end := s.clampRange(ctx, startStr, endStr)
	log.Info().
		Str("start", clock.FormatDate(start)).
		Str("end", clock.FormatDate(end)).
		Msg("starting full run")

	batch := NewBatch(s.st.DB, s.binder, s.batchSize, s.commitInterval)

	for _, day := range clock.DateRange(start, end) {
		if err := cancelled(ctx); err != nil {
			return err
		}

		s.fetch.PoliteSleep()
		ids, err := s.fetch.ListIDs(ctx, day)
		if err != nil {
			log.Error().Err(err).Str("date", clock.FormatDate(day)).Msg("catalog list failed, skipping date")
			continue
		}
		log.Info().Str("date", clock.FormatDate(day)).Int("count", len(ids)).Msg("processing date")

		for _, id := range ids {
			if err := cancelled(ctx); err != nil {
				return err
			}

			rec, err := s.processOne(ctx, id, nil)
			if err != nil {
				log.Error().Err(err).Int64("ivod_id", id).Msg("record processing failed")
				s.ledgerAppend(ctx, id, ledger.PhaseProcessing)
				continue
			}
			if err := batch.Add(ctx, rec); err != nil {
				return err
			}
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return err
	}
	processed, errs := batch.Stats()
	log.Info().Int("processed", processed).Int("errors", errs).Msg("full run complete")

	s.alignIndex(ctx, func(c context.Context) (search.Result, error) {
		return s.align.AlignAll(c)
	}, "full")
	return nil
}

// clampRange resolves the run window: start no earlier than earliestDate,
// end no later than today. Bad input falls back to the defaults
func (s *Service) clampRange(ctx context.Context, startStr, endStr string) (time.Time, time.Time) {
	log := logger.C(ctx)
	floor, _ := clock.ParseDate(earliestDate)
	today := clock.Today()

	start := floor
	if startStr != "" {
		t, err := clock.ParseDate(startStr)
		switch {
		case err != nil:
			log.Warn().Str("start", startStr).Msg("invalid start date, using default")
		case t.Before(floor):
			log.Warn().Str("start", startStr).Str("floor", earliestDate).Msg("start date before catalog floor, clamping")
		default:
			start = t
		}
	}

	end := today
	if endStr != "" {
		t, err := clock.ParseDate(endStr)
		switch {
		case err != nil:
			log.Warn().Str("end", endStr).Msg("invalid end date, using today")
		case t.After(today):
			log.Warn().Str("end", endStr).Msg("end date in the future, clamping to today")
		default:
			end = t
		}
	}
	return start, end
}
