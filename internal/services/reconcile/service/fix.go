package service

import (
	"context"

	"ivodsync/internal/platform/logger"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/search"
)

// fixBatchSize keeps fix commit groups small
const fixBatchSize = 30

// RunFix reprocesses specific records. With an explicit id list it targets
// those; otherwise it drains the failure ledger. Records that come back clean
// leave the ledger; records that fail again are re-recorded under fix_retry
func (s *Service) RunFix(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return s.runFix(ctx, nil, s.led)
	}
	return s.runFix(ctx, ids, nil)
}

// RunFixFile drains the failure ledger at path instead of the configured one.
// The file uses the ledger line format; ids are deduped and malformed lines
// skipped
func (s *Service) RunFixFile(ctx context.Context, path string) error {
	return s.runFix(ctx, nil, ledger.New(path))
}

func (s *Service) runFix(ctx context.Context, ids []int64, led *ledger.Ledger) error {
	ctx = s.runCtx(ctx, "fix")
	log := logger.C(ctx)

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	fromLedger := led != nil
	if fromLedger {
		var err error
		ids, err = led.ReadIDs()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			log.Info().Str("path", led.Path()).Msg("failure ledger is empty, nothing to fix")
			return nil
		}
	}

	seen := make(map[int64]bool)
	queue := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, id)
	}
	log.Info().Int("candidates", len(queue)).Bool("from_ledger", fromLedger).Msg("starting fix run")

	batch := NewBatch(s.st.DB, s.binder, fixBatchSize, s.commitInterval)
	var fixed []int64

	for _, id := range queue {
		if err := cancelled(ctx); err != nil {
			return err
		}

		rec, perr2 := s.processOne(ctx, id, nil)
		if perr2 != nil {
			log.Error().Err(perr2).Int64("ivod_id", id).Msg("fix failed")
			s.ledgerAppend(ctx, id, ledger.PhaseFixRetry)
			continue
		}
		if err := batch.Add(ctx, rec); err != nil {
			return err
		}
		fixed = append(fixed, id)

		if fromLedger {
			if err := led.Remove(id); err != nil {
				log.Warn().Err(err).Int64("ivod_id", id).Msg("ledger remove failed")
			}
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return err
	}
	processed, errs := batch.Stats()
	log.Info().Int("processed", processed).Int("errors", errs).Int("fixed", len(fixed)).Msg("fix run complete")

	if len(fixed) > 0 {
		s.alignIndex(ctx, func(c context.Context) (search.Result, error) {
			return s.align.AlignIDs(c, fixed)
		}, "fixed")
	}
	return nil
}
