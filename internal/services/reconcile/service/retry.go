package service

import (
	"context"
	"sort"
	"time"

	"ivodsync/internal/platform/clock"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/search"
	"ivodsync/internal/services/transcripts/domain"
)

// retryBatchSize keeps retry commit groups small
const retryBatchSize = 20

// breakerLimit stops a kind after this many consecutive failing days
const breakerLimit = 3

// breaker tracks consecutive failing days for one transcript kind.
// Days count as consecutive when at most one day apart; a repeated date does
// not extend the run; any success resets it
type breaker struct {
	run     int
	last    time.Time
	stopped bool
}

func (b *breaker) fail(date time.Time) {
	switch {
	case !b.last.IsZero() && date.Equal(b.last):
		// same day, already counted
	case b.last.IsZero() || clock.DaysBetween(b.last, date) <= 1:
		b.run++
		b.last = date
	default:
		b.run = 1
		b.last = date
	}
	if b.run >= breakerLimit {
		b.stopped = true
	}
}

func (b *breaker) success() { b.run = 0 }

// taggedRow pairs a failed record with the kind that failed
type taggedRow struct {
	rec  domain.Transcript
	kind domain.Kind
}

// RunRetry re-fetches records whose AI or LY extraction failed, oldest first.
// A kind that keeps failing across three consecutive days gets its remaining
// rows skipped; the other kind continues
func (s *Service) RunRetry(ctx context.Context) error {
	ctx = s.runCtx(ctx, "retry")
	log := logger.C(ctx)

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	st := s.storage()
	aiRows, err := st.QueryFailed(ctx, domain.KindAI, s.maxRetries)
	if err != nil {
		return err
	}
	lyRows, err := st.QueryFailed(ctx, domain.KindLY, s.maxRetries)
	if err != nil {
		return err
	}
	log.Info().Int("ai", len(aiRows)).Int("ly", len(lyRows)).Msg("starting retry run")

	rows := make([]taggedRow, 0, len(aiRows)+len(lyRows))
	for _, r := range aiRows {
		rows = append(rows, taggedRow{rec: r, kind: domain.KindAI})
	}
	for _, r := range lyRows {
		rows = append(rows, taggedRow{rec: r, kind: domain.KindLY})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].rec.Date.Equal(rows[j].rec.Date) {
			return rows[i].rec.Date.Before(rows[j].rec.Date)
		}
		return rows[i].rec.IVODID < rows[j].rec.IVODID
	})

	breakers := map[domain.Kind]*breaker{
		domain.KindAI: {},
		domain.KindLY: {},
	}
	batch := NewBatch(s.st.DB, s.binder, retryBatchSize, s.commitInterval)
	var touched []int64
	seen := make(map[int64]bool)

	for _, row := range rows {
		if err := cancelled(ctx); err != nil {
			return err
		}

		br := breakers[row.kind]
		if br.stopped {
			log.Info().Int64("ivod_id", row.rec.IVODID).Str("kind", string(row.kind)).Msg("breaker open, skipping")
			continue
		}

		prev := row.rec
		rec, perr2 := s.processOne(ctx, row.rec.IVODID, &prev)
		if perr2 != nil {
			log.Error().Err(perr2).Int64("ivod_id", row.rec.IVODID).Str("kind", string(row.kind)).Msg("retry failed")
			s.ledgerAppend(ctx, row.rec.IVODID, ledger.PhaseRetry)
			br.fail(row.rec.Date)
			if br.stopped {
				log.Warn().Str("kind", string(row.kind)).Int("days", br.run).Msg("consecutive failing days, stopping kind")
			}
			continue
		}

		if rec.StatusFor(row.kind) == domain.StatusSuccess {
			br.success()
		} else {
			br.fail(row.rec.Date)
			if br.stopped {
				log.Warn().Str("kind", string(row.kind)).Int("days", br.run).Msg("consecutive failing days, stopping kind")
			}
		}

		if err := batch.Add(ctx, rec); err != nil {
			return err
		}
		if !seen[rec.IVODID] {
			seen[rec.IVODID] = true
			touched = append(touched, rec.IVODID)
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return err
	}
	processed, errs := batch.Stats()
	log.Info().Int("processed", processed).Int("errors", errs).Int("touched", len(touched)).Msg("retry run complete")

	if len(touched) > 0 {
		s.alignIndex(ctx, func(c context.Context) (search.Result, error) {
			return s.align.AlignIDs(c, touched)
		}, "retried")
	}
	return nil
}
