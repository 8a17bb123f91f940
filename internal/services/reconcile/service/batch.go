package service

import (
	"context"

	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"
)

// Batch sizing defaults (overridable per workflow)
const (
	DefaultBatchSize      = 100 // records per batch
	DefaultCommitInterval = 10  // batches per commit
)

// BatchProcessor buffers writes and commits them in transaction groups:
// records collect into batches of batchSize, and every commitInterval
// batches one transaction applies everything pending. A failed commit
// rolls the whole group back and propagates
type BatchProcessor struct {
	db     store.TxRunner
	binder repo.Binder
	log    logger.Logger

	batchSize      int
	commitInterval int

	buffer  []batchItem
	pending []batchItem

	batchCount     int
	totalProcessed int
	totalErrors    int
}

// batchItem is either a full upsert or a set of per-side patches
type batchItem struct {
	rec     *domain.Transcript
	patchID int64
	patches []domain.Patch
}

// NewBatch builds a BatchProcessor; batchSize/commitInterval <= 0 take defaults
func NewBatch(db store.TxRunner, binder repo.Binder, batchSize, commitInterval int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if commitInterval <= 0 {
		commitInterval = DefaultCommitInterval
	}
	return &BatchProcessor{
		db:             db,
		binder:         binder,
		log:            *logger.Named("batch"),
		batchSize:      batchSize,
		commitInterval: commitInterval,
	}
}

// Add buffers a full record write. Invalid items are counted and skipped,
// they never fail the batch
func (b *BatchProcessor) Add(ctx context.Context, rec *domain.Transcript) error {
	if rec == nil || rec.IVODID == 0 {
		b.totalErrors++
		b.log.Error().Msg("dropping record without ivod_id")
		return nil
	}
	return b.push(ctx, batchItem{rec: rec})
}

// AddPatches buffers partial per-side updates for an existing record
func (b *BatchProcessor) AddPatches(ctx context.Context, ivodID int64, patches []domain.Patch) error {
	if ivodID == 0 || len(patches) == 0 {
		b.totalErrors++
		b.log.Error().Int64("ivod_id", ivodID).Msg("dropping empty patch item")
		return nil
	}
	return b.push(ctx, batchItem{patchID: ivodID, patches: patches})
}

func (b *BatchProcessor) push(ctx context.Context, it batchItem) error {
	b.buffer = append(b.buffer, it)
	if len(b.buffer) >= b.batchSize {
		return b.closeBatch(ctx)
	}
	return nil
}

// closeBatch moves the buffer into the pending commit group and commits the
// group when the interval is reached
func (b *BatchProcessor) closeBatch(ctx context.Context) error {
	if len(b.buffer) == 0 {
		return nil
	}
	b.pending = append(b.pending, b.buffer...)
	b.buffer = nil
	b.batchCount++

	if b.batchCount%b.commitInterval == 0 {
		return b.commit(ctx)
	}
	return nil
}

// commit applies every pending item inside one transaction
func (b *BatchProcessor) commit(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	n := len(b.pending)
	err := b.db.Tx(ctx, func(q store.RowQuerier) error {
		st := b.binder.Bind(q)
		for _, it := range b.pending {
			if it.rec != nil {
				if err := st.Upsert(ctx, it.rec); err != nil {
					return err
				}
				continue
			}
			for _, p := range it.patches {
				if err := st.ApplyPatch(ctx, it.patchID, p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		b.log.Error().Err(err).Int("records", n).Msg("batch commit failed, rolled back")
		return perr.FromDBf(err, "commit batch of %d records", n)
	}

	b.totalProcessed += n
	b.pending = nil
	b.log.Info().
		Int("batch", b.batchCount).
		Int("processed", b.totalProcessed).
		Int("errors", b.totalErrors).
		Msg("committed batch group")
	return nil
}

// Flush stages the residue and commits everything still pending
func (b *BatchProcessor) Flush(ctx context.Context) error {
	b.pending = append(b.pending, b.buffer...)
	if len(b.buffer) > 0 {
		b.batchCount++
		b.buffer = nil
	}
	if err := b.commit(ctx); err != nil {
		return err
	}
	b.log.Info().
		Int("processed", b.totalProcessed).
		Int("errors", b.totalErrors).
		Msg("final commit")
	return nil
}

// Stats returns (processed, errors) so far
func (b *BatchProcessor) Stats() (int, int) { return b.totalProcessed, b.totalErrors }
