package service

import (
	"context"
	"time"

	"ivodsync/internal/platform/clock"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/search"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"
)

// DocSource feeds the search aligner from the transcript store
type DocSource struct {
	db     store.TxRunner
	binder repo.Binder
}

// NewDocSource builds a DocSource over st
func NewDocSource(st *store.Store) *DocSource {
	return &DocSource{db: st.DB, binder: repo.New(st.Dialect)}
}

// All returns every stored record as an index doc
func (d *DocSource) All(ctx context.Context) ([]search.Doc, error) {
	rows, err := d.binder.Bind(d.db).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return docsOf(rows), nil
}

// ByIDs returns the given records as index docs; unknown ids are omitted
func (d *DocSource) ByIDs(ctx context.Context, ids []int64) ([]search.Doc, error) {
	rows, err := d.binder.Bind(d.db).GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return docsOf(rows), nil
}

// UpdatedSince returns records touched at or after since as index docs
func (d *DocSource) UpdatedSince(ctx context.Context, since time.Time) ([]search.Doc, error) {
	rows, err := d.binder.Bind(d.db).QueryUpdatedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return docsOf(rows), nil
}

func docsOf(rows []domain.Transcript) []search.Doc {
	docs := make([]search.Doc, len(rows))
	for i := range rows {
		docs[i] = docOf(&rows[i])
	}
	return docs
}

func docOf(t *domain.Transcript) search.Doc {
	committees := t.CommitteeNames
	if committees == nil {
		committees = []string{}
	}
	return search.Doc{
		IVODID:         t.IVODID,
		Date:           clock.FormatDate(t.Date),
		Title:          t.Title,
		MeetingName:    t.MeetingName,
		SpeakerName:    t.SpeakerName,
		CommitteeNames: committees,
		VideoURL:       t.VideoURL,
		AITranscript:   t.AITranscript,
		LYTranscript:   t.LYTranscript,
		LastUpdated:    t.LastUpdated.Format(time.RFC3339),
	}
}
