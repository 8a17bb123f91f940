package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ivodsync/internal/platform/clock"
	"ivodsync/internal/platform/config"
	"ivodsync/internal/platform/logger"

	"github.com/elastic/go-elasticsearch/v8"
)

// RecentWindowDays is how far back the recent alignment scope looks
const RecentWindowDays = 7

// bulkFlushSize is how many queued docs trigger one bulk request
const bulkFlushSize = 100

// Doc is the indexed shape of one transcript record
type Doc struct {
	IVODID         int64    `json:"ivod_id"`
	Date           string   `json:"date"`
	Title          string   `json:"title"`
	MeetingName    string   `json:"meeting_name"`
	SpeakerName    string   `json:"speaker_name"`
	CommitteeNames []string `json:"committee_names"`
	VideoURL       string   `json:"video_url"`
	AITranscript   string   `json:"ai_transcript"`
	LYTranscript   string   `json:"ly_transcript"`
	LastUpdated    string   `json:"last_updated"`
}

// Source is where the aligner reads authoritative docs from
type Source interface {
	All(ctx context.Context) ([]Doc, error)
	ByIDs(ctx context.Context, ids []int64) ([]Doc, error)
	UpdatedSince(ctx context.Context, since time.Time) ([]Doc, error)
}

// Result summarizes one alignment pass
type Result struct {
	Updated int
	Skipped int
	Errors  int
}

// Aligner pushes store records into the search index, skipping docs whose
// compared fields already match
type Aligner struct {
	es      *elasticsearch.Client
	index   string
	src     Source
	enabled bool
	log     logger.Logger
}

// NewAligner builds an Aligner; a disabled search config yields an aligner
// whose Available always reports false
func NewAligner(cfg config.Search, src Source) (*Aligner, error) {
	a := &Aligner{
		index:   cfg.Index,
		src:     src,
		enabled: cfg.Enabled,
		log:     *logger.Named("search"),
	}
	if !cfg.Enabled {
		return a, nil
	}
	es, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	a.es = es
	return a, nil
}

// Available reports whether the cluster is reachable. Never fatal: a dead
// cluster means alignment is skipped, not that the run fails
func (a *Aligner) Available(ctx context.Context) bool {
	if !a.enabled || a.es == nil {
		return false
	}
	return ping(ctx, a.es)
}

// AlignAll aligns every record in the store
func (a *Aligner) AlignAll(ctx context.Context) (Result, error) {
	docs, err := a.src.All(ctx)
	if err != nil {
		return Result{}, err
	}
	return a.align(ctx, docs)
}

// AlignIDs aligns just the given records
func (a *Aligner) AlignIDs(ctx context.Context, ids []int64) (Result, error) {
	if len(ids) == 0 {
		return Result{}, nil
	}
	docs, err := a.src.ByIDs(ctx, ids)
	if err != nil {
		return Result{}, err
	}
	return a.align(ctx, docs)
}

// AlignRecent aligns records updated in the past days days
func (a *Aligner) AlignRecent(ctx context.Context, days int) (Result, error) {
	if days <= 0 {
		days = RecentWindowDays
	}
	since := clock.Now().AddDate(0, 0, -days)
	docs, err := a.src.UpdatedSince(ctx, since)
	if err != nil {
		return Result{}, err
	}
	return a.align(ctx, docs)
}

// align diffs docs against the index and bulk-writes the changed ones.
// Chunk-level problems are counted per doc and alignment continues
func (a *Aligner) align(ctx context.Context, docs []Doc) (Result, error) {
	var res Result
	if len(docs) == 0 {
		return res, nil
	}
	if err := ensureIndex(ctx, a.es, a.index); err != nil {
		return res, err
	}

	for start := 0; start < len(docs); start += bulkFlushSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + bulkFlushSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]

		ids := make([]int64, len(chunk))
		for i, d := range chunk {
			ids[i] = d.IVODID
		}
		existing, err := mget(ctx, a.es, a.index, ids)
		if err != nil {
			a.log.Warn().Err(err).Int("docs", len(chunk)).Msg("existing doc lookup failed, skipping chunk")
			res.Errors += len(chunk)
			continue
		}

		var body strings.Builder
		queued := 0
		for _, d := range chunk {
			if prev, ok := existing[d.IVODID]; ok && unchanged(prev, d) {
				res.Skipped++
				continue
			}
			src, err := json.Marshal(d)
			if err != nil {
				a.log.Warn().Err(err).Int64("ivod_id", d.IVODID).Msg("doc encode failed")
				res.Errors++
				continue
			}
			fmt.Fprintf(&body, `{"index":{"_id":"%d"}}`+"\n", d.IVODID)
			body.Write(src)
			body.WriteByte('\n')
			queued++
		}
		if queued == 0 {
			continue
		}

		failed, err := bulkIndex(ctx, a.es, a.index, &body, queued)
		if err != nil {
			a.log.Warn().Err(err).Int("docs", queued).Msg("bulk write failed")
			res.Errors += failed
			continue
		}
		res.Errors += failed
		res.Updated += queued - failed
	}

	a.log.Info().
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Msg("alignment pass done")
	return res, nil
}

// unchanged compares the fields alignment cares about
func unchanged(prev, next Doc) bool {
	return prev.Title == next.Title &&
		prev.AITranscript == next.AITranscript &&
		prev.LYTranscript == next.LYTranscript
}
