// Package search keeps the Elasticsearch transcript index aligned with the
// relational store. The index is a read model: the store stays the source of
// truth and alignment failures never fail a reconciliation run
package search

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"ivodsync/internal/platform/config"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// indexMapping uses ik_max_word for the Chinese text fields, lowered for
// latin fragments; metadata stays keyword/date
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "chinese_analyzer": {
          "type": "custom",
          "tokenizer": "ik_max_word",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "ivod_id":         {"type": "long"},
      "date":            {"type": "date", "format": "yyyy-MM-dd"},
      "title":           {"type": "text", "analyzer": "chinese_analyzer"},
      "meeting_name":    {"type": "text", "analyzer": "chinese_analyzer"},
      "speaker_name":    {"type": "keyword"},
      "committee_names": {"type": "keyword"},
      "video_url":       {"type": "keyword"},
      "ai_transcript":   {"type": "text", "analyzer": "chinese_analyzer"},
      "ly_transcript":   {"type": "text", "analyzer": "chinese_analyzer"},
      "last_updated":    {"type": "date"}
    }
  }
}`

// newClient builds the low-level ES client from the search config
func newClient(cfg config.Search) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL()},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfig, "build elasticsearch client")
	}
	return es, nil
}

// ping reports whether the cluster answers at all
func ping(ctx context.Context, es *elasticsearch.Client) bool {
	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer drain(res)
	return !res.IsError()
}

// ensureIndex creates the transcript index when it does not exist yet
func ensureIndex(ctx context.Context, es *elasticsearch.Client, index string) error {
	res, err := es.Indices.Exists([]string{index}, es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return perr.Networkf("check index %s: %v", index, err)
	}
	exists := res.StatusCode == 200
	drain(res)
	if exists {
		return nil
	}

	logger.C(ctx).Info().Str("index", index).Msg("creating search index")
	res, err = es.Indices.Create(index,
		es.Indices.Create.WithContext(ctx),
		es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return perr.Networkf("create index %s: %v", index, err)
	}
	defer drain(res)
	if res.IsError() {
		return perr.Networkf("create index %s: %s", index, res.String())
	}
	return nil
}

// mget fetches the compared fields of the existing docs for the given ids.
// Missing docs simply stay out of the map
func mget(ctx context.Context, es *elasticsearch.Client, index string, ids []int64) (map[int64]Doc, error) {
	body := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "encode mget request")
	}

	res, err := es.Mget(strings.NewReader(string(payload)),
		es.Mget.WithContext(ctx),
		es.Mget.WithIndex(index),
		es.Mget.WithSourceIncludes("title", "ai_transcript", "ly_transcript"),
	)
	if err != nil {
		return nil, perr.Networkf("mget %d docs: %v", len(ids), err)
	}
	defer drain(res)
	if res.IsError() {
		return nil, perr.Networkf("mget %d docs: %s", len(ids), res.String())
	}

	var parsed struct {
		Docs []struct {
			Found  bool `json:"found"`
			Source struct {
				IVODID       int64  `json:"ivod_id"`
				Title        string `json:"title"`
				AITranscript string `json:"ai_transcript"`
				LYTranscript string `json:"ly_transcript"`
			} `json:"_source"`
			ID json.Number `json:"_id"`
		} `json:"docs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, perr.Parsingf("decode mget response: %v", err)
	}

	out := make(map[int64]Doc, len(parsed.Docs))
	for _, d := range parsed.Docs {
		if !d.Found {
			continue
		}
		id, err := d.ID.Int64()
		if err != nil {
			continue
		}
		out[id] = Doc{
			IVODID:       id,
			Title:        d.Source.Title,
			AITranscript: d.Source.AITranscript,
			LYTranscript: d.Source.LYTranscript,
		}
	}
	return out, nil
}

// bulkIndex sends one bulk body and returns the number of item-level failures
func bulkIndex(ctx context.Context, es *elasticsearch.Client, index string, body *strings.Builder, items int) (int, error) {
	res, err := es.Bulk(strings.NewReader(body.String()),
		es.Bulk.WithContext(ctx),
		es.Bulk.WithIndex(index),
	)
	if err != nil {
		return items, perr.Networkf("bulk index %d docs: %v", items, err)
	}
	defer drain(res)
	if res.IsError() {
		return items, perr.Networkf("bulk index %d docs: %s", items, res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				Status int `json:"status"`
				Error  *struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"error"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return items, perr.Parsingf("decode bulk response: %v", err)
	}
	if !parsed.Errors {
		return 0, nil
	}

	failed := 0
	for _, it := range parsed.Items {
		if it.Index.Error != nil || it.Index.Status >= 300 {
			failed++
		}
	}
	return failed, nil
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
