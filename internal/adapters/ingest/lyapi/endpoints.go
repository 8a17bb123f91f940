package lyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
)

// catalogListLimit caps one day's catalog page; no sitting day exceeds it
const catalogListLimit = 600

// LatestDate returns the meeting date of the newest catalog entry
func (c *Client) LatestDate(ctx context.Context) (time.Time, error) {
	body, err := c.get(ctx, c.opts.BaseURL+"/ivods?limit=1")
	if err != nil {
		return time.Time{}, err
	}
	var env catalogEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return time.Time{}, perr.Wrapf(err, perr.ErrorCodeParsing, "latest date: invalid JSON")
	}
	if len(env.IVODs) == 0 {
		return time.Time{}, perr.Dataf("latest date: empty catalog")
	}
	return parseISODate(env.IVODs[0].Date)
}

// ListIDs returns every IVOD id recorded on the given date
func (c *Client) ListIDs(ctx context.Context, date time.Time) ([]int64, error) {
	q := url.Values{}
	q.Set("日期", clock.FormatDate(date))
	q.Set("limit", fmt.Sprint(catalogListLimit))
	u := c.opts.BaseURL + "/ivods?" + q.Encode()

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var env catalogEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeParsing, "list ids %s: invalid JSON", clock.FormatDate(date))
	}
	ids := make([]int64, 0, len(env.IVODs))
	for _, it := range env.IVODs {
		id, err := it.IVODID.Int64()
		if err != nil {
			return nil, perr.Parsingf("list ids %s: bad IVOD_ID %q", clock.FormatDate(date), it.IVODID.String())
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetRecord fetches one IVOD document. The API wraps payloads in an
// {error, message, data} envelope and reports failures on HTTP 200
func (c *Client) GetRecord(ctx context.Context, id int64) (*RawRecord, error) {
	u := fmt.Sprintf("%s/ivods/%d", c.opts.BaseURL, id)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, perr.Networkf("empty response for ivod %d", id)
	}

	var env recordEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, perr.WithField(
			perr.Wrapf(err, perr.ErrorCodeParsing, "ivod %d: invalid JSON: %s", id, truncate(string(body), 500)),
			"body",
		)
	}
	if env.Error {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, perr.Networkf("api error for ivod %d: %s", id, msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" || string(env.Data) == "{}" {
		return nil, perr.Parsingf("no data for ivod %d", id)
	}

	var rec RawRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, perr.WithField(
			perr.Wrapf(err, perr.ErrorCodeParsing, "ivod %d: bad record shape: %s", id, truncate(string(env.Data), 500)),
			"data",
		)
	}
	return &rec, nil
}

// parseISODate accepts both plain dates and full ISO-8601 timestamps
func parseISODate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(clock.DateLayout, s, clock.Taipei); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.In(clock.Taipei)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, clock.Taipei), nil
	}
	return time.Time{}, perr.Parsingf("invalid catalog date %q", s)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
