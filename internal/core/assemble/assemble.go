// Package assemble turns a raw catalog document into a transcript record.
// It is pure apart from the speech-page fallback
package assemble

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"ivodsync/internal/adapters/ingest/lyapi"
	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/services/transcripts/domain"

	"golang.org/x/text/unicode/norm"
)

// meeting_time arrives in several ISO-8601 flavors depending on the source row
var meetingTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Record builds a domain.Transcript from the raw document.
// prev is the stored record (nil for new ids) and only feeds retry counts.
// Metadata problems return Data/Parsing errors; transcript extraction never
// fails the record, it lands in the per-kind status/retries triple instead
func Record(ctx context.Context, id int64, raw *lyapi.RawRecord, prev *domain.Transcript, speech lyapi.SpeechFetcher) (*domain.Transcript, error) {
	if raw == nil {
		return nil, perr.Dataf("no document for ivod %d", id)
	}
	if strings.TrimSpace(raw.Date) == "" {
		return nil, perr.WithField(perr.Dataf("missing date for ivod %d", id), "日期")
	}
	if strings.TrimSpace(raw.MeetingTime) == "" {
		return nil, perr.WithField(perr.Dataf("missing meeting time for ivod %d", id), "會議時間")
	}

	date, err := parseDate(raw.Date)
	if err != nil {
		return nil, perr.WithField(
			perr.Parsingf("invalid date for ivod %d: %s", id, truncate(raw.Date, 500)), "日期")
	}
	meetingTime, err := parseMeetingTime(raw.MeetingTime)
	if err != nil {
		return nil, perr.WithField(
			perr.Parsingf("invalid meeting time for ivod %d: %s", id, truncate(raw.MeetingTime, 500)), "會議時間")
	}

	rec := &domain.Transcript{
		IVODID:         id,
		IVODURL:        raw.IVODURL,
		Date:           date,
		MeetingCode:    raw.Meeting.Code.String(),
		MeetingCodeStr: raw.Meeting.CodeStr,
		Category:       raw.Meeting.Category,
		CommitteeNames: raw.Meeting.CommitteeNames,
		VideoType:      raw.VideoType,
		VideoStart:     raw.VideoStart,
		VideoEnd:       raw.VideoEnd,
		VideoLength:    raw.VideoLength,
		VideoURL:       raw.VideoURL,
		Title:          raw.Meeting.Title,
		SpeakerName:    raw.SpeakerName,
		MeetingTime:    &meetingTime,
		MeetingName:    raw.MeetingName,
		LastUpdated:    clock.Now(),
	}
	if rec.CommitteeNames == nil {
		rec.CommitteeNames = []string{}
	}

	attachAI(rec, raw, prev)
	attachLY(ctx, rec, raw, prev, speech)
	return rec, nil
}

// attachAI concatenates the whisperx segments; empty means failed
func attachAI(rec *domain.Transcript, raw *lyapi.RawRecord, prev *domain.Transcript) {
	if raw.Transcript == nil || len(raw.Transcript.WhisperX) == 0 {
		rec.SetFailure(domain.KindAI, prev)
		return
	}
	var b strings.Builder
	for _, seg := range raw.Transcript.WhisperX {
		b.WriteString(seg.Text)
	}
	text := norm.NFC.String(b.String())
	if text == "" {
		rec.SetFailure(domain.KindAI, prev)
		return
	}
	rec.SetSuccess(domain.KindAI, text)
}

// attachLY prefers gazette blocks; absent or empty blocks fall through to the
// speech page. An empty speech page means failed
func attachLY(ctx context.Context, rec *domain.Transcript, raw *lyapi.RawRecord, prev *domain.Transcript, speech lyapi.SpeechFetcher) {
	if raw.Gazette != nil && len(raw.Gazette.Blocks) > 0 {
		parts := make([]string, 0, len(raw.Gazette.Blocks))
		for _, block := range raw.Gazette.Blocks {
			parts = append(parts, strings.Join(block, "\n"))
		}
		text := norm.NFC.String(strings.Join(parts, "\n\n"))
		if text != "" {
			rec.SetSuccess(domain.KindLY, text)
			return
		}
	}

	if speech != nil {
		if text := norm.NFC.String(speech.FetchSpeech(ctx, rec.IVODID)); strings.TrimSpace(text) != "" {
			rec.SetSuccess(domain.KindLY, text)
			return
		}
	}
	rec.SetFailure(domain.KindLY, prev)
}

func parseDate(s string) (time.Time, error) {
	if t, err := clock.ParseDate(s); err == nil {
		return t, nil
	}
	// some rows carry a full timestamp in the date field
	for _, layout := range meetingTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, clock.Taipei); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, clock.Taipei), nil
		}
	}
	return time.Time{}, perr.Parsingf("invalid date %q", s)
}

func parseMeetingTime(s string) (time.Time, error) {
	for _, layout := range meetingTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, clock.Taipei); err == nil {
			return t.In(clock.Taipei), nil
		}
	}
	return time.Time{}, perr.Parsingf("invalid meeting time %q", s)
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
