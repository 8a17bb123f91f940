package assemble

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"ivodsync/internal/adapters/ingest/lyapi"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/testkit"
	"ivodsync/internal/services/transcripts/domain"
)

type stubSpeech struct {
	text  string
	calls int
}

func (s *stubSpeech) FetchSpeech(ctx context.Context, ivodID int64) string {
	s.calls++
	return s.text
}

func validRaw() *lyapi.RawRecord {
	return &lyapi.RawRecord{
		IVODURL:     "https://ivod.ly.gov.tw/Play/Clip/300K/152575",
		Date:        "2024-03-15",
		MeetingTime: "2024-03-15T09:00:00",
		Meeting: lyapi.RawMeeting{
			Code:           json.Number("2024031501"),
			CodeStr:        "院會-11-1-5",
			Category:       "院會",
			CommitteeNames: []string{"內政委員會"},
			Title:          "第11屆第1會期第5次會議",
		},
		VideoType:   "Clip",
		VideoStart:  "09:05:00",
		VideoEnd:    "09:20:00",
		VideoLength: "00:15:00",
		VideoURL:    "https://ivod.ly.gov.tw/video/152575",
		SpeakerName: "委員某某",
		MeetingName: "院會",
		Transcript: &lyapi.RawWhisper{WhisperX: []lyapi.WhisperSegment{
			{Text: "主席請"},
			{Text: "委員發言"},
		}},
		Gazette: &lyapi.RawGazette{Blocks: [][]string{
			{"第一段第一行", "第一段第二行"},
			{"第二段"},
		}},
	}
}

func TestRecordHappyPath(t *testing.T) {
	rec, err := Record(context.Background(), 152575, validRaw(), nil, nil)
	testkit.MustNoErr(t, err)

	if rec.IVODID != 152575 {
		t.Fatalf("IVODID = %d", rec.IVODID)
	}
	if rec.MeetingCode != "2024031501" {
		t.Fatalf("MeetingCode = %q", rec.MeetingCode)
	}
	if rec.Title != "第11屆第1會期第5次會議" {
		t.Fatalf("Title = %q", rec.Title)
	}
	if rec.Date.Year() != 2024 || rec.Date.Day() != 15 {
		t.Fatalf("Date = %v", rec.Date)
	}
	if rec.MeetingTime == nil || rec.MeetingTime.Hour() != 9 {
		t.Fatalf("MeetingTime = %v", rec.MeetingTime)
	}
	if rec.LastUpdated.IsZero() {
		t.Fatalf("LastUpdated not stamped")
	}

	if rec.AITranscript != "主席請委員發言" {
		t.Fatalf("AITranscript = %q", rec.AITranscript)
	}
	if rec.AIStatus != domain.StatusSuccess || rec.AIRetries != 0 {
		t.Fatalf("AI triple = %s/%d", rec.AIStatus, rec.AIRetries)
	}

	want := "第一段第一行\n第一段第二行\n\n第二段"
	if rec.LYTranscript != want {
		t.Fatalf("LYTranscript = %q, want %q", rec.LYTranscript, want)
	}
	if rec.LYStatus != domain.StatusSuccess {
		t.Fatalf("LY status = %s", rec.LYStatus)
	}
}

func TestRecordRequiredFields(t *testing.T) {
	raw := validRaw()
	raw.Date = ""
	_, err := Record(context.Background(), 1, raw, nil, nil)
	testkit.MustErrCode(t, err, perr.ErrorCodeData)

	raw = validRaw()
	raw.MeetingTime = "  "
	_, err = Record(context.Background(), 1, raw, nil, nil)
	testkit.MustErrCode(t, err, perr.ErrorCodeData)

	_, err = Record(context.Background(), 1, nil, nil, nil)
	testkit.MustErrCode(t, err, perr.ErrorCodeData)
}

func TestRecordMalformedDates(t *testing.T) {
	raw := validRaw()
	raw.Date = "15/03/2024"
	_, err := Record(context.Background(), 1, raw, nil, nil)
	testkit.MustErrCode(t, err, perr.ErrorCodeParsing)

	raw = validRaw()
	raw.MeetingTime = "morning"
	_, err = Record(context.Background(), 1, raw, nil, nil)
	testkit.MustErrCode(t, err, perr.ErrorCodeParsing)
}

func TestRecordDateWithTimestamp(t *testing.T) {
	// some catalog rows put a full timestamp in the date field
	raw := validRaw()
	raw.Date = "2024-03-15 09:00:00"
	rec, err := Record(context.Background(), 1, raw, nil, nil)
	testkit.MustNoErr(t, err)
	if rec.Date.Hour() != 0 {
		t.Fatalf("date not truncated to midnight: %v", rec.Date)
	}
}

func TestAIFailureSeedsAndIncrementsRetries(t *testing.T) {
	raw := validRaw()
	raw.Transcript = nil

	rec, err := Record(context.Background(), 1, raw, nil, nil)
	testkit.MustNoErr(t, err)
	if rec.AIStatus != domain.StatusFailed || rec.AIRetries != 1 {
		t.Fatalf("new record AI triple = %s/%d, want failed/1", rec.AIStatus, rec.AIRetries)
	}

	prev := &domain.Transcript{AIRetries: 3}
	rec, err = Record(context.Background(), 1, raw, prev, nil)
	testkit.MustNoErr(t, err)
	if rec.AIRetries != 4 {
		t.Fatalf("AI retries = %d, want prev+1", rec.AIRetries)
	}
}

func TestLYSpeechFallback(t *testing.T) {
	raw := validRaw()
	raw.Gazette = nil
	speech := &stubSpeech{text: "逐字稿內容"}

	rec, err := Record(context.Background(), 1, raw, nil, speech)
	testkit.MustNoErr(t, err)
	if speech.calls != 1 {
		t.Fatalf("speech fetcher called %d times", speech.calls)
	}
	if rec.LYTranscript != "逐字稿內容" || rec.LYStatus != domain.StatusSuccess {
		t.Fatalf("LY triple = %q/%s", rec.LYTranscript, rec.LYStatus)
	}
}

func TestLYEmptyGazetteBlocksFallThrough(t *testing.T) {
	raw := validRaw()
	raw.Gazette = &lyapi.RawGazette{Blocks: [][]string{}}
	speech := &stubSpeech{text: ""}

	rec, err := Record(context.Background(), 1, raw, nil, speech)
	testkit.MustNoErr(t, err)
	if rec.LYStatus != domain.StatusFailed || rec.LYRetries != 1 {
		t.Fatalf("LY triple = %s/%d, want failed/1", rec.LYStatus, rec.LYRetries)
	}
}

func TestLYGazetteWinsOverSpeech(t *testing.T) {
	raw := validRaw()
	speech := &stubSpeech{text: "should not be used"}

	rec, err := Record(context.Background(), 1, raw, nil, speech)
	testkit.MustNoErr(t, err)
	if speech.calls != 0 {
		t.Fatalf("speech page fetched despite gazette transcript")
	}
	if rec.LYStatus != domain.StatusSuccess {
		t.Fatalf("LY status = %s", rec.LYStatus)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("委", 200) // 600 bytes
	got := truncate(s, 500)
	if len(got) > 500 {
		t.Fatalf("truncate length = %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got[len(got)-3:])
	}
	if utf8.RuneCountInString(got) != 166 {
		t.Fatalf("truncate runes = %d, want 166", utf8.RuneCountInString(got))
	}

	if got := truncate("short", 500); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
}

func TestCommitteeNamesDefaultEmpty(t *testing.T) {
	raw := validRaw()
	raw.Meeting.CommitteeNames = nil

	rec, err := Record(context.Background(), 1, raw, nil, nil)
	testkit.MustNoErr(t, err)
	if rec.CommitteeNames == nil || len(rec.CommitteeNames) != 0 {
		t.Fatalf("CommitteeNames = %v, want empty slice", rec.CommitteeNames)
	}
}
