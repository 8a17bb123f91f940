package lyapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/testkit"
)

func testClient(baseURL string) *Client {
	c := NewClient(Options{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
		MinSleep:   time.Millisecond,
		MaxSleep:   2 * time.Millisecond,
	})
	c.sleep = func(time.Duration) {}
	return c
}

func TestListIDs(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ivods":[
			{"IVOD_ID":152575,"日期":"2024-03-15"},
			{"IVOD_ID":"152576","日期":"2024-03-15"}
		]}`))
	}))
	defer srv.Close()

	date, _ := clock.ParseDate("2024-03-15")
	ids, err := testClient(srv.URL).ListIDs(context.Background(), date)
	testkit.MustNoErr(t, err)

	if len(ids) != 2 || ids[0] != 152575 || ids[1] != 152576 {
		t.Fatalf("ids = %v", ids)
	}
	testkit.MustContain(t, gotQuery, "limit=600")
	// 日期 arrives percent-encoded
	testkit.MustContain(t, gotQuery, "2024-03-15")
}

func TestListIDsBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>WAF block page</html>`))
	}))
	defer srv.Close()

	date, _ := clock.ParseDate("2024-03-15")
	_, err := testClient(srv.URL).ListIDs(context.Background(), date)
	testkit.MustErrCode(t, err, perr.ErrorCodeParsing)
}

func TestGetRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ivods/152575" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"error":false,"data":{
			"IVOD_URL":"https://ivod.ly.gov.tw/Play/Clip/300K/152575",
			"日期":"2024-03-15",
			"會議時間":"2024-03-15T09:00:00",
			"會議資料":{"會議代碼":2024031501,"標題":"第5次會議","委員會代碼:str":["內政委員會"]},
			"委員名稱":"委員某某",
			"transcript":{"whisperx":[{"text":"主席請"}]}
		}}`))
	}))
	defer srv.Close()

	rec, err := testClient(srv.URL).GetRecord(context.Background(), 152575)
	testkit.MustNoErr(t, err)

	if rec.Date != "2024-03-15" || rec.MeetingTime != "2024-03-15T09:00:00" {
		t.Fatalf("dates = %q / %q", rec.Date, rec.MeetingTime)
	}
	if rec.Meeting.Code.String() != "2024031501" {
		t.Fatalf("meeting code = %q", rec.Meeting.Code)
	}
	if rec.SpeakerName != "委員某某" {
		t.Fatalf("speaker = %q", rec.SpeakerName)
	}
	if rec.Transcript == nil || len(rec.Transcript.WhisperX) != 1 {
		t.Fatalf("whisperx = %+v", rec.Transcript)
	}
	if rec.Gazette != nil {
		t.Fatalf("absent gazette should stay nil")
	}
}

func TestGetRecordEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the API reports failures on HTTP 200
		w.Write([]byte(`{"error":true,"message":"not found"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetRecord(context.Background(), 1)
	testkit.MustErrCode(t, err, perr.ErrorCodeNetwork)
	testkit.MustContain(t, err.Error(), "not found")
}

func TestGetRecordEmptyData(t *testing.T) {
	for _, body := range []string{`{"error":false,"data":null}`, `{"error":false,"data":{}}`, `{"error":false}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		_, err := testClient(srv.URL).GetRecord(context.Background(), 1)
		srv.Close()
		testkit.MustErrCode(t, err, perr.ErrorCodeParsing)
	}
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ivods":[{"IVOD_ID":1,"日期":"2024-03-15"}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).LatestDate(context.Background())
	testkit.MustNoErr(t, err)
	if hits != 2 {
		t.Fatalf("server hit %d times, want 2", hits)
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetRecord(context.Background(), 1)
	testkit.MustErrCode(t, err, perr.ErrorCodeNetwork)
	if hits != 1 {
		t.Fatalf("404 retried %d times", hits)
	}
}

func TestGetHonorsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(srv.URL).GetRecord(ctx, 1)
	testkit.MustErrCode(t, err, perr.ErrorCodeInterrupted)
}

func TestLatestDate(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ivods":[{"IVOD_ID":9,"日期":"2024-06-01T10:00:00+08:00"}]}`))
	}))
	defer srv.Close()

	d, err := testClient(srv.URL).LatestDate(context.Background())
	testkit.MustNoErr(t, err)
	testkit.MustContain(t, gotQuery, "limit=1")
	if clock.FormatDate(d) != "2024-06-01" {
		t.Fatalf("LatestDate = %s", clock.FormatDate(d))
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("院", 10) // 30 bytes
	got := truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got != strings.Repeat("院", 3) {
		t.Fatalf("truncate = %q", got)
	}
}

func TestCleanSpeech(t *testing.T) {
	in := "第一行<br />第二行<br />  "
	if got := CleanSpeech(in); got != "第一行\n第二行" {
		t.Fatalf("CleanSpeech = %q", got)
	}
}

func TestPoliteSleepStaysInRange(t *testing.T) {
	c := NewClient(Options{MinSleep: 10 * time.Millisecond, MaxSleep: 20 * time.Millisecond})
	var slept time.Duration
	c.sleep = func(d time.Duration) { slept = d }
	c.randf = func() float64 { return 0.5 }

	c.PoliteSleep()
	if slept != 15*time.Millisecond {
		t.Fatalf("slept %v, want 15ms", slept)
	}
}
