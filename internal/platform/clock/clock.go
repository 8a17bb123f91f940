// Package clock centralizes time handling for the pipeline.
// All user-facing dates and the last_updated stamp live in UTC+8
package clock

import (
	"time"

	perr "ivodsync/internal/platform/errors"
)

// Taipei is the fixed UTC+8 zone used for every stamp and date boundary.
// A fixed zone avoids a tzdata dependency on minimal images
var Taipei = time.FixedZone("UTC+8", 8*3600)

// DateLayout is the wire format for meeting dates
const DateLayout = "2006-01-02"

// StampLayout is the human-readable second-precision stamp used in the
// failure ledger and last_updated
const StampLayout = "2006-01-02 15:04:05"

// Now returns the current time in UTC+8
func Now() time.Time { return time.Now().In(Taipei) }

// Today returns midnight today in UTC+8
func Today() time.Time {
	n := Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, Taipei)
}

// ParseDate parses a YYYY-MM-DD string into a UTC+8 midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, Taipei)
	if err != nil {
		return time.Time{}, perr.Parsingf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD in UTC+8
func FormatDate(t time.Time) string { return t.In(Taipei).Format(DateLayout) }

// Stamp renders t as "YYYY-MM-DD HH:MM:SS" in UTC+8
func Stamp(t time.Time) string { return t.In(Taipei).Format(StampLayout) }

// DateRange returns every midnight from start to end inclusive (UTC+8).
// start after end yields an empty slice
func DateRange(start, end time.Time) []time.Time {
	start = start.In(Taipei)
	var out []time.Time
	for d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, Taipei); !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DaysBetween returns the whole-day distance between two dates (b - a)
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.In(Taipei).Date()
	by, bm, bd := b.In(Taipei).Date()
	a0 := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	b0 := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(b0.Sub(a0) / (24 * time.Hour))
}

// Ptr returns a pointer to t (helper for optional timestamps)
func Ptr(t time.Time) *time.Time { return &t }
