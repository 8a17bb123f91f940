// Package ledger persists failed IVOD ids across runs so later fix passes
// can pick them up. One line per failure: "<id>,<phase>,<YYYY-MM-DD HH:MM:SS>"
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
)

// Phase tags which workflow recorded the failure
type Phase string

// Ledger phases
const (
	PhaseProcessing  Phase = "processing"
	PhaseIncremental Phase = "incremental"
	PhaseRetry       Phase = "retry"
	PhaseFixRetry    Phase = "fix_retry"
	PhaseManualFix   Phase = "manual_fix"
	PhaseGeneral     Phase = "general"
)

// Ledger is an append-mostly failure file. Appends are O_APPEND single
// writes; removal rewrites the file without the given id
type Ledger struct {
	path string
	mu   sync.Mutex
	log  logger.Logger
}

// New returns a Ledger at path; the file may not exist yet
func New(path string) *Ledger {
	return &Ledger{path: path, log: *logger.Named("ledger")}
}

// Path returns the backing file path
func (l *Ledger) Path() string { return l.path }

// Append records one failure
func (l *Ledger) Append(ivodID int64, phase Phase) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "create ledger dir %s", dir)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "open ledger %s", l.path)
	}
	defer func() { _ = f.Close() }()

	line := fmt.Sprintf("%d,%s,%s\n", ivodID, phase, clock.Stamp(clock.Now()))
	if _, err := f.WriteString(line); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "append ledger %s", l.path)
	}
	return nil
}

// ReadIDs returns the distinct ids in the ledger, first-seen order.
// Malformed lines are skipped with a warning, never fatal
func (l *Ledger) ReadIDs() ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.log.Warn().Str("path", l.path).Msg("ledger file does not exist")
			return nil, nil
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "read ledger %s", l.path)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[int64]bool)
	var ids []int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		field := line
		if i := strings.IndexByte(line, ','); i >= 0 {
			field = line[:i]
		}
		id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			l.log.Warn().Str("line", line).Msg("skipping malformed ledger line")
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "scan ledger %s", l.path)
	}
	return ids, nil
}

// Remove drops every line for ivodID by rewriting the file
func (l *Ledger) Remove(ivodID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "read ledger %s", l.path)
	}

	want := strconv.FormatInt(ivodID, 10)
	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		field := trimmed
		if i := strings.IndexByte(trimmed, ','); i >= 0 {
			field = trimmed[:i]
		}
		if strings.TrimSpace(field) == want {
			continue
		}
		kept = append(kept, line)
	}

	out := ""
	if len(kept) > 0 {
		out = strings.Join(kept, "\n") + "\n"
	}
	if err := os.WriteFile(l.path, []byte(out), 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "rewrite ledger %s", l.path)
	}
	return nil
}
