// Package domain holds the transcript record model shared by the repo,
// the workflows, and the search aligner
package domain

import "time"

// Status tracks one transcript side of a record
type Status string

// Transcript statuses
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Kind names a transcript source
type Kind string

// Transcript kinds
const (
	KindAI Kind = "ai" // machine transcription (whisperx)
	KindLY Kind = "ly" // official gazette / speech page
)

// Transcript is one IVOD record with both transcript sides
type Transcript struct {
	IVODID         int64
	IVODURL        string
	Date           time.Time
	MeetingCode    string
	MeetingCodeStr string
	Category       string
	CommitteeNames []string
	VideoType      string
	VideoStart     string
	VideoEnd       string
	VideoLength    string
	VideoURL       string
	Title          string
	SpeakerName    string
	MeetingTime    *time.Time
	MeetingName    string

	AITranscript string
	AIStatus     Status
	AIRetries    int

	LYTranscript string
	LYStatus     Status
	LYRetries    int

	LastUpdated time.Time
}

// StatusFor returns the status for the given kind
func (t *Transcript) StatusFor(k Kind) Status {
	if k == KindAI {
		return t.AIStatus
	}
	return t.LYStatus
}

// RetriesFor returns the retry count for the given kind
func (t *Transcript) RetriesFor(k Kind) int {
	if k == KindAI {
		return t.AIRetries
	}
	return t.LYRetries
}

// TranscriptFor returns the transcript text for the given kind
func (t *Transcript) TranscriptFor(k Kind) string {
	if k == KindAI {
		return t.AITranscript
	}
	return t.LYTranscript
}

// SetSuccess applies a successful extraction: text set, status success,
// retries reset to zero. The triple always moves together
func (t *Transcript) SetSuccess(k Kind, text string) {
	if k == KindAI {
		t.AITranscript = text
		t.AIStatus = StatusSuccess
		t.AIRetries = 0
		return
	}
	t.LYTranscript = text
	t.LYStatus = StatusSuccess
	t.LYRetries = 0
}

// SetFailure applies a failed extraction: text cleared, status failed,
// retries bumped from prev (a missing prev record seeds the count at 1)
func (t *Transcript) SetFailure(k Kind, prev *Transcript) {
	retries := 1
	if prev != nil {
		retries = prev.RetriesFor(k) + 1
	}
	if k == KindAI {
		t.AITranscript = ""
		t.AIStatus = StatusFailed
		t.AIRetries = retries
		return
	}
	t.LYTranscript = ""
	t.LYStatus = StatusFailed
	t.LYRetries = retries
}

// Patch is a partial update for one transcript side, used by manual fixes
type Patch struct {
	Kind       Kind
	Transcript *string
	Status     *Status
	Retries    *int
}
