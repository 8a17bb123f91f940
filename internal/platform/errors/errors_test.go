package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"nil-ish plain error", stderrs.New("boom"), ErrorCodeUnknown},
		{"data", Dataf("missing 日期"), ErrorCodeData},
		{"parsing", Parsingf("bad json"), ErrorCodeParsing},
		{"network", Networkf("502"), ErrorCodeNetwork},
		{"ssl", SSLf("handshake"), ErrorCodeSSL},
		{"timeout", Timeoutf("deadline"), ErrorCodeTimeout},
		{"transcript", Transcriptf("empty"), ErrorCodeTranscript},
		{"db", DBf("commit"), ErrorCodeDB},
		{"config", Configf("bad env"), ErrorCodeConfig},
		{"not found", NotFoundf("ivod 1"), ErrorCodeNotFound},
		{"interrupted", Interruptedf("signal"), ErrorCodeInterrupted},
		{"wrapped keeps code", fmt.Errorf("outer: %w", Networkf("inner")), ErrorCodeNetwork},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.code {
				t.Fatalf("CodeOf = %d, want %d", got, tc.code)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(Interruptedf("ctrl-c")); got != 130 {
		t.Fatalf("ExitCode(interrupted) = %d, want 130", got)
	}
	if got := ExitCode(Wrap(context.Canceled, ErrorCodeInterrupted, "run interrupted")); got != 130 {
		t.Fatalf("ExitCode(wrapped cancel) = %d, want 130", got)
	}
	if got := ExitCode(Networkf("502")); got != 1 {
		t.Fatalf("ExitCode(network) = %d, want 1", got)
	}
	if got := ExitCode(stderrs.New("boom")); got != 1 {
		t.Fatalf("ExitCode(plain) = %d, want 1", got)
	}
}

func TestWrapPreservesRoot(t *testing.T) {
	root := stderrs.New("root cause")
	err := Wrapf(root, ErrorCodeDB, "commit batch of %d", 3)

	if !stderrs.Is(err, root) {
		t.Fatalf("wrapped error lost its root")
	}
	if got := Root(err); got != root {
		t.Fatalf("Root = %v, want %v", got, root)
	}
	if CodeOf(err) != ErrorCodeDB {
		t.Fatalf("CodeOf = %d, want db", CodeOf(err))
	}
}

func TestWithFieldAndOp(t *testing.T) {
	base := Parsingf("bad payload")
	err := WithOp(WithField(base, "body"), "GetRecord")

	e, ok := As(err)
	if !ok {
		t.Fatalf("As failed on project error")
	}
	if e.Field() != "body" {
		t.Fatalf("Field = %q, want body", e.Field())
	}
	if e.Op() != "GetRecord" {
		t.Fatalf("Op = %q, want GetRecord", e.Op())
	}

	// the original must stay untouched
	orig, _ := As(base)
	if orig.Field() != "" || orig.Op() != "" {
		t.Fatalf("WithField/WithOp mutated the original error")
	}
}

func TestWrapIf(t *testing.T) {
	if WrapIf(nil, ErrorCodeDB, "noop") != nil {
		t.Fatalf("WrapIf(nil) should stay nil")
	}
	err := WrapIf(stderrs.New("x"), ErrorCodeDB, "wrapped")
	if CodeOf(err) != ErrorCodeDB {
		t.Fatalf("WrapIf did not attach the code")
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", Networkf("reset"), true},
		{"timeout", Timeoutf("deadline"), true},
		{"sqlite busy", stderrs.New("database is locked"), true},
		{"mysql lock wait", stderrs.New("Lock wait timeout exceeded; try restarting transaction"), true},
		{"data", Dataf("missing"), false},
		{"parsing", Parsingf("bad"), false},
		{"nil", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Transient(tc.err); got != tc.want {
				t.Fatalf("Transient = %v, want %v", got, tc.want)
			}
		})
	}
}
