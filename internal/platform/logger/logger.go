// Package logger provides a zerolog wrapper with opinionated defaults and
// run-scoped logging support.
//
// The terminal only sees WARN and above; the daily log file receives INFO
// and above so per-record progress stays reviewable after a run.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ivodsync/internal/platform/config/raw"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Options configures the logger
type Options struct {
	Level        string
	ConsoleLevel string
	Service      string
	Component    string
	LogDir       string // daily file crawler_YYYYMMDD.log lives here; empty disables the file sink
	Writer       io.Writer
	WithCaller   bool
	StaticFields map[string]string
}

// FromEnv builds Options using the logging-free raw config view (no cycles)
func FromEnv() Options {
	rc := raw.New().Prefix("LOG_")
	return Options{
		Level:        strings.ToLower(rc.Get("LEVEL", "info")),
		ConsoleLevel: strings.ToLower(rc.Get("CONSOLE_LEVEL", "warn")),
		Service:      rc.Get("SERVICE", ""),
		Component:    rc.Get("COMPONENT", ""),
		LogDir:       raw.New().Get("LOG_PATH", "logs"),
		WithCaller:   rc.GetBool("CALLER", false),
	}
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Logger is the project-wide logging type - today it's just a zerolog.Logger, but it can be swapped later
type Logger = zerolog.Logger

// Get returns the process-wide root logger as a pointer
func Get() *Logger {
	if !inited.Load() {
		Init(FromEnv())
	}
	return root.Load()
}

// Init configures zerolog and builds the root logger, safe to call once
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		lvl := parseLevel(opt.Level)

		var sinks []io.Writer

		var console io.Writer = os.Stderr
		if opt.Writer != nil {
			console = opt.Writer
		}
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
		sinks = append(sinks, &levelWriter{w: console, min: parseLevel(opt.ConsoleLevel)})

		if opt.LogDir != "" {
			if f, err := openDaily(opt.LogDir); err == nil {
				sinks = append(sinks, &levelWriter{w: f, min: lvl})
			} else {
				fmt.Fprintf(os.Stderr, "logger: cannot open log file: %v\n", err)
			}
		}

		ctx := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(lvl).With().Timestamp()
		if opt.Service != "" {
			ctx = ctx.Str("service", opt.Service)
		}
		if opt.Component != "" {
			ctx = ctx.Str("component", opt.Component)
		}
		for k, v := range opt.StaticFields {
			ctx = ctx.Str(k, v)
		}

		log := ctx.Logger()
		if opt.WithCaller {
			log = log.With().Caller().Logger()
		}

		root.Store(&log)
		inited.Store(true)
	})
}

// openDaily opens (creating if needed) today's log file under dir
func openDaily(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, "crawler_"+time.Now().Format("20060102")+".log")
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// levelWriter drops events below min for one sink
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (lw *levelWriter) Write(p []byte) (int, error) { return lw.w.Write(p) }

func (lw *levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

// parseLevel supports string-only levels
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

type ctxKey struct{ name string }

var (
	keyRunID    = ctxKey{"run_id"}
	keyWorkflow = ctxKey{"workflow"}
)

// WithRun annotates ctx with the workflow name and run id for log correlation
func WithRun(ctx context.Context, workflow, runID string) context.Context {
	if workflow != "" {
		ctx = context.WithValue(ctx, keyWorkflow, workflow)
	}
	if runID != "" {
		ctx = context.WithValue(ctx, keyRunID, runID)
	}
	return ctx
}

// C returns a child logger enriched from ctx (workflow, run_id)
func C(ctx context.Context) *Logger {
	l := Get()
	builder := l.With()
	if v, ok := ctx.Value(keyWorkflow).(string); ok && v != "" {
		builder = builder.Str("workflow", v)
	}
	if v, ok := ctx.Value(keyRunID).(string); ok && v != "" {
		builder = builder.Str("run_id", v)
	}
	ll := builder.Logger()
	return &ll
}

// Named returns a child logger with a component field
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}
