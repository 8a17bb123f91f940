// Package cli bootstraps the workflow binaries: config, logging, signals,
// store, fetcher, and service wiring shared by every entry point
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ivodsync/internal/adapters/ingest/lyapi"
	"ivodsync/internal/core/version"
	"ivodsync/internal/platform/config"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/backup"
	"ivodsync/internal/services/reconcile/ledger"
	"ivodsync/internal/services/reconcile/service"
	"ivodsync/internal/services/search"
)

// App carries the wired dependencies into a command's run function
type App struct {
	Cfg     config.App
	Store   *store.Store
	Svc     *service.Service
	Backup  *backup.Service
	Ledger  *ledger.Ledger
	Aligner *search.Aligner
}

// Main wires the application, runs fn, and exits with the error's exit code.
// SIGINT/SIGTERM cancel the context so a run can stop between records
func Main(fn func(ctx context.Context, app *App) error) {
	logger.Init(logger.FromEnv())
	log := logger.Get()

	build := version.Info()
	log.Debug().
		Str("version", build.Version).
		Str("commit", build.Commit).
		Msg("starting")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		os.Exit(perr.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.StoreConfig(), store.WithLogger(*log))
	if err != nil {
		log.Error().Err(err).Msg("store open failed")
		os.Exit(perr.ExitCode(err))
	}

	fetcher := lyapi.NewClient(lyapi.Options{
		Timeout:    cfg.Crawler.Timeout,
		SkipSSL:    cfg.Crawler.SkipSSL,
		MaxRetries: cfg.Crawler.MaxRetries,
		MinSleep:   cfg.Crawler.MinSleep,
		MaxSleep:   cfg.Crawler.MaxSleep,
	})
	speech := lyapi.NewSpeechFetcher("", cfg.Crawler.Timeout)
	led := ledger.New(cfg.Crawler.LedgerPath)

	aligner, err := search.NewAligner(cfg.Search, service.NewDocSource(st))
	if err != nil {
		log.Warn().Err(err).Msg("search aligner unavailable, index alignment disabled")
		aligner = nil
	}

	app := &App{
		Cfg:     cfg,
		Store:   st,
		Ledger:  led,
		Aligner: aligner,
		Backup:  backup.New(st),
		Svc: service.New(service.Options{
			Store:          st,
			Fetcher:        fetcher,
			Speech:         speech,
			Ledger:         led,
			Aligner:        aligner,
			MaxRetries:     cfg.Crawler.MaxRetries,
			BatchSize:      cfg.Crawler.BatchSize,
			CommitInterval: cfg.Crawler.CommitInterval,
		}),
	}

	runErr := fn(ctx, app)
	if runErr != nil {
		log.Error().Err(runErr).Msg("run failed")
	}

	if err := st.Close(context.Background()); err != nil {
		log.Error().Err(err).Msg("store close failed")
	}
	os.Exit(perr.ExitCode(runErr))
}
