package config

import (
	"testing"
	"time"

	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/testkit"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TESTING", "DB_ENV", "DB_BACKEND", "ENABLE_ELASTICSEARCH",
		"CRAWLER_TIMEOUT", "MAX_SLEEP", "MIN_SLEEP",
	} {
		t.Setenv(k, "")
	}
}

func TestEnvResolution(t *testing.T) {
	clearEnv(t)
	if got := Env(); got != EnvDevelopment {
		t.Fatalf("default Env = %q, want development", got)
	}

	t.Setenv("TESTING", "true")
	if got := Env(); got != EnvTesting {
		t.Fatalf("Env with TESTING=true = %q, want testing", got)
	}

	// TESTING wins over DB_ENV
	t.Setenv("DB_ENV", "production")
	if got := Env(); got != EnvTesting {
		t.Fatalf("Env with TESTING+DB_ENV = %q, want testing", got)
	}

	t.Setenv("TESTING", "")
	if got := Env(); got != EnvProduction {
		t.Fatalf("Env with DB_ENV=production = %q, want production", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	app, err := Load()
	testkit.MustNoErr(t, err)

	if app.Env != EnvDevelopment {
		t.Fatalf("Env = %q, want development", app.Env)
	}
	if app.Database.Backend != "sqlite" {
		t.Fatalf("Backend = %q, want sqlite", app.Database.Backend)
	}
	if app.Database.SQLitePath != "../db/ivod_dev.db" {
		t.Fatalf("SQLitePath = %q", app.Database.SQLitePath)
	}
	if app.Search.Index != "ivod_dev_transcripts" {
		t.Fatalf("Index = %q", app.Search.Index)
	}
	if app.Crawler.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v", app.Crawler.Timeout)
	}
	if app.Crawler.BatchSize != 100 || app.Crawler.CommitInterval != 10 {
		t.Fatalf("batching = %d/%d", app.Crawler.BatchSize, app.Crawler.CommitInterval)
	}
	if app.Crawler.LedgerPath != "logs/failed_ivods.txt" {
		t.Fatalf("LedgerPath = %q", app.Crawler.LedgerPath)
	}
}

func TestLoadPerEnvironmentNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("TESTING", "true")
	t.Setenv("DB_BACKEND", "postgresql")

	app, err := Load()
	testkit.MustNoErr(t, err)

	if app.Database.Name != "ivod_test_db" {
		t.Fatalf("test db name = %q", app.Database.Name)
	}
	if app.Search.Index != "ivod_test_transcripts" {
		t.Fatalf("test index = %q", app.Search.Index)
	}
	if app.Database.Host != "localhost" || app.Database.Port != 5432 {
		t.Fatalf("pg defaults = %s:%d", app.Database.Host, app.Database.Port)
	}
}

func TestLoadRejectsSleepInversion(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_SLEEP", "5")
	t.Setenv("MAX_SLEEP", "1")

	_, err := Load()
	testkit.MustErrCode(t, err, perr.ErrorCodeConfig)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_BACKEND", "oracle")

	_, err := Load()
	testkit.MustErrCode(t, err, perr.ErrorCodeConfig)
	testkit.MustContain(t, err.Error(), "Backend")
}

func TestLoadOperatorKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRAWLER_TIMEOUT", "30")
	t.Setenv("MIN_SLEEP", "0.5")
	t.Setenv("MAX_SLEEP", "2.0")
	t.Setenv("ENABLE_ELASTICSEARCH", "false")

	app, err := Load()
	testkit.MustNoErr(t, err)

	if app.Crawler.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v", app.Crawler.Timeout)
	}
	if app.Crawler.MinSleep != 500*time.Millisecond || app.Crawler.MaxSleep != 2*time.Second {
		t.Fatalf("sleeps = %v/%v", app.Crawler.MinSleep, app.Crawler.MaxSleep)
	}
	if app.Search.Enabled {
		t.Fatalf("search enabled despite ENABLE_ELASTICSEARCH=false")
	}
}

func TestLoadNormalizesBackendCase(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_BACKEND", "MySQL")

	app, err := Load()
	testkit.MustNoErr(t, err)
	if app.Database.Backend != "mysql" {
		t.Fatalf("Backend = %q, want mysql", app.Database.Backend)
	}
}

func TestSearchURL(t *testing.T) {
	s := Search{Scheme: "https", Host: "es.example", Port: 9243}
	if got := s.URL(); got != "https://es.example:9243" {
		t.Fatalf("URL = %q", got)
	}
}

func TestStoreConfigMapping(t *testing.T) {
	d := Database{Backend: "mysql", Host: "db1", Port: 3306, User: "u", Password: "p", Name: "ivod_db"}
	sc := d.StoreConfig()
	if sc.Backend != "mysql" || sc.Host != "db1" || sc.Database != "ivod_db" {
		t.Fatalf("StoreConfig = %+v", sc)
	}
	if sc.AppName != "ivodsync" {
		t.Fatalf("AppName = %q", sc.AppName)
	}
}
