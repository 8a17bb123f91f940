package config

import (
	stderrs "errors"
	"strconv"
	"time"

	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/store"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment selects per-environment database and index names
type Environment string

// Known environments
const (
	EnvTesting     Environment = "testing"
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Env resolves the active environment: TESTING=true wins, then
// DB_ENV=production, default development
func Env() Environment {
	c := New()
	if c.MayBool("TESTING", false) {
		return EnvTesting
	}
	if c.MayString("DB_ENV", "") == "production" {
		return EnvProduction
	}
	return EnvDevelopment
}

// App is the full validated runtime configuration
type App struct {
	Env      Environment `validate:"required,oneof=testing development production"`
	Database Database    `validate:"required"`
	Search   Search      `validate:"required"`
	Crawler  Crawler     `validate:"required"`
}

// Database selects and configures the SQL backend
type Database struct {
	Backend    string `validate:"required,oneof=sqlite postgresql mysql"`
	SQLitePath string
	Host       string `validate:"required_unless=Backend sqlite"`
	Port       int    `validate:"required_unless=Backend sqlite,min=0,max=65535"`
	User       string
	Password   string
	Name       string `validate:"required_unless=Backend sqlite"`
	LogSQL     bool
}

// Search configures the Elasticsearch alignment target
type Search struct {
	Enabled  bool
	Scheme   string `validate:"oneof=http https"`
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	User     string
	Password string
	Index    string `validate:"required"`
}

// Crawler configures fetch politeness and batching
type Crawler struct {
	SkipSSL        bool
	Timeout        time.Duration `validate:"gt=0"`
	MaxRetries     int           `validate:"min=0"`
	BatchSize      int           `validate:"gt=0"`
	CommitInterval int           `validate:"gt=0"`
	MinSleep       time.Duration `validate:"min=0"`
	MaxSleep       time.Duration `validate:"min=0,gtefield=MinSleep"`
	LogPath        string        `validate:"required"`
	LedgerPath     string        `validate:"required"`
}

// Load reads .env (when present), resolves the environment, builds the typed
// config, and validates it. Invalid config fails before any work starts
func Load() (App, error) {
	// missing .env is fine; the environment may be fully set already
	_ = godotenv.Load()

	env := Env()
	c := New()

	app := App{
		Env:      env,
		Database: loadDatabase(c, env),
		Search:   loadSearch(c, env),
		Crawler:  loadCrawler(c),
	}

	if err := validator.New().Struct(app); err != nil {
		var verrs validator.ValidationErrors
		if stderrs.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return App{}, perr.WithField(
				perr.Configf("invalid config: %s failed %q", fe.Namespace(), fe.Tag()),
				fe.Field(),
			)
		}
		return App{}, perr.Wrap(err, perr.ErrorCodeConfig, "invalid config")
	}
	return app, nil
}

func loadDatabase(c Conf, env Environment) Database {
	backend := c.MayEnum("DB_BACKEND", store.BackendSQLite,
		store.BackendSQLite, store.BackendPostgres, store.BackendMySQL)

	d := Database{Backend: backend, LogSQL: c.MayBool("DB_LOG_SQL", false)}

	switch backend {
	case store.BackendSQLite:
		switch env {
		case EnvTesting:
			d.SQLitePath = c.MayString("TEST_SQLITE_PATH", "../db/ivod_test.db")
		case EnvDevelopment:
			d.SQLitePath = c.MayString("DEV_SQLITE_PATH", "../db/ivod_dev.db")
		default:
			d.SQLitePath = c.MayString("SQLITE_PATH", "../db/ivod_local.db")
		}
	case store.BackendPostgres:
		pg := c.Prefix("PG_")
		d.Host = pg.MayString("HOST", "localhost")
		d.Port = pg.MayInt("PORT", 5432)
		d.User = pg.MayString("USER", "ivod_user")
		d.Password = pg.MayString("PASS", "ivod_password")
		switch env {
		case EnvTesting:
			d.Name = pg.MayString("TEST_DB", "ivod_test_db")
		case EnvDevelopment:
			d.Name = pg.MayString("DEV_DB", "ivod_dev_db")
		default:
			d.Name = pg.MayString("DB", "ivod_db")
		}
	case store.BackendMySQL:
		my := c.Prefix("MYSQL_")
		d.Host = my.MayString("HOST", "localhost")
		d.Port = my.MayInt("PORT", 3306)
		d.User = my.MayString("USER", "ivod_user")
		d.Password = my.MayString("PASS", "ivod_password")
		switch env {
		case EnvTesting:
			d.Name = my.MayString("TEST_DB", "ivod_test_db")
		case EnvDevelopment:
			d.Name = my.MayString("DEV_DB", "ivod_dev_db")
		default:
			d.Name = my.MayString("DB", "ivod_db")
		}
	}
	return d
}

func loadSearch(c Conf, env Environment) Search {
	es := c.Prefix("ES_")
	s := Search{
		Enabled:  c.MayBool("ENABLE_ELASTICSEARCH", true),
		Scheme:   es.MayEnum("SCHEME", "http", "http", "https"),
		Host:     es.MayString("HOST", "localhost"),
		Port:     es.MayInt("PORT", 9200),
		User:     es.MayString("USER", ""),
		Password: es.MayString("PASS", ""),
	}
	switch env {
	case EnvTesting:
		s.Index = es.MayString("TEST_INDEX", "ivod_test_transcripts")
	case EnvDevelopment:
		s.Index = es.MayString("DEV_INDEX", "ivod_dev_transcripts")
	default:
		s.Index = es.MayString("INDEX", "ivod_transcripts")
	}
	return s
}

func loadCrawler(c Conf) Crawler {
	return Crawler{
		SkipSSL:        c.MayBool("SKIP_SSL", false),
		Timeout:        c.MaySeconds("CRAWLER_TIMEOUT", 30*time.Second),
		MaxRetries:     c.MayInt("MAX_RETRIES", 5),
		BatchSize:      c.MayInt("BATCH_SIZE", 100),
		CommitInterval: c.MayInt("COMMIT_INTERVAL", 10),
		MinSleep:       c.MaySeconds("MIN_SLEEP", 500*time.Millisecond),
		MaxSleep:       c.MaySeconds("MAX_SLEEP", 2*time.Second),
		LogPath:        c.MayString("LOG_PATH", "logs"),
		LedgerPath:     c.MayString("ERROR_LOG_PATH", "logs/failed_ivods.txt"),
	}
}

// StoreConfig maps the database section onto the store layer's config
func (d Database) StoreConfig() store.Config {
	return store.Config{
		AppName:    "ivodsync",
		Backend:    d.Backend,
		SQLitePath: d.SQLitePath,
		Host:       d.Host,
		Port:       d.Port,
		User:       d.User,
		Password:   d.Password,
		Database:   d.Name,
		LogSQL:     d.LogSQL,
	}
}

// URL renders the search base URL
func (s Search) URL() string {
	return s.Scheme + "://" + s.Host + ":" + strconv.Itoa(s.Port)
}
