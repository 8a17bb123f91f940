package store

import (
	"fmt"
	"net/url"
	"time"
)

// Supported backend names (DB_BACKEND env values)
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgresql"
	BackendMySQL    = "mysql"
)

// Config aggregates backend selection and per backend connectivity
type Config struct {
	AppName string

	// Backend is one of the Backend* constants
	Backend string

	// SQLitePath is the database file path ("file::memory:?cache=shared" works for tests)
	SQLitePath string

	// Host/Port/User/Password/Database drive postgres and mysql DSNs
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs
	ConnectRetries int           // default 20
	PingTimeout    time.Duration // default 3s
}

// PGURL renders a pgx connection URL
func (c Config) PGURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
}

// MySQLDSN renders a go-sql-driver DSN. parseTime makes DATETIME scan as time.Time
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// SQLiteDSN renders the modernc sqlite DSN
func (c Config) SQLiteDSN() string {
	if c.SQLitePath == "" {
		return "file::memory:?cache=shared"
	}
	return c.SQLitePath
}
