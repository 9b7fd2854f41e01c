// Package store persists conversations, messages and admin records in SQL.
package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	// Register the SQLite driver.
	_ "modernc.org/sqlite"
)

// Driver names a supported database.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore implements conversation persistence over PostgreSQL or SQLite.
type SQLStore struct {
	db     *sqlx.DB
	driver Driver
	now    func() time.Time
}

// Open connects to the database named by driver and dsn.
func Open(ctx context.Context, driver Driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
	case DriverSQLite:
		db, err = sqlx.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// One connection serialises writers and keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, driver), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, driver Driver) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

func sqliteDSN(dsn string) string {
	if dsn == ":memory:" {
		return dsn
	}
	return dsn + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}

// Migrate applies all pending migrations for the store's dialect.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dialect := goose.DialectPostgres
	dir := "migrations/postgres"
	if s.driver == DriverSQLite {
		dialect = goose.DialectSQLite3
		dir = "migrations/sqlite"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, s.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func unixMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
