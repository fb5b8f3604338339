// Package postgres persists timeline events in PostgreSQL, one row per task.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout bounds how long Open waits for the database to accept
// connections. Compose setups often start the server before Postgres.
const connectTimeout = 30 * time.Second

// PostgresStore is the durable store.Store.
type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

// Open connects to databaseURL, retrying the initial ping with exponential
// backoff, then applies pending migrations.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Writes come from the poller alone; reads happen once at startup.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ping(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate timeline schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func ping(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = connectTimeout

	attempt := 0
	op := func() error {
		attempt++
		err := db.PingContext(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("postgres not ready", "attempt", attempt, "retry_in", wait, "err", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil {
		return fmt.Errorf("ping database after %d attempts: %w", attempt, err)
	}
	return nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "timeline_schema_migrations"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) UpsertEvent(ctx context.Context, event *model.Event) error {
	return queryUpsertEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db)
}
