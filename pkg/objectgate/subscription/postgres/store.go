package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/object-gate/pkg/objectgate/subscription"
)

//go:embed migrations
var migrationsFS embed.FS

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements objectgate.SubscriptionStore using PostgreSQL
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL subscription store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Connect creates and validates a pgx connection pool
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate runs all pending up migrations embedded in the binary
func Migrate(databaseURL string, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if logger != nil {
		logger.Info("Subscription migrations applied")
	}
	return nil
}

const hasActiveSubscriptionSQL = `
SELECT EXISTS (
    SELECT 1 FROM subscriptions
    WHERE subscriber_id = $1 AND creator_id = $2 AND status = $3
)`

// HasActiveSubscription reports whether subscriberID holds an active subscription to creatorID
func (s *Store) HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, hasActiveSubscriptionSQL, subscriberID, creatorID, string(subscription.StatusActive)).Scan(&exists)
	if err != nil {
		return false, handlePostgresError("has_active_subscription", err)
	}
	return exists, nil
}

const putSubscriptionSQL = `
INSERT INTO subscriptions (subscriber_id, creator_id, status)
VALUES ($1, $2, $3)
ON CONFLICT (subscriber_id, creator_id)
DO UPDATE SET status = EXCLUDED.status, updated_at = now()`

// Put creates or replaces a subscription record
func (s *Store) Put(ctx context.Context, sub subscription.Subscription) error {
	if sub.SubscriberID == "" || sub.CreatorID == "" {
		return errors.New("subscriber and creator are required")
	}
	_, err := s.db.Exec(ctx, putSubscriptionSQL, sub.SubscriberID, sub.CreatorID, string(sub.Status))
	if err != nil {
		return handlePostgresError("put_subscription", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s): %w", operation, pgErr.Message, pgErr.Code, err)
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}
