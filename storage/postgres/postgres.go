// Package postgres provides a PostgreSQL implementation of the subscription.Store interface.
// Subscriptions live in a single table keyed by subscription id and are written with upserts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Schema creates the subscription table. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS mercury_subscriptions (
	id           TEXT PRIMARY KEY,
	endpoint     TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	secret       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	target       TEXT NOT NULL DEFAULT '',
	event_types  TEXT[] NOT NULL DEFAULT '{}',
	filter_paths TEXT[] NOT NULL DEFAULT '{}',
	environment  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// Storage implements subscription.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate creates the table on startup
	AutoMigrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}

	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

// Migrate creates the subscription table if it does not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity to the database.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get implements subscription.Store
func (s *Storage) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		secret string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, endpoint, external_id, secret, status, target, event_types,
			filter_paths, environment, created_at, updated_at
			FROM mercury_subscriptions WHERE id = $1`,
		id).Scan(
		&sub.ID, &sub.Endpoint, &sub.ExternalID, &secret, &sub.Status, &sub.Target,
		&sub.EventTypes, &sub.FilterPaths, &sub.Environment, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.Secret = mercury.Secret(secret)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	if len(sub.EventTypes) == 0 {
		sub.EventTypes = nil
	}
	if len(sub.FilterPaths) == 0 {
		sub.FilterPaths = nil
	}
	return &sub, nil
}

// Put implements subscription.Store
func (s *Storage) Put(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	eventTypes := sub.EventTypes
	if eventTypes == nil {
		eventTypes = []string{}
	}
	filterPaths := sub.FilterPaths
	if filterPaths == nil {
		filterPaths = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO mercury_subscriptions (id, endpoint, external_id, secret, status, target,
			event_types, filter_paths, environment, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				endpoint = EXCLUDED.endpoint,
				external_id = EXCLUDED.external_id,
				secret = EXCLUDED.secret,
				status = EXCLUDED.status,
				target = EXCLUDED.target,
				event_types = EXCLUDED.event_types,
				filter_paths = EXCLUDED.filter_paths,
				environment = EXCLUDED.environment,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.Endpoint, sub.ExternalID, string(sub.Secret), sub.Status, sub.Target,
		eventTypes, filterPaths, sub.Environment, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put subscription: %w", err)
	}
	return nil
}

// Delete implements subscription.Store
func (s *Storage) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mercury_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrNotFound
	}
	return nil
}
