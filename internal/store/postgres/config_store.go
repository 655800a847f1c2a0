package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// ConfigStore implements domain.AppConfigStore using PostgreSQL. Values
// are opaque strings; callers own parsing.
type ConfigStore struct {
	pool *pgxpool.Pool
}

var _ domain.AppConfigStore = (*ConfigStore)(nil)

// NewConfigStore creates a new ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Get returns the value for a single key.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM app_config WHERE key = $1`

	var value string
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: get config %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a key/value pair.
func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO app_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set config %s: %w", key, err)
	}
	return nil
}

// All returns every stored key/value pair.
func (s *ConfigStore) All(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM app_config`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan config row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list config rows: %w", err)
	}
	return values, nil
}
