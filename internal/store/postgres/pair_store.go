package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// PairStore implements domain.PairStore using PostgreSQL.
type PairStore struct {
	pool *pgxpool.Pool
}

var _ domain.PairStore = (*PairStore)(nil)

// NewPairStore creates a new PairStore backed by the given connection pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

const pairSelectCols = `id, venue, amm_market_id, condition_id,
	token_id_yes, token_id_no, flipped,
	profit_threshold_usd, expiry_override, autotrade_enabled, active,
	created_at, updated_at`

// Insert stores a new monitored pair and returns its assigned ID.
func (s *PairStore) Insert(ctx context.Context, pair domain.MonitoredPair) (int64, error) {
	const query = `
		INSERT INTO monitored_pairs (
			venue, amm_market_id, condition_id,
			token_id_yes, token_id_no, flipped,
			profit_threshold_usd, expiry_override, autotrade_enabled, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		pair.Venue, pair.AMMMarketID, pair.ConditionID,
		pair.TokenIDYes, pair.TokenIDNo, pair.Flipped,
		pair.ProfitThresholdUSD, pair.ExpiryOverride, pair.AutotradeEnabled, pair.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert pair %s/%s: %w", pair.Venue, pair.AMMMarketID, err)
	}
	return id, nil
}

// GetByID returns a single monitored pair by primary key.
func (s *PairStore) GetByID(ctx context.Context, id int64) (domain.MonitoredPair, error) {
	query := `SELECT ` + pairSelectCols + ` FROM monitored_pairs WHERE id = $1`

	pair, err := scanPair(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MonitoredPair{}, domain.ErrNotFound
		}
		return domain.MonitoredPair{}, fmt.Errorf("postgres: get pair %d: %w", id, err)
	}
	return pair, nil
}

// ListActive returns the pairs currently eligible for scheduling.
func (s *PairStore) ListActive(ctx context.Context) ([]domain.MonitoredPair, error) {
	query := `SELECT ` + pairSelectCols + ` FROM monitored_pairs WHERE active ORDER BY id`
	return s.listPairs(ctx, query)
}

// List returns every monitored pair, active or not.
func (s *PairStore) List(ctx context.Context) ([]domain.MonitoredPair, error) {
	query := `SELECT ` + pairSelectCols + ` FROM monitored_pairs ORDER BY id`
	return s.listPairs(ctx, query)
}

// SetActive flips the scheduling flag for a pair.
func (s *PairStore) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `
		UPDATE monitored_pairs SET
			active     = $2,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("postgres: set pair %d active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Exists reports whether a pair with the same venue/market/condition
// identity is already registered.
func (s *PairStore) Exists(ctx context.Context, venue domain.Venue, ammMarketID, conditionID string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM monitored_pairs
			WHERE venue = $1 AND amm_market_id = $2 AND condition_id = $3
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, venue, ammMarketID, conditionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check pair exists %s/%s: %w", venue, ammMarketID, err)
	}
	return exists, nil
}

func (s *PairStore) listPairs(ctx context.Context, query string, args ...any) ([]domain.MonitoredPair, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MonitoredPair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pairs rows: %w", err)
	}
	return pairs, nil
}

func scanPair(row pgx.Row) (domain.MonitoredPair, error) {
	var p domain.MonitoredPair
	err := row.Scan(
		&p.ID, &p.Venue, &p.AMMMarketID, &p.ConditionID,
		&p.TokenIDYes, &p.TokenIDNo, &p.Flipped,
		&p.ProfitThresholdUSD, &p.ExpiryOverride, &p.AutotradeEnabled, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
