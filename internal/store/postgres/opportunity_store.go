package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, pair_id, pair_key, direction,
	amm_shares, amm_cost_usd, amm_avg_price, amm_fill_complete,
	book_shares, book_cost_usd, book_avg_price, book_fill_complete,
	guaranteed_payout, total_cost_usd, profit_usd, roi, score, apy,
	fx_rate, market_expiry, detected_at, status, executed_at`

// Insert stores a new detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunity_log (
			id, pair_id, pair_key, direction,
			amm_shares, amm_cost_usd, amm_avg_price, amm_fill_complete,
			book_shares, book_cost_usd, book_avg_price, book_fill_complete,
			guaranteed_payout, total_cost_usd, profit_usd, roi, score, apy,
			fx_rate, market_expiry, detected_at, status, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.PairID, opp.PairKey, opp.Direction,
		opp.AmmLeg.Shares, opp.AmmLeg.Cost, opp.AmmLeg.AvgPrice, opp.AmmLeg.FillComplete,
		opp.BookLeg.Shares, opp.BookLeg.Cost, opp.BookLeg.AvgPrice, opp.BookLeg.FillComplete,
		opp.GuaranteedPayout, opp.TotalCostUSD, opp.ProfitUSD, opp.ROI, opp.Score, opp.APY,
		opp.FXRate, opp.MarketExpiry, opp.DetectedAt, opp.Status, opp.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// UpdateStatus records the execution outcome for an opportunity. Any
// transition away from detected also stamps executed_at.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.ExecutionStatus) error {
	const query = `
		UPDATE opportunity_log SET
			status      = $2,
			executed_at = CASE WHEN $2 = $3 THEN executed_at ELSE NOW() END
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, status, domain.ExecStatusDetected)
	if err != nil {
		return fmt.Errorf("postgres: update opportunity %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recently detected opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunity_log ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.listOpps(ctx, query, args...)
}

// ListBetween returns opportunities detected in [from, to), oldest first.
// Used by the archiver to page through one day at a time.
func (s *OpportunityStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + `
		FROM opportunity_log
		WHERE detected_at >= $1 AND detected_at < $2
		ORDER BY detected_at`
	return s.listOpps(ctx, query, from, to)
}

func (s *OpportunityStore) listOpps(ctx context.Context, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return opps, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var o domain.ArbitrageOpportunity
	err := row.Scan(
		&o.ID, &o.PairID, &o.PairKey, &o.Direction,
		&o.AmmLeg.Shares, &o.AmmLeg.Cost, &o.AmmLeg.AvgPrice, &o.AmmLeg.FillComplete,
		&o.BookLeg.Shares, &o.BookLeg.Cost, &o.BookLeg.AvgPrice, &o.BookLeg.FillComplete,
		&o.GuaranteedPayout, &o.TotalCostUSD, &o.ProfitUSD, &o.ROI, &o.Score, &o.APY,
		&o.FXRate, &o.MarketExpiry, &o.DetectedAt, &o.Status, &o.ExecutedAt,
	)
	return o, err
}
