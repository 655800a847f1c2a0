package domain

import (
	"context"
	"time"
)

// PairStore persists monitored pair configuration.
type PairStore interface {
	Insert(ctx context.Context, pair MonitoredPair) (int64, error)
	GetByID(ctx context.Context, id int64) (MonitoredPair, error)
	ListActive(ctx context.Context) ([]MonitoredPair, error)
	List(ctx context.Context) ([]MonitoredPair, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Exists(ctx context.Context, venue Venue, ammMarketID, conditionID string) (bool, error)
}

// OpportunityStore persists the detected-opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	UpdateStatus(ctx context.Context, id string, status ExecutionStatus) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]ArbitrageOpportunity, error)
}

// AppConfigStore is the key/value store for operator-tunable settings read
// at each scheduler re-partition.
type AppConfigStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
