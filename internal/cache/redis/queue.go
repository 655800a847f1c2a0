package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

const opportunityQueueKey = "queue:opportunities"

// OpportunityQueue implements domain.OpportunityQueue as a Redis list.
// Push LPUSHes JSON payloads and Pop BRPOPs, so each entry reaches
// exactly one executor in FIFO order and survives process restarts.
type OpportunityQueue struct {
	rdb *redis.Client
	key string
}

var _ domain.OpportunityQueue = (*OpportunityQueue)(nil)

// NewOpportunityQueue creates an OpportunityQueue backed by the given Client.
func NewOpportunityQueue(c *Client) *OpportunityQueue {
	return &OpportunityQueue{rdb: c.rdb, key: opportunityQueueKey}
}

// Push enqueues an opportunity for execution.
func (q *OpportunityQueue) Push(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", opp.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis: push opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// Pop blocks up to timeout for the next queued opportunity. A nil result
// with nil error means the timeout elapsed on an empty queue.
func (q *OpportunityQueue) Pop(ctx context.Context, timeout time.Duration) (*domain.ArbitrageOpportunity, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: pop opportunity: %w", err)
	}
	// BRPOP replies [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("redis: pop opportunity: unexpected reply of %d elements", len(vals))
	}

	var opp domain.ArbitrageOpportunity
	if err := json.Unmarshal([]byte(vals[1]), &opp); err != nil {
		return nil, fmt.Errorf("redis: unmarshal opportunity: %w", err)
	}
	return &opp, nil
}

// Len returns the number of queued opportunities.
func (q *OpportunityQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: queue length: %w", err)
	}
	return n, nil
}
