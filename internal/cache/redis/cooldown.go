package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// CooldownStore implements domain.CooldownStore with plain TTL keys.
// Key expiry ends the cooldown; no cleanup pass is needed.
type CooldownStore struct {
	rdb *redis.Client
}

var _ domain.CooldownStore = (*CooldownStore)(nil)

// NewCooldownStore creates a CooldownStore backed by the given Client.
func NewCooldownStore(c *Client) *CooldownStore {
	return &CooldownStore{rdb: c.rdb}
}

func cooldownKey(key string) string {
	return "cooldown:" + key
}

// Active reports whether the key is still cooling down.
func (s *CooldownStore) Active(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, cooldownKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check cooldown %s: %w", key, err)
	}
	return n > 0, nil
}

// Set starts, or extends, a cooldown for the key.
func (s *CooldownStore) Set(ctx context.Context, key string, d time.Duration) error {
	if err := s.rdb.Set(ctx, cooldownKey(key), "1", d).Err(); err != nil {
		return fmt.Errorf("redis: set cooldown %s: %w", key, err)
	}
	return nil
}
