package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leadrelay/internal/core/ports"
)

var _ ports.DedupCache = (*RedisRepository)(nil)

// RedisRepository implements the dedup cache. The cache is a fast pre-check
// only; a miss here never means "new message", the database unique key makes
// that call.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func dedupKey(providerMsgID string) string {
	return fmt.Sprintf("dedup:msg:%s", providerMsgID)
}

// Seen reports whether the provider message id has been marked recently.
func (r *RedisRepository) Seen(ctx context.Context, providerMsgID string) (bool, error) {
	err := r.client.Get(ctx, dedupKey(providerMsgID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup cache get: %w", err)
	}
	return true, nil
}

// Mark remembers the provider message id for ttl.
func (r *RedisRepository) Mark(ctx context.Context, providerMsgID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, dedupKey(providerMsgID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("dedup cache set: %w", err)
	}
	return nil
}
