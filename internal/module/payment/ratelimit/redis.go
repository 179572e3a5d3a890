package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blogauto:ratelimit:"

// Redis is a sliding-window limiter backed by a Redis sorted set, for
// deployments where several processes share one provider quota.
type Redis struct {
	client *redis.Client
	quotas map[string]Quota
}

// NewRedis creates a redis-backed limiter with the given quotas.
func NewRedis(client *redis.Client, quotas map[string]Quota) *Redis {
	normalized := make(map[string]Quota, len(quotas))
	for name, q := range quotas {
		if q.Window <= 0 {
			q.Window = time.Hour
		}
		normalized[name] = q
	}
	return &Redis{client: client, quotas: normalized}
}

// Check implements Limiter.
func (r *Redis) Check(ctx context.Context, provider string) (bool, error) {
	q, ok := r.quotas[provider]
	if !ok {
		return true, nil
	}

	key := redisKeyPrefix + provider
	now := time.Now().UnixNano()
	windowStart := now - q.Window.Nanoseconds()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	return countCmd.Val() < int64(q.MaxCalls), nil
}

// Record implements Limiter.
func (r *Redis) Record(ctx context.Context, provider string) error {
	q, ok := r.quotas[provider]
	if !ok {
		return nil
	}

	key := redisKeyPrefix + provider
	now := time.Now().UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
	pipe.Expire(ctx, key, q.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}
