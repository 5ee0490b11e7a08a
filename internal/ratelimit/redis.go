package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "insight:ratelimit:"

// RedisLimiter keeps a sliding window per user in a sorted set scored by
// request time.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	key := keyPrefix + userID
	now := l.now()
	windowStart := now.Add(-window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := int(countCmd.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}
