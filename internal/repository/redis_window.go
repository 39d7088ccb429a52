package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the prune-count-record sequence atomically
// on the Redis side. KEYS[1] is the window zset; ARGV: now-nanos, window
// nanos, limit, member. Returns 1 when admitted.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, math.ceil(window / 1000000))
return 1
`)

// RedisWindowStore is the fleet-shared sliding-window store. Same contract
// as the in-memory store; entries expire with their window so idle keys
// cost nothing.
type RedisWindowStore struct {
	client *RedisClient
	prefix string
}

func NewRedisWindowStore(client *RedisClient, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = "ratewin"
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

func (s *RedisWindowStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	nowNanos := now.UnixNano()
	// uuid suffix keeps same-nanosecond admissions as distinct members
	member := strconv.FormatInt(nowNanos, 10) + ":" + uuid.NewString()
	res, err := slidingWindowScript.Run(ctx, s.client.Client,
		[]string{s.prefix + ":" + key},
		nowNanos, window.Nanoseconds(), limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis window: %w", err)
	}
	return res == 1, nil
}
