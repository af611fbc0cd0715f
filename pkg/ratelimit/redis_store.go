package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// DefaultRedisPrefix namespaces rate limit keys.
const DefaultRedisPrefix = "qcinspect:ratelimit:"

// incrementScript restarts an expired window, increments the counter, and
// sets the key to expire with the window. Times are unix milliseconds.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = redis.call('HGET', KEYS[1], 'window_start')
if (not start) or (tonumber(start) + window <= now) then
  redis.call('HSET', KEYS[1], 'window_start', ARGV[1], 'attempt_count', 0)
  start = now
else
  start = tonumber(start)
end
local count = redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
redis.call('HSET', KEYS[1], 'last_attempt_at', ARGV[1])
local ttl = start + window - now
if ttl < 1 then
  ttl = 1
end
redis.call('PEXPIRE', KEYS[1], ttl)
return {start, count}
`)

// RedisStore keeps windows in Redis hashes, shared by every instance.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(identifier string, action domain.RateLimitAction) string {
	return s.prefix + string(action) + ":" + identifier
}

func (s *RedisStore) Get(ctx context.Context, identifier string, action domain.RateLimitAction) (*domain.RateLimitWindow, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identifier, action)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get window: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRateLimitWindowNotFound
	}

	start, err := strconv.ParseInt(fields["window_start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse window_start: %w", err)
	}
	count, err := strconv.Atoi(fields["attempt_count"])
	if err != nil {
		return nil, fmt.Errorf("parse attempt_count: %w", err)
	}
	last, err := strconv.ParseInt(fields["last_attempt_at"], 10, 64)
	if err != nil {
		last = start
	}

	return &domain.RateLimitWindow{
		Identifier:    identifier,
		Action:        action,
		WindowStart:   time.UnixMilli(start),
		AttemptCount:  count,
		LastAttemptAt: time.UnixMilli(last),
	}, nil
}

func (s *RedisStore) Increment(ctx context.Context, identifier string, action domain.RateLimitAction, now time.Time, window time.Duration) (*domain.RateLimitWindow, error) {
	vals, err := incrementScript.Run(ctx, s.client,
		[]string{s.key(identifier, action)},
		now.UnixMilli(), window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis increment window: %w", err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("redis increment window: unexpected reply %v", vals)
	}

	return &domain.RateLimitWindow{
		Identifier:    identifier,
		Action:        action,
		WindowStart:   time.UnixMilli(vals[0]),
		AttemptCount:  int(vals[1]),
		LastAttemptAt: time.UnixMilli(now.UnixMilli()),
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	if err := s.client.Del(ctx, s.key(identifier, action)).Err(); err != nil {
		return fmt.Errorf("redis delete window: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
