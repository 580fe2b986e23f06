package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/interfaces"
)

// RedisStore coordinates rate-limit state across worker processes through a
// shared Redis instance. Keys are rate_limit:<channel> holding the deadline
// in RFC 3339 form with a TTL slightly past the deadline.
type RedisStore struct {
	client *redis.Client
	logger arbor.ILogger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, url string, logger arbor.ILogger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("Connected to coordination store")
	return &RedisStore{client: client, logger: logger}, nil
}

func rateLimitKey(channel string) string {
	return "rate_limit:" + channel
}

// SetRateLimit records the deadline for the channel. Only extends an
// existing limit, never shortens it: a later deadline from another worker
// wins.
func (s *RedisStore) SetRateLimit(ctx context.Context, channel string, deadline time.Time, ttl time.Duration) error {
	key := rateLimitKey(channel)

	current, err := s.client.Get(ctx, key).Result()
	if err == nil {
		if existing, parseErr := time.Parse(time.RFC3339Nano, current); parseErr == nil && existing.After(deadline) {
			return nil
		}
	} else if err != redis.Nil {
		return fmt.Errorf("failed to read rate limit: %w", err)
	}

	if err := s.client.Set(ctx, key, deadline.Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set rate limit: %w", err)
	}
	return nil
}

// RateLimitDeadline returns the active deadline or zero time
func (s *RedisStore) RateLimitDeadline(ctx context.Context, channel string) (time.Time, error) {
	value, err := s.client.Get(ctx, rateLimitKey(channel)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read rate limit: %w", err)
	}
	deadline, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed rate limit value: %w", err)
	}
	return deadline, nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ interfaces.CoordinationStore = (*RedisStore)(nil)
