// Package cart clears user carts kept in Redis.
package cart

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Clearer empties a user's cart.
type Clearer interface {
	Clear(ctx context.Context, userID string) error
}

// Key returns the Redis key of a user's cart.
func Key(userID string) string { return "cart:" + userID }

// Redis clears carts stored under cart:{userID}.
type Redis struct {
	rdb redis.Cmdable
}

// NewRedis returns a Clearer backed by rdb.
func NewRedis(rdb redis.Cmdable) *Redis {
	return &Redis{rdb: rdb}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Clear implements Clearer. Clearing an empty cart is not an error.
func (r *Redis) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Nop ignores clear requests.
type Nop struct{}

func (Nop) Clear(context.Context, string) error { return nil }
