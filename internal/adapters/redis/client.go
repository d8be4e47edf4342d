package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gapsentry/internal/adapters/config"
	"gapsentry/pkg/errors"
)

// Client wraps Redis client
type Client struct {
	rdb redis.UniversalClient
}

// NewClient creates a new Redis client and verifies connectivity
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return &Client{rdb: rdb}, nil
}

// Wrap adopts an existing client
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetJSON stores value as JSON with optional TTL (0 keeps it forever)
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON decodes the JSON stored at key into dest.
// A missing key is reported as ErrNotFound.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return errors.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}
