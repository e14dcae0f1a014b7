// Package redis builds the go-redis client behind the last-known dataset
// cache. The cache is optional: an unset URL disables it, and the server runs
// without a hydration fallback.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clicr/internal/platform/config"
)

const defaultPingTimeout = 3 * time.Second

// Client wraps go-redis so callers can health-check the cache backend.
type Client struct {
	*redis.Client
}

// New connects per cfg and verifies the connection with a bounded ping.
// Returns (nil, nil) when no URL is configured. A reachable-but-misbehaving
// cache at startup is reported as an error; the caller decides whether to run
// degraded without it.
func New(cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	pingTimeout := cfg.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the cache backend is reachable. A failure here never
// fails a request; it only means hydration has no fallback copy to lean on.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
