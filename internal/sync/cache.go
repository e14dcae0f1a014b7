package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// DatasetCache holds the last successfully hydrated working copy per business.
// It is a survival mechanism for store outages, never an authoritative read.
type DatasetCache interface {
	Get(ctx context.Context, businessID id.BusinessID) (*models.Dataset, error)
	Put(ctx context.Context, businessID id.BusinessID, ds *models.Dataset) error
}

// RedisCache stores datasets as JSON under a per-business key with a TTL, so
// a long outage eventually stops serving ancient counts.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs a cache on an existing go-redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(businessID id.BusinessID) string {
	return "clicr:dataset:" + businessID.String()
}

// Get returns the cached working copy, or nil when none is cached.
func (c *RedisCache) Get(ctx context.Context, businessID id.BusinessID) (*models.Dataset, error) {
	raw, err := c.client.Get(ctx, cacheKey(businessID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dataset cache get: %w", err)
	}
	var ds models.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("dataset cache decode: %w", err)
	}
	return &ds, nil
}

// Put stores the working copy.
func (c *RedisCache) Put(ctx context.Context, businessID id.BusinessID, ds *models.Dataset) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("dataset cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(businessID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("dataset cache put: %w", err)
	}
	return nil
}
