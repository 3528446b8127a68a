package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	seasonalKeyPrefix     = "seasonal:"
	seasonalIndexKey      = seasonalKeyPrefix + "index:global"
	seasonalScanBatchSize = 100
)

// SeasonalCache holds the last computed seasonal index. Freshness is judged by
// the caller from SeasonalIndex.ComputedAt.
type SeasonalCache interface {
	Get(ctx context.Context) (*domain.SeasonalIndex, bool, error)
	Set(ctx context.Context, index *domain.SeasonalIndex) error
	Invalidate(ctx context.Context) error
}

// NewSeasonalCache returns a Redis-backed cache when caching is enabled and an
// in-process one otherwise.
func NewSeasonalCache(cfg config.CacheConfig) (SeasonalCache, error) {
	if !cfg.Enabled {
		return NewMemorySeasonalCache(), nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisSeasonalCache{
		client: client,
		ttl:    SeasonalTTL(cfg),
	}, nil
}

type memorySeasonalCache struct {
	mu    sync.RWMutex
	index *domain.SeasonalIndex
}

func NewMemorySeasonalCache() SeasonalCache {
	return &memorySeasonalCache{}
}

func (c *memorySeasonalCache) Get(_ context.Context) (*domain.SeasonalIndex, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index == nil {
		return nil, false, nil
	}
	return copyIndex(c.index), true, nil
}

func (c *memorySeasonalCache) Set(_ context.Context, index *domain.SeasonalIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = copyIndex(index)
	return nil
}

func (c *memorySeasonalCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = nil
	return nil
}

func copyIndex(index *domain.SeasonalIndex) *domain.SeasonalIndex {
	cp := *index
	cp.Indices = make(map[string]float64, len(index.Indices))
	for k, v := range index.Indices {
		cp.Indices[k] = v
	}
	return &cp
}

type redisSeasonalCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisSeasonalCache) Get(ctx context.Context) (*domain.SeasonalIndex, bool, error) {
	payload, err := c.client.Get(ctx, seasonalIndexKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var index domain.SeasonalIndex
	if err := json.Unmarshal(payload, &index); err != nil {
		return nil, false, fmt.Errorf("decode seasonal index cache: %w", err)
	}
	return &index, true, nil
}

func (c *redisSeasonalCache) Set(ctx context.Context, index *domain.SeasonalIndex) error {
	payload, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode seasonal index cache: %w", err)
	}
	if err := c.client.Set(ctx, seasonalIndexKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSeasonalCache) Invalidate(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, seasonalKeyPrefix, seasonalScanBatchSize)
}
