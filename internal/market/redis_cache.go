package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// DefaultCacheTTL applies when no TTL is configured
const DefaultCacheTTL = time.Hour

const keyPrefix = "stratopt:bars:"

// RedisBarCache provides Redis-based caching for bar series
type RedisBarCache struct {
	client *redis.Client
	ttl    time.Duration
}

// barCacheEntry represents a cached series with metadata
type barCacheEntry struct {
	Symbol    string                  `json:"symbol"`
	Frequency string                  `json:"frequency"`
	Bars      []*backtest.Candlestick `json:"bars"`
	CachedAt  time.Time               `json:"cached_at"`
}

// NewRedisBarCache creates a new Redis-based bar cache
// If client is nil, returns nil (optional Redis support)
func NewRedisBarCache(client *redis.Client, ttl time.Duration) *RedisBarCache {
	if client == nil {
		return nil
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &RedisBarCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a series from cache
// Returns the bars and true if found, or nil and false if not found or on error
func (c *RedisBarCache) Get(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := c.buildKey(query)

	// Use a short timeout for cache operations to prevent blocking
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}

	var entry barCacheEntry
	if err := json.Unmarshal(cached, &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached bars")
		return nil, false
	}

	log.Debug().
		Str("symbol", query.Symbol).
		Str("frequency", query.Frequency).
		Int("count", len(entry.Bars)).
		Time("cached_at", entry.CachedAt).
		Msg("Cache hit for bars")

	return entry.Bars, true
}

// Set stores a series in cache with the configured TTL
func (c *RedisBarCache) Set(ctx context.Context, query backtest.BarQuery, bars []*backtest.Candlestick) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(query)

	data, err := json.Marshal(barCacheEntry{
		Symbol:    query.Symbol,
		Frequency: query.Frequency,
		Bars:      bars,
		CachedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal bar entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache bars")
		return err
	}

	log.Debug().
		Str("key", key).
		Int("count", len(bars)).
		Dur("ttl", c.ttl).
		Msg("Cached bars")

	return nil
}

// Clear removes all bar cache entries
func (c *RedisBarCache) Clear(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := c.client.Scan(cacheCtx, 0, keyPrefix+"*", 0).Iterator()
	count := 0

	for iter.Next(cacheCtx) {
		if err := c.client.Del(cacheCtx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		} else {
			count++
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan error: %w", err)
	}

	log.Info().
		Int("keys_deleted", count).
		Msg("Cleared bar cache")

	return nil
}

// Health checks if the Redis connection is healthy
func (c *RedisBarCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// buildKey creates a Redis key for one (symbol, frequency, range) series
func (c *RedisBarCache) buildKey(query backtest.BarQuery) string {
	var end int64
	if !query.End.IsZero() {
		end = query.End.Unix()
	}
	return fmt.Sprintf("%s%s:%s:%d:%d", keyPrefix, query.Symbol, query.Frequency, query.Start.Unix(), end)
}
