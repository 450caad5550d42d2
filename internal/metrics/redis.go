package metrics

import (
	"context"
	"sync"

	"github.com/ajitpratap0/stratopt/internal/market"
	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// CacheMetrics wraps a bar cache and instruments operations
type CacheMetrics struct {
	cache market.BarCache

	mu     sync.Mutex
	hits   int64
	misses int64
}

var _ market.BarCache = (*CacheMetrics)(nil)

// NewCacheMetrics creates a new instrumented bar cache
func NewCacheMetrics(cache market.BarCache) *CacheMetrics {
	return &CacheMetrics{cache: cache}
}

// Get performs a cache lookup and records metrics
func (cm *CacheMetrics) Get(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, bool) {
	bars, ok := cm.cache.Get(ctx, query)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if ok {
		cm.hits++
		RecordCacheOperation("get", "hit")
	} else {
		cm.misses++
		RecordCacheOperation("get", "miss")
	}
	cm.updateHitRate()
	return bars, ok
}

// Set stores a series and records metrics
func (cm *CacheMetrics) Set(ctx context.Context, query backtest.BarQuery, bars []*backtest.Candlestick) error {
	if err := cm.cache.Set(ctx, query, bars); err != nil {
		RecordCacheOperation("set", "error")
		return err
	}
	RecordCacheOperation("set", "ok")
	return nil
}

// Stats returns hit and miss counts
func (cm *CacheMetrics) Stats() (hits, misses int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.hits, cm.misses
}

// updateHitRate updates the cache hit rate metric; callers hold mu
func (cm *CacheMetrics) updateHitRate() {
	total := cm.hits + cm.misses
	if total > 0 {
		CacheHitRate.Set(float64(cm.hits) / float64(total))
	}
}

// ResetStats resets hit/miss statistics
func (cm *CacheMetrics) ResetStats() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hits = 0
	cm.misses = 0
	CacheHitRate.Set(0)
}
