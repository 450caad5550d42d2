package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// countingSource returns canned bars or an error and counts calls
type countingSource struct {
	mu        sync.Mutex
	calls     int
	bars      []*backtest.Candlestick
	err       error
	failFirst int // when > 0, only the first failFirst calls return err
}

func (s *countingSource) Bars(context.Context, backtest.BarQuery) ([]*backtest.Candlestick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFirst > 0 && s.calls > s.failFirst {
		return s.bars, nil
	}
	return s.bars, s.err
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func unlimitedSettings() ProviderSettings {
	settings := DefaultProviderSettings()
	settings.RateLimit = 0
	settings.Retry = RetryConfig{}
	return settings
}

func TestResilientProvider_CacheAside(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	q := testQuery()
	source := &countingSource{bars: sampleBars(q)}

	provider := NewResilientProvider(source, cache, unlimitedSettings())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		bars, err := provider.Bars(ctx, q)
		require.NoError(t, err)
		require.Len(t, bars, 2)
	}
	assert.Equal(t, 1, source.Calls(), "later reads come from the cache")
}

func TestResilientProvider_EmptyResultNotCached(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	source := &countingSource{}

	provider := NewResilientProvider(source, cache, unlimitedSettings())
	for i := 0; i < 3; i++ {
		bars, err := provider.Bars(context.Background(), testQuery())
		require.NoError(t, err)
		assert.Empty(t, bars)
	}
	assert.Equal(t, 3, source.Calls())
}

func TestResilientProvider_NoCache(t *testing.T) {
	source := &countingSource{bars: sampleBars(testQuery())}
	provider := NewResilientProvider(source, nil, unlimitedSettings())

	_, err := provider.Bars(context.Background(), testQuery())
	require.NoError(t, err)
	_, err = provider.Bars(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, source.Calls())

	// A nil redis cache behaves as always-miss
	provider = NewResilientProvider(source, NewRedisBarCache(nil, 0), unlimitedSettings())
	_, err = provider.Bars(context.Background(), testQuery())
	require.NoError(t, err)
}

func TestResilientProvider_BreakerTrips(t *testing.T) {
	storeErr := errors.New("connection refused")
	source := &countingSource{err: storeErr}

	var mu sync.Mutex
	var transitions []gobreaker.State
	settings := unlimitedSettings()
	settings.MinRequests = 3
	settings.FailureRatio = 0.5
	settings.OpenTimeout = time.Hour
	settings.OnStateChange = func(_ string, _, to gobreaker.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, to)
	}

	provider := NewResilientProvider(source, nil, settings)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := provider.Bars(ctx, testQuery())
		assert.ErrorIs(t, err, storeErr)
	}
	assert.Equal(t, gobreaker.StateOpen, provider.State())

	_, err := provider.Bars(ctx, testQuery())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 3, source.Calls(), "open breaker does not reach the store")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestResilientProvider_RateLimitHonoursContext(t *testing.T) {
	settings := DefaultProviderSettings()
	settings.RateLimit = 0.001
	settings.Burst = 1
	source := &countingSource{bars: sampleBars(testQuery())}
	provider := NewResilientProvider(source, nil, settings)

	_, err := provider.Bars(context.Background(), testQuery())
	require.NoError(t, err, "burst admits the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = provider.Bars(ctx, testQuery())
	assert.Error(t, err)
	assert.Equal(t, 1, source.Calls())
}

func TestResilientProvider_RetriesTransientErrors(t *testing.T) {
	q := testQuery()
	source := &countingSource{bars: sampleBars(q), err: errors.New("read tcp: connection reset by peer"), failFirst: 2}

	settings := unlimitedSettings()
	settings.Retry = RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}
	provider := NewResilientProvider(source, nil, settings)

	bars, err := provider.Bars(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 3, source.Calls())
	assert.Equal(t, gobreaker.StateClosed, provider.State())
}

func TestResilientProvider_PermanentErrorsNotRetried(t *testing.T) {
	permanent := errors.New(`missing column "close"`)
	source := &countingSource{err: permanent}

	settings := unlimitedSettings()
	settings.Retry = RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2}
	provider := NewResilientProvider(source, nil, settings)

	_, err := provider.Bars(context.Background(), testQuery())
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, source.Calls())
}
