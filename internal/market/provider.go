package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// Breaker defaults for the bar store
const (
	DefaultMinRequests     = 5                // Minimum requests before tripping
	DefaultFailureRatio    = 0.6              // Failure ratio threshold (60%)
	DefaultOpenTimeout     = 15 * time.Second // How long circuit stays open
	DefaultHalfOpenMaxReqs = 2                // Max requests in half-open state
	DefaultCountInterval   = 10 * time.Second // Window for counting failures
	DefaultRateLimit       = 20.0             // Store requests per second
)

// ErrSourceUnavailable is returned while the breaker rejects requests
var ErrSourceUnavailable = errors.New("bar source unavailable")

// BarCache stores bar series keyed by query
type BarCache interface {
	Get(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, bool)
	Set(ctx context.Context, query backtest.BarQuery, bars []*backtest.Candlestick) error
}

// ProviderSettings configures a ResilientProvider
type ProviderSettings struct {
	Name            string
	RateLimit       float64 // requests per second, <= 0 disables limiting
	Burst           int
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
	Retry           RetryConfig // applied inside the breaker; one breaker failure per exhausted fetch

	// OnStateChange is called on every breaker transition
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultProviderSettings returns the bar store defaults
func DefaultProviderSettings() ProviderSettings {
	return ProviderSettings{
		Name:            "bar_store",
		RateLimit:       DefaultRateLimit,
		Burst:           1,
		MinRequests:     DefaultMinRequests,
		FailureRatio:    DefaultFailureRatio,
		OpenTimeout:     DefaultOpenTimeout,
		HalfOpenMaxReqs: DefaultHalfOpenMaxReqs,
		CountInterval:   DefaultCountInterval,
		Retry:           DefaultRetryConfig(),
	}
}

// ResilientProvider fronts a bar source with a read-through cache, a request
// rate limit and a circuit breaker. Every search evaluation asks for the same
// series, so after the first fetch the cache answers.
type ResilientProvider struct {
	source  backtest.BarSource
	cache   BarCache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	name    string
}

// NewResilientProvider wraps source; cache may be nil
func NewResilientProvider(source backtest.BarSource, cache BarCache, settings ProviderSettings) *ResilientProvider {
	if settings.Name == "" {
		settings.Name = "bar_store"
	}

	p := &ResilientProvider{
		source: source,
		cache:  cache,
		retry:  settings.Retry,
		name:   settings.Name,
	}

	if settings.RateLimit > 0 {
		burst := settings.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(settings.RateLimit), burst)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Bar source circuit breaker changed state")
			if settings.OnStateChange != nil {
				settings.OnStateChange(name, from, to)
			}
		},
	})

	return p
}

// State returns the breaker state
func (p *ResilientProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Bars serves from cache when possible, otherwise fetches through the limiter
// and breaker and caches non-empty results.
func (p *ResilientProvider) Bars(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, error) {
	if p.cache != nil {
		if bars, ok := p.cache.Get(ctx, query); ok {
			return bars, nil
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		var bars []*backtest.Candlestick
		err := withRetry(ctx, p.retry, func() error {
			var fetchErr error
			bars, fetchErr = p.source.Bars(ctx, query)
			return fetchErr
		})
		return bars, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, p.name, err)
		}
		return nil, err
	}

	bars, _ := out.([]*backtest.Candlestick)
	if p.cache != nil && len(bars) > 0 {
		if err := p.cache.Set(ctx, query, bars); err != nil {
			log.Debug().Err(err).Str("symbol", query.Symbol).Msg("Bars not cached")
		}
	}
	return bars, nil
}
