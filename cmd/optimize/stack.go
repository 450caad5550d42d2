package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratopt/internal/config"
	"github.com/ajitpratap0/stratopt/internal/market"
	"github.com/ajitpratap0/stratopt/internal/metrics"
	"github.com/ajitpratap0/stratopt/pkg/backtest"
	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

// ============================================================================
// DATA STACK
// ============================================================================

// dataStack owns the connections behind one configured bar provider
type dataStack struct {
	provider *market.ResilientProvider
	cache    *metrics.CacheMetrics
	pool     *pgxpool.Pool
	redis    *redis.Client
}

func openDataStack(ctx context.Context, cfg *config.Config, observer *metrics.OptimizerMetrics) (*dataStack, error) {
	stack := &dataStack{}

	var source backtest.BarSource
	switch cfg.Data.Source {
	case config.SourceCSV:
		source = market.NewCSVBarSource(cfg.Data.CSVDir)
	default:
		pool, err := market.Connect(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to bar store: %w", err)
		}
		stack.pool = pool
		source = market.NewPostgresBarStoreWithPool(pool)
	}

	var cache market.BarCache
	if cfg.Data.CacheEnabled() {
		stack.redis = redis.NewClient(cfg.Data.RedisOptions())
		stack.cache = metrics.NewCacheMetrics(market.NewRedisBarCache(stack.redis, cfg.Data.CacheTTL))
		cache = stack.cache
	}

	settings := cfg.Data.ProviderSettings()
	if observer != nil {
		settings.OnStateChange = observer.BreakerStateChange
	}
	stack.provider = market.NewResilientProvider(source, cache, settings)

	log.Info().
		Str("source", cfg.Data.Source).
		Bool("cache", cache != nil).
		Float64("rate_limit", settings.RateLimit).
		Msg("Bar provider ready")

	return stack, nil
}

// healthChecks lists the dependencies probed by the metrics server
func (s *dataStack) healthChecks() map[string]metrics.HealthCheck {
	checks := make(map[string]metrics.HealthCheck)
	if s.pool != nil {
		checks["postgres"] = s.pool.Ping
	}
	if s.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}
	}
	return checks
}

func (s *dataStack) Close() {
	if s.cache != nil {
		hits, misses := s.cache.Stats()
		log.Debug().Int64("hits", hits).Int64("misses", misses).Msg("Bar cache statistics")
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// objective builds the search objective over the stack's provider
func (s *dataStack) objective(cfg *config.Config) (optimize.Objective, error) {
	objectiveConfig, err := cfg.ObjectiveConfig()
	if err != nil {
		return nil, err
	}
	objective, err := backtest.NewObjective(s.provider, objectiveConfig)
	if err != nil {
		return nil, err
	}
	return optimize.Objective(objective), nil
}

// ============================================================================
// METRICS SERVER
// ============================================================================

// startMetrics starts the metrics server when enabled; the returned stop
// function is always safe to call
func startMetrics(cfg *config.Config, stacks ...*dataStack) func() {
	if !cfg.Monitoring.EnableMetrics {
		return func() {}
	}

	server := metrics.NewServer(cfg.Monitoring.MetricsPort, config.NewLogger("metrics"))
	for _, stack := range stacks {
		for name, check := range stack.healthChecks() {
			server.AddHealthCheck(name, check)
		}
	}
	if err := server.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start metrics server")
		return func() {}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown metrics server")
		}
	}
}
