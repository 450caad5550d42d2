package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check database/Redis connectivity
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator checks that the configured data source is reachable before a
// search starts, so a bad DSN fails once instead of once per evaluation
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new startup validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	if options.Timeout <= 0 {
		options.Timeout = 5 * time.Second
	}
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup validates the configuration and probes its data source
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Debug().Msg("Validating configuration...")

	if err := v.config.Validate(); err != nil {
		return err
	}

	if v.config.Data.Source == SourceCSV {
		if err := v.checkCSVDir(); err != nil {
			return fmt.Errorf("csv source check failed: %w", err)
		}
	}

	if v.options.VerifyConnectivity {
		if v.config.Data.Source == SourcePostgres {
			if err := v.checkDatabaseConnectivity(ctx); err != nil {
				return fmt.Errorf("database connectivity check failed: %w", err)
			}
		}
		if v.config.Data.CacheEnabled() {
			if err := v.checkRedisConnectivity(ctx); err != nil {
				return fmt.Errorf("redis connectivity check failed: %w", err)
			}
		}
	}

	log.Debug().Msg("Configuration validation completed successfully")
	return nil
}

func (v *Validator) checkCSVDir() error {
	info, err := os.Stat(v.config.Data.CSVDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", v.config.Data.CSVDir)
	}
	return nil
}

func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, v.config.Data.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Msg("Database connectivity verified")
	return nil
}

func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(v.config.Data.RedisOptions())
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Debug().Str("addr", v.config.Data.RedisAddr).Msg("Redis connectivity verified")
	return nil
}

// RedisOptions returns client options for the bar cache
func (c *DataConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
