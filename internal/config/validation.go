package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateTarget()...)
	errors = append(errors, c.validateOptimization()...)
	errors = append(errors, c.validateMonitoring()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(c.App.LogLevel)) {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s'. Must be one of: %v", c.App.LogLevel, validLevels),
		})
	}

	validFormats := []string{"json", "console"}
	if !contains(validFormats, strings.ToLower(c.App.LogFormat)) {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be one of: %v", c.App.LogFormat, validFormats),
		})
	}

	return errors
}

func (c *Config) validateData() ValidationErrors {
	var errors ValidationErrors

	switch strings.ToLower(c.Data.Source) {
	case SourcePostgres:
		if c.Data.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "data.database_url",
				Message: "Database URL is required when data.source is postgres",
			})
		}
	case SourceCSV:
		if c.Data.CSVDir == "" {
			errors = append(errors, ValidationError{
				Field:   "data.csv_dir",
				Message: "CSV directory is required when data.source is csv",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "data.source",
			Message: fmt.Sprintf("Invalid data source '%s'. Must be one of: [%s %s]", c.Data.Source, SourcePostgres, SourceCSV),
		})
	}

	if c.Data.CacheTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.cache_ttl",
			Message: "Cache TTL cannot be negative",
		})
	}

	if c.Data.RateLimitPerSec < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.rate_limit_per_sec",
			Message: "Rate limit cannot be negative (0 disables limiting)",
		})
	}

	if c.Data.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.max_retries",
			Message: "Max retries cannot be negative",
		})
	}

	if c.Data.Breaker.FailureRatio <= 0 || c.Data.Breaker.FailureRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "data.breaker.failure_ratio",
			Message: fmt.Sprintf("Failure ratio must be in (0, 1], got %.2f", c.Data.Breaker.FailureRatio),
		})
	}

	if c.Data.Breaker.MinRequests == 0 {
		errors = append(errors, ValidationError{
			Field:   "data.breaker.min_requests",
			Message: "Minimum requests must be at least 1",
		})
	}

	if c.Data.Breaker.OpenTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "data.breaker.open_timeout",
			Message: "Open timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	if err := c.Backtest.Validate(); err != nil {
		return ValidationErrors{{Field: "backtest", Message: err.Error()}}
	}
	return nil
}

func (c *Config) validateTarget() ValidationErrors {
	var errors ValidationErrors

	if c.Target.Symbol == "" {
		errors = append(errors, ValidationError{
			Field:   "target.symbol",
			Message: "Symbol is required",
		})
	}

	if c.Target.Frequency == "" {
		errors = append(errors, ValidationError{
			Field:   "target.frequency",
			Message: "Frequency is required (e.g. 1d, 4h, 1h)",
		})
	}

	start, startErr := ParseDate(c.Target.Start)
	if startErr != nil {
		errors = append(errors, ValidationError{Field: "target.start", Message: startErr.Error()})
	}
	end, endErr := ParseDate(c.Target.End)
	if endErr != nil {
		errors = append(errors, ValidationError{Field: "target.end", Message: endErr.Error()})
	}
	if startErr == nil && endErr == nil && !end.IsZero() && end.Before(start) {
		errors = append(errors, ValidationError{
			Field:   "target.end",
			Message: "End date must not be before start date",
		})
	}

	family, err := backtest.ParseFamily(c.Target.Strategy)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "target.strategy",
			Message: fmt.Sprintf("%v. Must be one of: %v", err, backtest.Families()),
		})
		return errors
	}

	for name := range c.Target.Fixed {
		if !family.Accepts(name) {
			errors = append(errors, ValidationError{
				Field:   "target.fixed." + name,
				Message: fmt.Sprintf("Strategy %s has no parameter '%s'", family, name),
			})
		}
	}
	for name := range c.Parameters {
		if !family.Accepts(name) {
			errors = append(errors, ValidationError{
				Field:   "parameters." + name,
				Message: fmt.Sprintf("Strategy %s has no parameter '%s'", family, name),
			})
		}
	}

	return errors
}

func (c *Config) validateOptimization() ValidationErrors {
	var errors ValidationErrors

	if _, err := backtest.ParseMetric(c.Optimization.Objective); err != nil {
		errors = append(errors, ValidationError{
			Field:   "optimization.objective",
			Message: err.Error(),
		})
	}

	if len(c.Parameters) == 0 {
		errors = append(errors, ValidationError{
			Field:   "parameters",
			Message: "At least one searched parameter is required",
		})
		return errors
	}

	search, err := c.OptimizerConfig()
	if err != nil {
		return append(errors, ValidationError{Field: "parameters", Message: err.Error()})
	}

	if err := search.Validate(); err != nil {
		var verrs optimize.ValidationErrors
		if !errorsAs(err, &verrs) {
			return append(errors, ValidationError{Field: "optimization", Message: err.Error()})
		}
		for _, verr := range verrs {
			errors = append(errors, ValidationError{Field: qualify(verr.Field), Message: verr.Message})
		}
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	if !c.Monitoring.EnableMetrics {
		return nil
	}
	if c.Monitoring.MetricsPort < 1 || c.Monitoring.MetricsPort > 65535 {
		return ValidationErrors{{
			Field:   "monitoring.metrics_port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.MetricsPort),
		}}
	}
	return nil
}

// qualify maps search field names onto configuration keys
func qualify(field string) string {
	if strings.HasPrefix(field, "parameters") || field == "" {
		return field
	}
	return "optimization." + field
}

func errorsAs(err error, target *optimize.ValidationErrors) bool {
	return errors.As(err, target)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
