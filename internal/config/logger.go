package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// InitLogger initializes the global logger on stderr, leaving stdout for results
func InitLogger(level, format string) {
	ConfigureLogger(LoggerConfig{Level: level, Format: format, Output: os.Stderr})
}

// ConfigureLogger initializes the global logger
func ConfigureLogger(cfg LoggerConfig) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()

	log.Debug().
		Str("level", logLevel.String()).
		Str("format", cfg.Format).
		Msg("Logger initialized")
}

// NewLogger creates a new logger with a component name
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewSearchLogger creates a logger for one search run
func NewSearchLogger(method, runID string) zerolog.Logger {
	return log.With().
		Str("component", "search").
		Str("method", method).
		Str("run_id", runID).
		Logger()
}
