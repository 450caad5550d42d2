package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestConfigureLogger_JSON(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(LoggerConfig{Level: "warn", Format: "json", Output: &buf})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("dropped")
	assert.Empty(t, buf.String(), "info is below the configured level")

	log.Warn().Str("symbol", "BTC/USDT").Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "BTC/USDT", entry["symbol"])
	assert.Contains(t, entry, "time")
}

func TestConfigureLogger_Console(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(LoggerConfig{Level: "info", Format: "console", Output: &buf})
	log.Info().Msg("search started")

	out := buf.String()
	assert.Contains(t, out, "search started")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(LoggerConfig{Level: "chatty", Format: "json", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	ConfigureLogger(LoggerConfig{Format: "json", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewLoggers(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	ConfigureLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf})

	logger := NewLogger("market")
	logger.Info().Msg("component")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "market", entry["component"])

	buf.Reset()
	searchLogger := NewSearchLogger("genetic", "run-1")
	searchLogger.Info().Msg("search")

	entry = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "search", entry["component"])
	assert.Equal(t, "genetic", entry["method"])
	assert.Equal(t, "run-1", entry["run_id"])
}
