package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"short_period=10", "num_std = 2.5", "MA_Type=ema"})
	require.NoError(t, err)

	assert.Equal(t, backtest.ParameterSet{
		"short_period": 10,
		"num_std":      2.5,
		"ma_type":      "ema",
	}, params)

	_, err = parseParams([]string{"short_period"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=5"})
	assert.Error(t, err)
}

func sampleResult() *optimize.OptimizationResult {
	return &optimize.OptimizationResult{
		RunID:            "run-1",
		Method:           optimize.MethodGrid,
		Maximize:         true,
		BestParams:       backtest.ParameterSet{"short_period": 5},
		BestScore:        1.25,
		OptimizationTime: 1500 * time.Millisecond,
		Iterations:       2,
		ConvergenceCurve: []float64{math.Inf(-1), 1.25},
	}
}

func TestEncode(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encode(&buf, formatJSON, sampleResult()))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "grid", decoded["method"])
		assert.Equal(t, 1.25, decoded["best_score"])
		assert.Equal(t, 1.5, decoded["optimization_time"])
		assert.Equal(t, []interface{}{nil, 1.25}, decoded["convergence_curve"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encode(&buf, formatYAML, sampleResult()))

		var decoded map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-1", decoded["run_id"])
		assert.Equal(t, 2, decoded["iterations"])
	})

	t.Run("comparisons", func(t *testing.T) {
		var buf bytes.Buffer
		comparisons := []optimize.Comparison{{Name: "grid", Rank: 1, Result: sampleResult()}}
		require.NoError(t, encode(&buf, formatJSON, comparisons))
		assert.Contains(t, buf.String(), `"best_params"`)
		assert.Contains(t, buf.String(), `"rank": 1`)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, encode(&bytes.Buffer{}, "xml", sampleResult()))
	})
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, writeResult(path, formatJSON, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	assert.Error(t, writeResult(filepath.Join(t.TempDir(), "missing", "result.json"), formatJSON, sampleResult()))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"run", "compare", "backtest"})

	for _, flag := range []string{"config", "log-level", "skip-connectivity", "format", "output"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}
