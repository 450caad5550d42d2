package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

func TestOptimizationResult_MarshalJSON(t *testing.T) {
	result := &OptimizationResult{
		RunID:      "run-1",
		Method:     MethodGrid,
		Maximize:   true,
		BestParams: backtest.ParameterSet{"x": 7},
		BestScore:  0,
		AllResults: []EvaluationRecord{
			{Index: 0, Params: backtest.ParameterSet{"x": 6}, Score: -1},
			{Index: 1, Params: backtest.ParameterSet{"x": 99}, Score: math.Inf(-1), Failed: true, Error: "no bars"},
		},
		OptimizationTime:  1500 * time.Millisecond,
		Iterations:        2,
		FailedEvaluations: 1,
		ConvergenceCurve:  []float64{-1, -1},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "grid", decoded["method"])
	assert.Equal(t, 0.0, decoded["best_score"])
	assert.Equal(t, 1.5, decoded["optimization_time"])
	assert.Equal(t, 2.0, decoded["iterations"])
	assert.Equal(t, 1.0, decoded["failed_evaluations"])
	assert.Equal(t, map[string]interface{}{"x": 7.0}, decoded["best_params"])
	assert.Equal(t, []interface{}{-1.0, -1.0}, decoded["convergence_curve"])
	assert.NotContains(t, decoded, "average_curve")

	records := decoded["all_results"].([]interface{})
	require.Len(t, records, 2)

	failed := records[1].(map[string]interface{})
	assert.Nil(t, failed["score"], "non-finite scores encode as null")
	assert.Equal(t, true, failed["failed"])
	assert.Equal(t, "no bars", failed["error"])
	assert.NotContains(t, failed, "generation")
}

func TestOptimizationResult_MarshalJSONAllFailed(t *testing.T) {
	objective := func(context.Context, backtest.ParameterSet) (float64, error) {
		return 0, errors.New("no bars")
	}

	result, err := NewGridSearch(DefaultGridConfig(), Options{Maximize: true}).
		Search(context.Background(), objective, []Parameter{{Name: "x", Kind: KindInteger, Min: 0, Max: 3}})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["best_score"])
	assert.Equal(t, []interface{}{nil, nil, nil, nil}, decoded["convergence_curve"])
}

func TestOptimizationResult_MarshalGenetic(t *testing.T) {
	cfg := geneticConfig(3)
	cfg.Generations = 1
	cfg.PopulationSize = 2

	result, err := NewGeneticSearch(cfg, Options{Maximize: true}).Search(context.Background(), bowl, maParams())
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded struct {
		AllResults []struct {
			Generation *int     `json:"generation"`
			AvgScore   *float64 `json:"avg_score"`
		} `json:"all_results"`
		AverageCurve []float64 `json:"average_curve"`
		Seed         int64     `json:"seed"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.AllResults, 4)
	for i, rec := range decoded.AllResults {
		require.NotNil(t, rec.Generation, "record %d", i)
		assert.Equal(t, i/2, *rec.Generation)
		assert.NotNil(t, rec.AvgScore)
	}
	assert.Len(t, decoded.AverageCurve, 2)
	assert.Equal(t, int64(3), decoded.Seed)
}

func TestOptimizationResult_MarshalYAML(t *testing.T) {
	result := &OptimizationResult{
		Method:           MethodSurrogate,
		BestParams:       backtest.ParameterSet{"x": 7},
		BestScore:        math.Inf(1),
		ConvergenceCurve: []float64{1},
	}

	data, err := yaml.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "bayesian", decoded["method"])
	assert.Nil(t, decoded["best_score"])
	assert.Equal(t, map[string]interface{}{"x": 7}, decoded["best_params"])
}
