package optimize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

func TestParseAcquisition(t *testing.T) {
	for input, want := range map[string]Acquisition{
		"ei": AcquisitionEI, "EI": AcquisitionEI,
		"pi": AcquisitionPI, "ucb": AcquisitionUCB, "lcb": AcquisitionUCB,
	} {
		got, err := ParseAcquisition(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseAcquisition("thompson")
	assert.ErrorIs(t, err, ErrUnknownAcquisition)
}

func TestSurrogateSearch_EvaluationCount(t *testing.T) {
	for _, acquisition := range []Acquisition{AcquisitionEI, AcquisitionPI, AcquisitionUCB} {
		t.Run(string(acquisition), func(t *testing.T) {
			cfg := SurrogateConfig{InitPoints: 4, Iterations: 6, Acquisition: acquisition, Seed: 11}

			result, err := NewSurrogateSearch(cfg, Options{Maximize: true}).Search(context.Background(), bowl, maParams())
			require.NoError(t, err)

			assert.Equal(t, 10, result.Iterations)
			assert.Len(t, result.AllResults, 10)
			assert.Len(t, result.ConvergenceCurve, 10)
			assert.Equal(t, MethodSurrogate, result.Method)
			assertBestIsExtreme(t, result)

			for i := 1; i < len(result.ConvergenceCurve); i++ {
				assert.GreaterOrEqual(t, result.ConvergenceCurve[i], result.ConvergenceCurve[i-1])
			}
		})
	}
}

func TestSurrogateSearch_Deterministic(t *testing.T) {
	cfg := SurrogateConfig{InitPoints: 3, Iterations: 8, Acquisition: AcquisitionEI, Seed: 99}

	first, err := NewSurrogateSearch(cfg, Options{Maximize: true}).Search(context.Background(), bowl, maParams())
	require.NoError(t, err)
	second, err := NewSurrogateSearch(cfg, Options{Maximize: true, Workers: 3}).Search(context.Background(), bowl, maParams())
	require.NoError(t, err)

	require.Len(t, second.AllResults, len(first.AllResults))
	for i := range first.AllResults {
		assert.Equal(t, first.AllResults[i].Params, second.AllResults[i].Params)
		assert.Equal(t, first.AllResults[i].Score, second.AllResults[i].Score)
	}
	assert.Equal(t, int64(99), first.Seed)
}

func TestSurrogateSearch_FailuresDoNotStopSearch(t *testing.T) {
	calls := 0
	objective := func(ctx context.Context, p backtest.ParameterSet) (float64, error) {
		calls++
		if calls%2 == 0 {
			return 0, errors.New("no bars in range")
		}
		return bowl(ctx, p)
	}

	cfg := SurrogateConfig{InitPoints: 2, Iterations: 5, Acquisition: AcquisitionUCB, Seed: 5}
	result, err := NewSurrogateSearch(cfg, Options{Maximize: true}).Search(context.Background(), objective, maParams())
	require.NoError(t, err)

	assert.Equal(t, 7, result.Iterations)
	assert.Equal(t, 3, result.FailedEvaluations)
	assert.False(t, math.IsInf(result.BestScore, 0))
}

func TestSurrogateSearch_InvalidConfig(t *testing.T) {
	_, err := NewSurrogateSearch(SurrogateConfig{InitPoints: 0, Acquisition: AcquisitionEI}, Options{}).
		Search(context.Background(), bowl, maParams())
	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	_, err = NewSurrogateSearch(SurrogateConfig{InitPoints: 1, Acquisition: "thompson"}, Options{}).
		Search(context.Background(), bowl, maParams())
	assert.ErrorAs(t, err, &verrs)
}

func TestDistance(t *testing.T) {
	params := []Parameter{
		{Name: "x", Kind: KindInteger, Min: 0, Max: 10},
		{Name: "z", Kind: KindCategorical, Choices: []interface{}{"sma", "ema"}},
	}

	a := backtest.ParameterSet{"x": 0, "z": "sma"}
	assert.Equal(t, 0.0, distance(a, a, params))
	assert.InDelta(t, 0.5, distance(a, backtest.ParameterSet{"x": 5, "z": "sma"}, params), 1e-12)
	assert.InDelta(t, 1.0, distance(a, backtest.ParameterSet{"x": 0, "z": "ema"}, params), 1e-12)
	assert.InDelta(t, math.Sqrt(2), distance(a, backtest.ParameterSet{"x": 10, "z": "ema"}, params), 1e-12)
}

func TestLocalEstimate(t *testing.T) {
	params := []Parameter{{Name: "x", Kind: KindInteger, Min: 0, Max: 100}}
	history := []observation{
		{params: backtest.ParameterSet{"x": 0}, score: 1},
		{params: backtest.ParameterSet{"x": 1}, score: 3},
		{params: backtest.ParameterSet{"x": 2}, score: 5},
		{params: backtest.ParameterSet{"x": 3}, score: 7},
		{params: backtest.ParameterSet{"x": 4}, score: 9},
		{params: backtest.ParameterSet{"x": 90}, score: 1000},
	}

	mean, spread := localEstimate(backtest.ParameterSet{"x": 2}, history, params)
	assert.InDelta(t, 5.0, mean, 1e-12, "the far observation is not a neighbor")
	assert.InDelta(t, math.Sqrt(8), spread, 1e-12)

	mean, spread = localEstimate(backtest.ParameterSet{"x": 50}, history[:2], params)
	assert.InDelta(t, 2.0, mean, 1e-12, "k shrinks to the history size")
	assert.InDelta(t, 1.0, spread, 1e-12)
}

func TestAcquire(t *testing.T) {
	t.Run("zero spread falls back to zero", func(t *testing.T) {
		assert.Zero(t, acquire(AcquisitionEI, 10, 0, 1, true))
		assert.Zero(t, acquire(AcquisitionPI, 10, 0, 1, true))
		assert.Equal(t, 10.0, acquire(AcquisitionUCB, 10, 0, 1, true))
	})

	t.Run("expected improvement", func(t *testing.T) {
		got := acquire(AcquisitionEI, 2, 1, 1, true)
		want := 1*distuv.UnitNormal.CDF(1) + 1*distuv.UnitNormal.Prob(1)
		assert.InDelta(t, want, got, 1e-12)

		// Minimizing mirrors the improvement
		assert.InDelta(t, want, acquire(AcquisitionEI, 0, 1, 1, false), 1e-12)
		assert.Greater(t, acquire(AcquisitionEI, 3, 1, 1, true), got)
	})

	t.Run("probability of improvement", func(t *testing.T) {
		assert.InDelta(t, 0.5, acquire(AcquisitionPI, 1, 2, 1, true), 1e-12)
		assert.InDelta(t, distuv.UnitNormal.CDF(-1), acquire(AcquisitionPI, 0, 1, 1, true), 1e-12)
	})

	t.Run("confidence bound", func(t *testing.T) {
		assert.InDelta(t, 1+ConfidenceKappa*2, acquire(AcquisitionUCB, 1, 2, 0, true), 1e-12)
		assert.InDelta(t, -(1 - ConfidenceKappa*2), acquire(AcquisitionUCB, 1, 2, 0, false), 1e-12)
	})
}

func TestSurrogatePropose(t *testing.T) {
	params := []Parameter{{Name: "x", Kind: KindInteger, Min: 0, Max: 10}}
	s := NewSurrogateSearch(SurrogateConfig{Acquisition: AcquisitionUCB}, Options{Maximize: true})

	proposals := []backtest.ParameterSet{{"x": 1}, {"x": 9}, {"x": 9}}
	assert.Equal(t, proposals[0], s.propose(proposals, nil, params, math.Inf(-1), AcquisitionUCB),
		"no history keeps the first proposal")

	var history []observation
	for x, score := range map[int]float64{0: 0, 1: 0, 2: 0, 3: 0, 7: 10, 8: 10, 9: 10, 10: 30} {
		history = append(history, observation{params: backtest.ParameterSet{"x": x}, score: score})
	}

	// x=1 sees {0,0,0,0,10}: 2 + 2.576*4; x=9 sees {10,10,30,10,0}: 12 + 2.576*sqrt(96)
	chosen := s.propose(proposals, history, params, 30, AcquisitionUCB)
	assert.Equal(t, 9, chosen["x"])

	mean, _ := localEstimate(proposals[1], history, params)
	assert.InDelta(t, 12.0, mean, 1e-12)
}
