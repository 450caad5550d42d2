package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// MARKET DATA BOUNDARY
// ============================================================================

// BarQuery identifies a bar series
type BarQuery struct {
	Symbol    string    `json:"symbol" mapstructure:"symbol"`
	Start     time.Time `json:"start" mapstructure:"start"`
	End       time.Time `json:"end" mapstructure:"end"`
	Frequency string    `json:"frequency" mapstructure:"frequency"` // e.g. "1d", "1h"
}

// Validate checks the query
func (q BarQuery) Validate() error {
	if q.Symbol == "" {
		return errors.New("symbol is required")
	}
	if q.Frequency == "" {
		return errors.New("frequency is required")
	}
	if !q.End.IsZero() && q.End.Before(q.Start) {
		return fmt.Errorf("end %s is before start %s", q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	return nil
}

// BarSource supplies time-ascending, de-duplicated bars for a query
type BarSource interface {
	Bars(ctx context.Context, query BarQuery) ([]*Candlestick, error)
}

// ============================================================================
// EVALUATION FAILURES
// ============================================================================

// Stage names the step of an evaluation that failed
type Stage string

const (
	StageData     Stage = "data"
	StageSignal   Stage = "signal"
	StageSimulate Stage = "simulate"
	StageMetrics  Stage = "metrics"
)

// EvaluationError reports a candidate that could not be scored
type EvaluationError struct {
	Stage Stage
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed at %s stage: %v", e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// WorstScore is the sentinel assigned to failed evaluations
func WorstScore(maximize bool) float64 {
	if maximize {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

// ============================================================================
// OBJECTIVE
// ============================================================================

// ObjectiveConfig binds the fixed context of a simulation objective
type ObjectiveConfig struct {
	Query    BarQuery
	Family   Family
	Fixed    ParameterSet // merged under every candidate
	Ledger   BacktestConfig
	Metric   Metric
	Maximize bool
}

// Validate checks the objective configuration
func (c ObjectiveConfig) Validate() error {
	if err := c.Query.Validate(); err != nil {
		return err
	}
	if _, err := c.Family.Generator(); err != nil {
		return err
	}
	if _, ok := metricExtractors[c.Metric]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, c.Metric)
	}
	return c.Ledger.Validate()
}

// Objective scores one parameter set
type Objective func(ctx context.Context, params ParameterSet) (float64, error)

// BacktestResult is the full outcome of one evaluated parameter set
type BacktestResult struct {
	Params     ParameterSet      `json:"params"`
	Simulation *SimulationResult `json:"simulation"`
	Metrics    *Metrics          `json:"metrics"`
}

// RunBacktest fetches bars, generates signals, simulates and scores one
// parameter set. Failures are returned as *EvaluationError.
func RunBacktest(ctx context.Context, source BarSource, cfg ObjectiveConfig, params ParameterSet) (*BacktestResult, error) {
	bars, err := source.Bars(ctx, cfg.Query)
	if err != nil {
		return nil, &EvaluationError{Stage: StageData, Err: err}
	}
	if len(bars) == 0 {
		return nil, &EvaluationError{Stage: StageData, Err: ErrNoData}
	}

	effective := params.Merge(cfg.Fixed)

	signals, err := GenerateSignals(cfg.Family, bars, effective)
	if err != nil {
		return nil, &EvaluationError{Stage: StageSignal, Err: err}
	}

	sim, err := Simulate(bars, signals, cfg.Ledger)
	if err != nil {
		return nil, &EvaluationError{Stage: StageSimulate, Err: err}
	}

	metrics, err := CalculateMetrics(sim)
	if err != nil {
		return nil, &EvaluationError{Stage: StageMetrics, Err: err}
	}

	return &BacktestResult{Params: effective, Simulation: sim, Metrics: metrics}, nil
}

// NewObjective builds the closure a search calls for every candidate. A
// failed evaluation yields WorstScore together with its *EvaluationError, so
// callers can tell a bad score from a run that never happened.
func NewObjective(source BarSource, cfg ObjectiveConfig) (Objective, error) {
	if source == nil {
		return nil, errors.New("bar source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	worst := WorstScore(cfg.Maximize)

	return func(ctx context.Context, params ParameterSet) (float64, error) {
		result, err := RunBacktest(ctx, source, cfg, params)
		if err != nil {
			var evalErr *EvaluationError
			stage := Stage("unknown")
			if errors.As(err, &evalErr) {
				stage = evalErr.Stage
			}
			log.Warn().
				Err(err).
				Str("stage", string(stage)).
				Str("params", params.String()).
				Msg("Evaluation failed")
			return worst, err
		}

		score, err := MetricValue(result.Metrics, cfg.Metric)
		if err != nil {
			return worst, &EvaluationError{Stage: StageMetrics, Err: err}
		}
		if math.IsNaN(score) {
			return worst, &EvaluationError{Stage: StageMetrics, Err: fmt.Errorf("metric %s is NaN", cfg.Metric)}
		}
		return score, nil
	}, nil
}
