package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// Objective scores one candidate. An error marks the evaluation as failed;
// the search then records the sentinel worst score and continues.
type Objective func(ctx context.Context, params backtest.ParameterSet) (float64, error)

// EvaluationRecord is one scored candidate. Index is the position in the
// search history; Generation and AvgScore are set by the genetic search.
type EvaluationRecord struct {
	Index      int
	Generation int
	Params     backtest.ParameterSet
	Score      float64
	AvgScore   float64 // population average of the generation
	Failed     bool
	Error      string
	Elapsed    time.Duration

	generational bool
}

// evaluator runs a batch of candidates through the objective. Results come
// back in submission order regardless of the worker count.
type evaluator struct {
	objective Objective
	workers   int
	worst     float64
}

func newEvaluator(objective Objective, workers int, maximize bool) *evaluator {
	if workers < 1 {
		workers = 1
	}
	return &evaluator{
		objective: objective,
		workers:   workers,
		worst:     backtest.WorstScore(maximize),
	}
}

// evaluateBatch scores candidates with at most e.workers in flight
func (e *evaluator) evaluateBatch(ctx context.Context, candidates []backtest.ParameterSet) []EvaluationRecord {
	records := make([]EvaluationRecord, len(candidates))

	if e.workers == 1 || len(candidates) == 1 {
		for i, params := range candidates {
			records[i] = e.evaluateOne(ctx, params)
		}
		return records
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, params := range candidates {
		g.Go(func() error {
			records[i] = e.evaluateOne(ctx, params)
			return nil
		})
	}
	_ = g.Wait() // evaluateOne never returns an error

	return records
}

// evaluateOne converts every failure mode, including panics, into a failed
// record carrying the sentinel score
func (e *evaluator) evaluateOne(ctx context.Context, params backtest.ParameterSet) (record EvaluationRecord) {
	record.Params = params
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			record.Score = e.worst
			record.Failed = true
			record.Error = fmt.Sprintf("panic: %v", r)
			log.Error().
				Str("params", params.String()).
				Interface("panic", r).
				Msg("Objective panicked")
		}
		record.Elapsed = time.Since(start)
	}()

	score, err := e.objective(ctx, params)
	switch {
	case err != nil:
		record.Score = e.worst
		record.Failed = true
		record.Error = err.Error()
		var evalErr *backtest.EvaluationError
		if !errors.As(err, &evalErr) {
			log.Warn().Err(err).Str("params", params.String()).Msg("Evaluation failed")
		}
	case math.IsNaN(score):
		record.Score = e.worst
		record.Failed = true
		record.Error = "objective returned NaN"
	default:
		record.Score = score
	}

	return record
}
