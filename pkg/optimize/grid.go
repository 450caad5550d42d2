package optimize

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// GRID SEARCH
// ============================================================================

// GridConfig tunes the grid search
type GridConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DefaultGridConfig returns the default grid settings
func DefaultGridConfig() GridConfig {
	return GridConfig{BatchSize: 10}
}

// Validate checks the grid settings
func (c GridConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	if c.BatchSize < 1 {
		errs = append(errs, ValidationError{Field: "grid.batch_size", Message: "must be at least 1"})
	}
	return errs
}

// GridSearch performs exhaustive search over the discretized parameter space
type GridSearch struct {
	config GridConfig
	opts   Options
}

// NewGridSearch creates a new grid search
func NewGridSearch(config GridConfig, opts Options) *GridSearch {
	return &GridSearch{config: config, opts: opts}
}

// Method implements Searcher
func (s *GridSearch) Method() Method { return MethodGrid }

// Search evaluates every grid candidate in batches. The result holds the
// global optimum over the grid.
func (s *GridSearch) Search(ctx context.Context, objective Objective, params []Parameter) (*OptimizationResult, error) {
	if objective == nil {
		return nil, errors.New("objective is required")
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}
	if errs := s.config.Validate(); len(errs) > 0 {
		return nil, errs
	}

	candidates := EnumerateGrid(params)
	batchSize := s.config.BatchSize

	log.Info().
		Int("parameters", len(params)).
		Int("combinations", len(candidates)).
		Int("batch_size", batchSize).
		Int("workers", s.opts.Workers).
		Msg("Starting grid search optimization")

	r := newRun(MethodGrid, s.opts)
	eval := newEvaluator(objective, s.opts.Workers, s.opts.Maximize)

	for start := 0; start < len(candidates); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("grid search cancelled after %d evaluations: %w", start, err)
		}

		end := min(start+batchSize, len(candidates))
		for _, rec := range eval.evaluateBatch(ctx, candidates[start:end]) {
			r.record(rec)
			r.mark()
		}

		log.Debug().
			Int("completed", end).
			Int("total", len(candidates)).
			Float64("best_score", r.result.BestScore).
			Msgf("Grid search progress: %.1f%%", float64(end)/float64(len(candidates))*100)
	}

	result := r.finish()

	log.Info().
		Int("total_runs", result.Iterations).
		Int("failed", result.FailedEvaluations).
		Float64("best_score", result.BestScore).
		Dur("duration", result.OptimizationTime).
		Msg("Grid search optimization complete")

	return result, nil
}
