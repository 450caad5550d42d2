package optimize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// METHODS
// ============================================================================

var (
	ErrUnknownMethod      = errors.New("unknown optimization method")
	ErrUnknownAcquisition = errors.New("unknown acquisition function")
)

// Method names a search strategy
type Method string

const (
	MethodGrid      Method = "grid"
	MethodGenetic   Method = "genetic"
	MethodSurrogate Method = "bayesian"
)

// ParseMethod resolves a method name
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "grid", "grid_search":
		return MethodGrid, nil
	case "genetic", "genetic_algorithm", "ga":
		return MethodGenetic, nil
	case "bayesian", "bayesian_optimization", "surrogate":
		return MethodSurrogate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// Options are shared by every search strategy
type Options struct {
	Maximize bool
	Workers  int // concurrent evaluations per batch; 1 runs strictly in order
	Observer Observer
}

// Searcher is implemented by every search strategy
type Searcher interface {
	Method() Method
	Search(ctx context.Context, objective Objective, params []Parameter) (*OptimizationResult, error)
}

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config selects and tunes a search
type Config struct {
	Method     Method          `mapstructure:"method"`
	Maximize   bool            `mapstructure:"maximize"`
	Workers    int             `mapstructure:"workers"`
	Seed       int64           `mapstructure:"seed"` // 0 = time-based
	Parameters []Parameter     `mapstructure:"-"`
	Grid       GridConfig      `mapstructure:"grid"`
	Genetic    GeneticConfig   `mapstructure:"genetic"`
	Surrogate  SurrogateConfig `mapstructure:"surrogate"`
}

// DefaultConfig returns a maximizing grid search with default tuning
func DefaultConfig() Config {
	return Config{
		Method:    MethodGrid,
		Maximize:  true,
		Workers:   1,
		Grid:      DefaultGridConfig(),
		Genetic:   DefaultGeneticConfig(),
		Surrogate: DefaultSurrogateConfig(),
	}
}

// Validate checks the configuration before any evaluation happens
func (c Config) Validate() error {
	method, err := ParseMethod(string(c.Method))
	if err != nil {
		return err
	}
	if method == MethodSurrogate {
		if _, err := ParseAcquisition(string(c.Surrogate.Acquisition)); err != nil {
			return err
		}
	}

	var errs ValidationErrors
	if perr := ValidateParameters(c.Parameters); perr != nil {
		var verrs ValidationErrors
		if errors.As(perr, &verrs) {
			errs = append(errs, verrs...)
		}
	}
	if c.Workers < 0 {
		errs = append(errs, ValidationError{Field: "workers", Message: "must not be negative"})
	}

	switch method {
	case MethodGrid:
		errs = append(errs, c.Grid.Validate()...)
	case MethodGenetic:
		errs = append(errs, c.Genetic.Validate()...)
	case MethodSurrogate:
		errs = append(errs, c.Surrogate.Validate()...)
	}

	return errs.orNil()
}

// Searcher builds the configured search strategy
func (c Config) Searcher(observer Observer) (Searcher, error) {
	method, err := ParseMethod(string(c.Method))
	if err != nil {
		return nil, err
	}

	opts := Options{Maximize: c.Maximize, Workers: c.Workers, Observer: observer}

	switch method {
	case MethodGenetic:
		genetic := c.Genetic
		if genetic.Seed == 0 {
			genetic.Seed = c.Seed
		}
		return NewGeneticSearch(genetic, opts), nil
	case MethodSurrogate:
		surrogate := c.Surrogate
		if surrogate.Seed == 0 {
			surrogate.Seed = c.Seed
		}
		return NewSurrogateSearch(surrogate, opts), nil
	default:
		return NewGridSearch(c.Grid, opts), nil
	}
}

// ============================================================================
// OPTIMIZER
// ============================================================================

// Optimizer binds objectives to search strategies
type Optimizer struct {
	observer Observer
}

// NewOptimizer creates an optimizer. observer may be nil.
func NewOptimizer(observer Observer) *Optimizer {
	return &Optimizer{observer: observer}
}

// Run validates the configuration and executes one search
func (o *Optimizer) Run(ctx context.Context, objective Objective, cfg Config) (*OptimizationResult, error) {
	if objective == nil {
		return nil, errors.New("objective is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	searcher, err := cfg.Searcher(o.observer)
	if err != nil {
		return nil, err
	}

	return searcher.Search(ctx, objective, cfg.Parameters)
}

// Job is one search inside a comparison
type Job struct {
	Name      string
	Objective Objective
	Config    Config
}

// Comparison is a ranked search outcome
type Comparison struct {
	Name   string              `json:"name" yaml:"name"`
	Rank   int                 `json:"rank" yaml:"rank"`
	Result *OptimizationResult `json:"result" yaml:"result"`
}

// Compare runs independent searches concurrently and ranks them by best
// score. Every job must optimize in the same direction.
func (o *Optimizer) Compare(ctx context.Context, jobs []Job) ([]Comparison, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no jobs to compare")
	}

	maximize := jobs[0].Config.Maximize
	for _, job := range jobs {
		if job.Objective == nil {
			return nil, fmt.Errorf("job %q: objective is required", job.Name)
		}
		if job.Config.Maximize != maximize {
			return nil, fmt.Errorf("job %q: all jobs must share the optimization direction", job.Name)
		}
		if err := job.Config.Validate(); err != nil {
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
	}

	startTime := time.Now()
	log.Info().Int("jobs", len(jobs)).Msg("Starting comparison")

	comparisons := make([]Comparison, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			result, err := o.Run(gctx, job.Objective, job.Config)
			if err != nil {
				return fmt.Errorf("job %q: %w", job.Name, err)
			}
			comparisons[i] = Comparison{Name: job.Name, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		return better(maximize, comparisons[i].Result.BestScore, comparisons[j].Result.BestScore)
	})
	for i := range comparisons {
		comparisons[i].Rank = i + 1
	}

	log.Info().
		Int("jobs", len(jobs)).
		Str("winner", comparisons[0].Name).
		Dur("duration", time.Since(startTime)).
		Msg("Comparison complete")

	return comparisons, nil
}
