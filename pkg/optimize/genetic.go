package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// ============================================================================
// GENETIC ALGORITHM SEARCH
// ============================================================================

// GeneticConfig tunes the genetic search
type GeneticConfig struct {
	PopulationSize int     `mapstructure:"population_size"`
	Generations    int     `mapstructure:"generations"`
	CrossoverRate  float64 `mapstructure:"crossover_rate"`
	MutationRate   float64 `mapstructure:"mutation_rate"`
	ElitismRate    float64 `mapstructure:"elitism_rate"`
	Seed           int64   `mapstructure:"seed"` // 0 = time-based
}

// DefaultGeneticConfig returns the default genetic settings
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 20,
		Generations:    10,
		CrossoverRate:  0.8,
		MutationRate:   0.1,
		ElitismRate:    0.1,
	}
}

// Validate checks the genetic settings
func (c GeneticConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	if c.PopulationSize < 2 {
		errs = append(errs, ValidationError{Field: "genetic.population_size", Message: "must be at least 2"})
	}
	if c.Generations < 1 {
		errs = append(errs, ValidationError{Field: "genetic.generations", Message: "must be at least 1"})
	}
	rates := []struct {
		field string
		value float64
	}{
		{"genetic.crossover_rate", c.CrossoverRate},
		{"genetic.mutation_rate", c.MutationRate},
		{"genetic.elitism_rate", c.ElitismRate},
	}
	for _, rate := range rates {
		if rate.value < 0 || rate.value > 1 || math.IsNaN(rate.value) {
			errs = append(errs, ValidationError{Field: rate.field, Message: fmt.Sprintf("must be in [0, 1], got %v", rate.value)})
		}
	}
	return errs
}

// eliteCount is the number of previous-generation individuals kept
func (c GeneticConfig) eliteCount() int {
	n := int(math.Round(c.ElitismRate * float64(c.PopulationSize)))
	return max(0, min(n, c.PopulationSize))
}

// GeneticSearch performs population-based search with roulette selection,
// single-point crossover, per-gene mutation and elitism
type GeneticSearch struct {
	config GeneticConfig
	opts   Options
}

// NewGeneticSearch creates a new genetic search. A zero seed is replaced by
// a time-based one; the seed used is reported on the result.
func NewGeneticSearch(config GeneticConfig, opts Options) *GeneticSearch {
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	return &GeneticSearch{config: config, opts: opts}
}

// SetSeed sets a specific random seed for reproducible results
func (s *GeneticSearch) SetSeed(seed int64) {
	s.config.Seed = seed
}

// Method implements Searcher
func (s *GeneticSearch) Method() Method { return MethodGenetic }

// individual is a scored member of a population
type individual struct {
	params backtest.ParameterSet
	score  float64
}

// Search evolves the population for the configured number of generations.
// Generation 0 is the random initial population, so the search performs
// population_size * (generations + 1) evaluations.
func (s *GeneticSearch) Search(ctx context.Context, objective Objective, params []Parameter) (*OptimizationResult, error) {
	if objective == nil {
		return nil, errors.New("objective is required")
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}
	if errs := s.config.Validate(); len(errs) > 0 {
		return nil, errs
	}

	// #nosec G404 -- reproducible search randomness, not security sensitive
	rng := rand.New(rand.NewSource(s.config.Seed))
	size := s.config.PopulationSize

	log.Info().
		Int("population", size).
		Int("generations", s.config.Generations).
		Float64("crossover_rate", s.config.CrossoverRate).
		Float64("mutation_rate", s.config.MutationRate).
		Float64("elitism_rate", s.config.ElitismRate).
		Int64("seed", s.config.Seed).
		Msg("Starting genetic algorithm optimization")

	r := newRun(MethodGenetic, s.opts)
	r.result.Seed = s.config.Seed
	eval := newEvaluator(objective, s.opts.Workers, s.opts.Maximize)

	population := s.evaluate(ctx, eval, r, 0, Sample(params, size, rng), nil)

	for gen := 1; gen <= s.config.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("genetic search cancelled at generation %d: %w", gen, err)
		}

		parents := s.selectParents(population, rng)
		children := s.reproduce(parents, params, rng)
		population = s.evaluate(ctx, eval, r, gen, children, population)
	}

	result := r.finish()

	log.Info().
		Int("total_evaluations", result.Iterations).
		Int("failed", result.FailedEvaluations).
		Float64("best_score", result.BestScore).
		Dur("duration", result.OptimizationTime).
		Msg("Genetic algorithm optimization complete")

	return result, nil
}

// evaluate scores a generation, merges it with the elite of the previous
// population and records history and curves. previous is nil for the
// initial population.
func (s *GeneticSearch) evaluate(ctx context.Context, eval *evaluator, r *run, gen int, candidates []backtest.ParameterSet, previous []individual) []individual {
	records := eval.evaluateBatch(ctx, candidates)

	children := make([]individual, len(records))
	for i, rec := range records {
		children[i] = individual{params: rec.Params, score: rec.Score}
	}

	population := children
	if previous != nil {
		population = s.mergeElite(previous, children)
	}

	avg := averageScore(population, s.opts.Maximize)
	for _, rec := range records {
		rec.Generation = gen
		rec.AvgScore = avg
		rec.generational = true
		r.record(rec)
	}
	r.mark()
	r.result.AverageCurve = append(r.result.AverageCurve, avg)

	log.Debug().
		Int("generation", gen).
		Float64("best_score", r.result.BestScore).
		Float64("avg_score", avg).
		Msg("Generation complete")

	return population
}

// mergeElite keeps the best of the previous population and fills the rest
// with the best children. The result always has population_size members.
func (s *GeneticSearch) mergeElite(previous, children []individual) []individual {
	size := s.config.PopulationSize
	elite := s.config.eliteCount()

	merged := make([]individual, 0, size)
	merged = append(merged, s.top(previous, elite)...)
	merged = append(merged, s.top(children, size-elite)...)
	return merged
}

// top returns the n best individuals, earliest first among equal scores
func (s *GeneticSearch) top(pop []individual, n int) []individual {
	sorted := append([]individual(nil), pop...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return better(s.opts.Maximize, sorted[i].score, sorted[j].score)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// selectParents draws population_size parents with replacement, with
// probability proportional to shifted fitness
func (s *GeneticSearch) selectParents(pop []individual, rng *rand.Rand) []backtest.ParameterSet {
	weights := fitness(pop, s.opts.Maximize)

	var total float64
	for _, w := range weights {
		total += w
	}

	parents := make([]backtest.ParameterSet, s.config.PopulationSize)
	for i := range parents {
		target := rng.Float64() * total
		pick := len(pop) - 1
		var cumulative float64
		for j, w := range weights {
			cumulative += w
			if target < cumulative {
				pick = j
				break
			}
		}
		parents[i] = pop[pick].params
	}
	return parents
}

// fitness shifts scores so the worst individual weighs 1. Failed
// individuals weigh the same as the worst finite one.
func fitness(pop []individual, maximize bool) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, ind := range pop {
		if isFinite(ind.score) {
			lo = math.Min(lo, ind.score)
			hi = math.Max(hi, ind.score)
		}
	}

	weights := make([]float64, len(pop))
	for i, ind := range pop {
		switch {
		case !isFinite(ind.score) || math.IsInf(lo, 1):
			weights[i] = 1
		case maximize:
			weights[i] = ind.score - lo + 1
		default:
			weights[i] = hi - ind.score + 1
		}
	}
	return weights
}

// reproduce pairs consecutive parents into children via crossover and
// mutation. Parents are never modified.
func (s *GeneticSearch) reproduce(parents []backtest.ParameterSet, params []Parameter, rng *rand.Rand) []backtest.ParameterSet {
	children := make([]backtest.ParameterSet, 0, len(parents))
	for i := 0; i < len(parents); i += 2 {
		if i+1 == len(parents) {
			children = append(children, parents[i].Clone())
			break
		}
		a, b := s.crossover(parents[i], parents[i+1], params, rng)
		children = append(children, a, b)
	}

	for _, child := range children {
		s.mutate(child, params, rng)
	}
	return children
}

// crossover swaps the parameter tails after a random cut point
func (s *GeneticSearch) crossover(a, b backtest.ParameterSet, params []Parameter, rng *rand.Rand) (backtest.ParameterSet, backtest.ParameterSet) {
	childA, childB := a.Clone(), b.Clone()
	if rng.Float64() >= s.config.CrossoverRate || len(params) < 2 {
		return childA, childB
	}

	cut := 1 + rng.Intn(len(params)-1)
	for _, p := range params[cut:] {
		childA[p.Name] = b[p.Name]
		childB[p.Name] = a[p.Name]
	}
	return childA, childB
}

// mutate resamples each gene of a freshly created child with the mutation
// probability
func (s *GeneticSearch) mutate(child backtest.ParameterSet, params []Parameter, rng *rand.Rand) {
	for _, p := range params {
		if rng.Float64() < s.config.MutationRate {
			child[p.Name] = p.Draw(rng)
		}
	}
}

// averageScore is the mean of finite scores, or the sentinel when every
// individual failed
func averageScore(pop []individual, maximize bool) float64 {
	var sum float64
	var n int
	for _, ind := range pop {
		if isFinite(ind.score) {
			sum += ind.score
			n++
		}
	}
	if n == 0 {
		return backtest.WorstScore(maximize)
	}
	return sum / float64(n)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
