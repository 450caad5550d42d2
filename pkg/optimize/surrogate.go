package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// ============================================================================
// SURROGATE-GUIDED SEARCH
// ============================================================================

const (
	// ProposalCount is the number of random proposals ranked per iteration
	ProposalCount = 100
	// MaxNeighbors bounds the observations used for a local estimate
	MaxNeighbors = 5
	// ConfidenceKappa widens the confidence bound (99% two-sided z-score)
	ConfidenceKappa = 2.576
)

// Acquisition names the proposal scoring function
type Acquisition string

const (
	AcquisitionEI  Acquisition = "ei"
	AcquisitionPI  Acquisition = "pi"
	AcquisitionUCB Acquisition = "ucb"
)

// ParseAcquisition resolves an acquisition name. "lcb" is the same bound
// taken in the minimizing direction.
func ParseAcquisition(name string) (Acquisition, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ei", "expected_improvement":
		return AcquisitionEI, nil
	case "pi", "probability_of_improvement":
		return AcquisitionPI, nil
	case "ucb", "lcb", "confidence_bound":
		return AcquisitionUCB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAcquisition, name)
}

// SurrogateConfig tunes the surrogate search
type SurrogateConfig struct {
	InitPoints  int         `mapstructure:"n_init"`
	Iterations  int         `mapstructure:"n_iter"`
	Acquisition Acquisition `mapstructure:"acquisition"`
	Seed        int64       `mapstructure:"seed"` // 0 = time-based
}

// DefaultSurrogateConfig returns the default surrogate settings
func DefaultSurrogateConfig() SurrogateConfig {
	return SurrogateConfig{
		InitPoints:  5,
		Iterations:  20,
		Acquisition: AcquisitionEI,
	}
}

// Validate checks the surrogate settings
func (c SurrogateConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	if c.InitPoints < 1 {
		errs = append(errs, ValidationError{Field: "surrogate.n_init", Message: "must be at least 1"})
	}
	if c.Iterations < 0 {
		errs = append(errs, ValidationError{Field: "surrogate.n_iter", Message: "must not be negative"})
	}
	if _, err := ParseAcquisition(string(c.Acquisition)); err != nil {
		errs = append(errs, ValidationError{Field: "surrogate.acquisition", Message: err.Error()})
	}
	return errs
}

// SurrogateSearch seeds with random samples, then repeatedly evaluates the
// proposal ranked highest by an acquisition function over a nearest-neighbor
// estimate. The spread is a heuristic, not a calibrated posterior.
type SurrogateSearch struct {
	config SurrogateConfig
	opts   Options
}

// NewSurrogateSearch creates a new surrogate search. A zero seed is replaced
// by a time-based one.
func NewSurrogateSearch(config SurrogateConfig, opts Options) *SurrogateSearch {
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	return &SurrogateSearch{config: config, opts: opts}
}

// SetSeed sets a specific random seed for reproducible results
func (s *SurrogateSearch) SetSeed(seed int64) {
	s.config.Seed = seed
}

// Method implements Searcher
func (s *SurrogateSearch) Method() Method { return MethodSurrogate }

// observation is a finite, evaluated point
type observation struct {
	params backtest.ParameterSet
	score  float64
}

// Search performs exactly n_init + n_iter evaluations
func (s *SurrogateSearch) Search(ctx context.Context, objective Objective, params []Parameter) (*OptimizationResult, error) {
	if objective == nil {
		return nil, errors.New("objective is required")
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}
	if errs := s.config.Validate(); len(errs) > 0 {
		return nil, errs
	}
	acquisition, _ := ParseAcquisition(string(s.config.Acquisition))

	// #nosec G404 -- reproducible search randomness, not security sensitive
	rng := rand.New(rand.NewSource(s.config.Seed))

	log.Info().
		Int("n_init", s.config.InitPoints).
		Int("n_iter", s.config.Iterations).
		Str("acquisition", string(acquisition)).
		Int64("seed", s.config.Seed).
		Msg("Starting surrogate-guided optimization")

	r := newRun(MethodSurrogate, s.opts)
	r.result.Seed = s.config.Seed
	eval := newEvaluator(objective, s.opts.Workers, s.opts.Maximize)

	var history []observation
	observe := func(records []EvaluationRecord) {
		for _, rec := range records {
			r.record(rec)
			r.mark()
			if !rec.Failed && isFinite(rec.Score) {
				history = append(history, observation{params: rec.Params, score: rec.Score})
			}
		}
	}

	observe(eval.evaluateBatch(ctx, Sample(params, s.config.InitPoints, rng)))

	for iter := 0; iter < s.config.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("surrogate search cancelled at iteration %d: %w", iter, err)
		}

		proposals := Sample(params, ProposalCount, rng)
		next := s.propose(proposals, history, params, r.result.BestScore, acquisition)
		observe(eval.evaluateBatch(ctx, []backtest.ParameterSet{next}))

		log.Debug().
			Int("iteration", iter+1).
			Float64("best_score", r.result.BestScore).
			Msg("Surrogate iteration complete")
	}

	result := r.finish()

	log.Info().
		Int("total_evaluations", result.Iterations).
		Int("failed", result.FailedEvaluations).
		Float64("best_score", result.BestScore).
		Dur("duration", result.OptimizationTime).
		Msg("Surrogate-guided optimization complete")

	return result, nil
}

// propose returns the proposal with the highest acquisition value. Ties go
// to the earliest proposal; without any finite history every proposal ties.
func (s *SurrogateSearch) propose(proposals []backtest.ParameterSet, history []observation, params []Parameter, best float64, acquisition Acquisition) backtest.ParameterSet {
	if len(history) == 0 {
		return proposals[0]
	}

	chosen := 0
	chosenValue := math.Inf(-1)
	for i, candidate := range proposals {
		mean, spread := localEstimate(candidate, history, params)
		value := acquire(acquisition, mean, spread, best, s.opts.Maximize)
		if value > chosenValue {
			chosen, chosenValue = i, value
		}
	}
	return proposals[chosen]
}

// localEstimate averages the scores of the nearest observations and
// reports their population standard deviation as the spread
func localEstimate(candidate backtest.ParameterSet, history []observation, params []Parameter) (mean, spread float64) {
	type neighbor struct {
		distance float64
		score    float64
	}

	neighbors := make([]neighbor, len(history))
	for i, obs := range history {
		neighbors[i] = neighbor{distance: distance(candidate, obs.params, params), score: obs.score}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	k := min(MaxNeighbors, len(neighbors))
	scores := make([]float64, k)
	for i := range scores {
		scores[i] = neighbors[i].score
	}

	mean, variance := stat.PopMeanVariance(scores, nil)
	return mean, math.Sqrt(variance)
}

// distance is the Euclidean distance with numeric parameters scaled to
// [0, 1] by their range and categorical parameters contributing 0 or 1
func distance(a, b backtest.ParameterSet, params []Parameter) float64 {
	var sum float64
	for _, p := range params {
		switch p.Kind {
		case KindInteger, KindReal:
			av, _ := a.Float(p.Name)
			bv, _ := b.Float(p.Name)
			d := (av - bv) / (p.Max - p.Min)
			sum += d * d
		default:
			if fmt.Sprintf("%T:%v", a[p.Name], a[p.Name]) != fmt.Sprintf("%T:%v", b[p.Name], b[p.Name]) {
				sum++
			}
		}
	}
	return math.Sqrt(sum)
}

// acquire scores a proposal; higher is always better. EI and PI fall back to
// 0 when the spread is 0.
func acquire(acquisition Acquisition, mean, spread, best float64, maximize bool) float64 {
	improvement := mean - best
	if !maximize {
		improvement = best - mean
	}

	switch acquisition {
	case AcquisitionPI:
		if spread == 0 {
			return 0
		}
		return distuv.UnitNormal.CDF(improvement / spread)

	case AcquisitionUCB:
		if maximize {
			return mean + ConfidenceKappa*spread
		}
		return -(mean - ConfidenceKappa*spread)

	default:
		if spread == 0 {
			return 0
		}
		z := improvement / spread
		return improvement*distuv.UnitNormal.CDF(z) + spread*distuv.UnitNormal.Prob(z)
	}
}
