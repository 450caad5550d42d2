package optimize

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// ============================================================================
// OPTIMIZATION RESULT
// ============================================================================

// OptimizationResult is the outcome of one search
type OptimizationResult struct {
	RunID             string
	Method            Method
	Maximize          bool
	Seed              int64
	BestParams        backtest.ParameterSet
	BestScore         float64
	AllResults        []EvaluationRecord
	OptimizationTime  time.Duration
	Iterations        int
	FailedEvaluations int
	ConvergenceCurve  []float64 // running best per evaluation, or per generation
	AverageCurve      []float64 // population average per generation (genetic only)
}

// Better reports whether score a beats score b for the search direction
func (r *OptimizationResult) Better(a, b float64) bool {
	return better(r.Maximize, a, b)
}

func better(maximize bool, a, b float64) bool {
	if maximize {
		return a > b
	}
	return a < b
}

// ============================================================================
// OBSERVER
// ============================================================================

// Observer receives search progress. Calls come from the goroutine that owns
// the search loop, after each batch completes.
type Observer interface {
	ObserveEvaluation(method Method, record EvaluationRecord)
	ObserveResult(result *OptimizationResult)
}

type nopObserver struct{}

func (nopObserver) ObserveEvaluation(Method, EvaluationRecord) {}
func (nopObserver) ObserveResult(*OptimizationResult)          {}

// ============================================================================
// RUN STATE
// ============================================================================

// run accumulates history and the running best for one search
type run struct {
	result   *OptimizationResult
	observer Observer
	start    time.Time
	found    bool
}

func newRun(method Method, opts Options) *run {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &run{
		result: &OptimizationResult{
			RunID:     uuid.New().String(),
			Method:    method,
			Maximize:  opts.Maximize,
			BestScore: backtest.WorstScore(opts.Maximize),
		},
		observer: observer,
		start:    time.Now(),
	}
}

// record appends an evaluated candidate to history and updates the best.
// Strict improvement wins, so ties keep the earliest candidate.
func (r *run) record(rec EvaluationRecord) {
	rec.Index = len(r.result.AllResults)
	r.result.AllResults = append(r.result.AllResults, rec)
	if rec.Failed {
		r.result.FailedEvaluations++
	}

	if !r.found || r.result.Better(rec.Score, r.result.BestScore) {
		r.result.BestScore = rec.Score
		r.result.BestParams = rec.Params.Clone()
		r.found = true
	}

	r.observer.ObserveEvaluation(r.result.Method, rec)
}

// mark appends the current best to the convergence curve
func (r *run) mark() {
	r.result.ConvergenceCurve = append(r.result.ConvergenceCurve, r.result.BestScore)
}

func (r *run) finish() *OptimizationResult {
	r.result.Iterations = len(r.result.AllResults)
	r.result.OptimizationTime = time.Since(r.start)
	r.observer.ObserveResult(r.result)
	return r.result
}

// ============================================================================
// SERIALIZATION
// ============================================================================

// finite maps non-finite numbers to nil so they encode as null
func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func finiteSlice(values []float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = finite(v)
	}
	return out
}

type recordWire struct {
	Index      int                   `json:"index" yaml:"index"`
	Generation *int                  `json:"generation,omitempty" yaml:"generation,omitempty"`
	Params     backtest.ParameterSet `json:"params" yaml:"params"`
	Score      *float64              `json:"score" yaml:"score"`
	AvgScore   *float64              `json:"avg_score,omitempty" yaml:"avg_score,omitempty"`
	Failed     bool                  `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r EvaluationRecord) wire() recordWire {
	w := recordWire{
		Index:  r.Index,
		Params: r.Params,
		Score:  finite(r.Score),
		Failed: r.Failed,
		Error:  r.Error,
	}
	if r.generational {
		gen := r.Generation
		w.Generation = &gen
		w.AvgScore = finite(r.AvgScore)
	}
	return w
}

// MarshalJSON encodes the record with non-finite scores as null
func (r EvaluationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

type resultWire struct {
	RunID             string                `json:"run_id" yaml:"run_id"`
	Method            Method                `json:"method" yaml:"method"`
	Maximize          bool                  `json:"maximize" yaml:"maximize"`
	Seed              int64                 `json:"seed,omitempty" yaml:"seed,omitempty"`
	BestParams        backtest.ParameterSet `json:"best_params" yaml:"best_params"`
	BestScore         *float64              `json:"best_score" yaml:"best_score"`
	AllResults        []recordWire          `json:"all_results" yaml:"all_results"`
	OptimizationTime  float64               `json:"optimization_time" yaml:"optimization_time"` // seconds
	Iterations        int                   `json:"iterations" yaml:"iterations"`
	FailedEvaluations int                   `json:"failed_evaluations" yaml:"failed_evaluations"`
	ConvergenceCurve  []*float64            `json:"convergence_curve" yaml:"convergence_curve"`
	AverageCurve      []*float64            `json:"average_curve,omitempty" yaml:"average_curve,omitempty"`
}

func (r *OptimizationResult) wire() resultWire {
	records := make([]recordWire, len(r.AllResults))
	for i, rec := range r.AllResults {
		records[i] = rec.wire()
	}
	curve := finiteSlice(r.ConvergenceCurve)
	if curve == nil {
		curve = []*float64{}
	}
	return resultWire{
		RunID:             r.RunID,
		Method:            r.Method,
		Maximize:          r.Maximize,
		Seed:              r.Seed,
		BestParams:        r.BestParams,
		BestScore:         finite(r.BestScore),
		AllResults:        records,
		OptimizationTime:  r.OptimizationTime.Seconds(),
		Iterations:        r.Iterations,
		FailedEvaluations: r.FailedEvaluations,
		ConvergenceCurve:  curve,
		AverageCurve:      finiteSlice(r.AverageCurve),
	}
}

// MarshalJSON encodes the result with non-finite numbers as null
func (r *OptimizationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalYAML implements yaml.Marshaler with the same field names as JSON
func (r *OptimizationResult) MarshalYAML() (interface{}, error) {
	return r.wire(), nil
}
