package metrics

import (
	"math"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

// Bounded cardinality constants for metric labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	// Evaluation failure stages (bounded set)
	StageData     = "data"
	StageSignal   = "signal"
	StageSimulate = "simulate"
	StageMetrics  = "metrics"
	StagePanic    = "panic"
	StageOther    = "other"

	// Breaker states
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// NormalizeFailureStage maps an evaluation error message to a bounded stage label
func NormalizeFailureStage(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.HasPrefix(lower, "panic"):
		return StagePanic
	case strings.Contains(lower, "at data stage"):
		return StageData
	case strings.Contains(lower, "at signal stage"):
		return StageSignal
	case strings.Contains(lower, "at simulate stage"):
		return StageSimulate
	case strings.Contains(lower, "at metrics stage"), strings.Contains(lower, "returned nan"):
		return StageMetrics
	default:
		return StageOther
	}
}

// Search metrics
var (
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratopt_evaluations_total",
		Help: "Total number of objective evaluations by search method and outcome",
	}, []string{"method", "outcome"})

	EvaluationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratopt_evaluation_failures_total",
		Help: "Failed objective evaluations by search method and failing stage",
	}, []string{"method", "stage"})

	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratopt_evaluation_duration_ms",
		Help:    "Objective evaluation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method"})

	SearchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratopt_searches_completed_total",
		Help: "Total number of completed searches by method",
	}, []string{"method"})

	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratopt_search_duration_seconds",
		Help:    "Wall-clock duration of a search",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"method"})

	// Non-finite best scores are not exported
	BestScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratopt_best_score",
		Help: "Best objective score of the most recent search by method",
	}, []string{"method"})
)

// Market data metrics
var (
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratopt_bar_cache_operations_total",
		Help: "Bar cache operations by type and result",
	}, []string{"operation", "result"})

	CacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratopt_bar_cache_hit_rate",
		Help: "Bar cache hit rate as a ratio (0.0 to 1.0)",
	})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratopt_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"breaker"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratopt_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions by target state",
	}, []string{"breaker", "state"})
)

// ============================================================================
// RECORDING HELPERS
// ============================================================================

// RecordEvaluation records one evaluation
func RecordEvaluation(method string, failed bool, errMessage string, durationMs float64) {
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeFailure
		EvaluationFailures.WithLabelValues(method, NormalizeFailureStage(errMessage)).Inc()
	}
	EvaluationsTotal.WithLabelValues(method, outcome).Inc()
	EvaluationDuration.WithLabelValues(method).Observe(durationMs)
}

// RecordSearch records a finished search
func RecordSearch(method string, bestScore float64, durationSeconds float64) {
	SearchesCompleted.WithLabelValues(method).Inc()
	SearchDuration.WithLabelValues(method).Observe(durationSeconds)
	if !math.IsInf(bestScore, 0) && !math.IsNaN(bestScore) {
		BestScore.WithLabelValues(method).Set(bestScore)
	}
}

// RecordCacheOperation records a bar cache operation
func RecordCacheOperation(operation, result string) {
	CacheOperations.WithLabelValues(operation, result).Inc()
}

// UpdateBreakerState sets the breaker gauge
func UpdateBreakerState(breaker string, state gobreaker.State) {
	value := 0.0
	switch state {
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	BreakerState.WithLabelValues(breaker).Set(value)
}

func breakerLabel(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ============================================================================
// OBSERVER
// ============================================================================

// OptimizerMetrics exports search progress to Prometheus
type OptimizerMetrics struct{}

var _ optimize.Observer = (*OptimizerMetrics)(nil)

// NewOptimizerMetrics returns an observer backed by the package instruments
func NewOptimizerMetrics() *OptimizerMetrics {
	return &OptimizerMetrics{}
}

// ObserveEvaluation implements optimize.Observer
func (m *OptimizerMetrics) ObserveEvaluation(method optimize.Method, record optimize.EvaluationRecord) {
	RecordEvaluation(string(method), record.Failed, record.Error, float64(record.Elapsed.Microseconds())/1000)
}

// ObserveResult implements optimize.Observer
func (m *OptimizerMetrics) ObserveResult(result *optimize.OptimizationResult) {
	RecordSearch(string(result.Method), result.BestScore, result.OptimizationTime.Seconds())
}

// BreakerStateChange matches market.ProviderSettings.OnStateChange
func (m *OptimizerMetrics) BreakerStateChange(name string, _, to gobreaker.State) {
	UpdateBreakerState(name, to)
	BreakerTransitions.WithLabelValues(name, breakerLabel(to)).Inc()
}
