// Performance metrics calculation for backtesting
package backtest

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

const (
	// PeriodsPerYear is the number of bars assumed in one year
	PeriodsPerYear = 252
	// RiskFreeRate is the annual risk-free rate used by the Sharpe ratio
	RiskFreeRate = 0.03
)

// Metrics holds all performance metrics for a backtest. Ratios are
// fractions, not percentages.
type Metrics struct {
	// Returns
	TotalReturn  float64 `json:"total_return"`
	AnnualReturn float64 `json:"annual_return"`

	// Risk metrics
	MaxDrawdown float64 `json:"max_drawdown"` // |min drawdown|
	Volatility  float64 `json:"volatility"`   // annualized stdev of per-bar returns
	SharpeRatio float64 `json:"sharpe_ratio"`
	CalmarRatio float64 `json:"calmar_ratio"`

	// Return distribution
	WinRate         float64 `json:"win_rate"`          // positive / non-zero per-bar returns
	ProfitLossRatio float64 `json:"profit_loss_ratio"` // mean gain / |mean loss|

	// Trade statistics
	TotalTrades int `json:"total_trades"`

	// Portfolio statistics
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	PeakEquity     float64   `json:"peak_equity"`
	Bars           int       `json:"bars"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// CalculateMetrics derives return and risk statistics from a simulation
func CalculateMetrics(result *SimulationResult) (*Metrics, error) {
	if result == nil || len(result.EquityCurve) == 0 {
		return nil, fmt.Errorf("no equity curve data")
	}

	curve := result.EquityCurve
	initial := result.Config.InitialCapital
	if initial <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %f", initial)
	}

	metrics := &Metrics{
		InitialCapital: initial,
		FinalEquity:    curve[len(curve)-1].Equity,
		PeakEquity:     result.Final.PeakEquity,
		TotalTrades:    len(result.Trades),
		Bars:           len(curve),
		StartDate:      curve[0].Timestamp,
		EndDate:        curve[len(curve)-1].Timestamp,
	}

	metrics.TotalReturn = metrics.FinalEquity/initial - 1
	metrics.AnnualReturn = math.Pow(1+metrics.TotalReturn, float64(PeriodsPerYear)/float64(len(curve))) - 1

	for _, point := range curve {
		if dd := math.Abs(point.Drawdown); dd > metrics.MaxDrawdown {
			metrics.MaxDrawdown = dd
		}
	}

	returns := barReturns(curve)
	calculateRiskMetrics(metrics, returns)
	calculateReturnDistribution(metrics, returns)

	if metrics.MaxDrawdown > 0 {
		metrics.CalmarRatio = metrics.AnnualReturn / metrics.MaxDrawdown
	}

	return metrics, nil
}

// barReturns computes equity returns between consecutive bars
func barReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// calculateRiskMetrics calculates volatility and the Sharpe ratio
func calculateRiskMetrics(metrics *Metrics, returns []float64) {
	if len(returns) < 2 {
		return
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return
	}

	annualization := math.Sqrt(PeriodsPerYear)
	metrics.Volatility = stdDev * annualization

	excess := mean - RiskFreeRate/PeriodsPerYear
	metrics.SharpeRatio = excess / stdDev * annualization
}

// calculateReturnDistribution calculates win rate and profit/loss ratio
func calculateReturnDistribution(metrics *Metrics, returns []float64) {
	var gains, losses []float64
	for _, r := range returns {
		switch {
		case r > 0:
			gains = append(gains, r)
		case r < 0:
			losses = append(losses, r)
		}
	}

	if nonZero := len(gains) + len(losses); nonZero > 0 {
		metrics.WinRate = float64(len(gains)) / float64(nonZero)
	}

	if len(gains) > 0 && len(losses) > 0 {
		metrics.ProfitLossRatio = stat.Mean(gains, nil) / math.Abs(stat.Mean(losses, nil))
	}
}

// ============================================================================
// OBJECTIVE METRICS
// ============================================================================

// ErrUnknownMetric is returned for objective names that do not map to a metric
var ErrUnknownMetric = errors.New("unknown objective metric")

// Metric names a scalar that a search can optimize
type Metric string

const (
	MetricSharpeRatio     Metric = "sharpe_ratio"
	MetricTotalReturn     Metric = "total_return"
	MetricAnnualReturn    Metric = "annual_return"
	MetricMaxDrawdown     Metric = "max_drawdown"
	MetricWinRate         Metric = "win_rate"
	MetricProfitLossRatio Metric = "profit_loss_ratio"
	MetricVolatility      Metric = "volatility"
	MetricCalmarRatio     Metric = "calmar_ratio"
)

// metricExtractors maps each metric to its field
var metricExtractors = map[Metric]func(*Metrics) float64{
	MetricSharpeRatio:     func(m *Metrics) float64 { return m.SharpeRatio },
	MetricTotalReturn:     func(m *Metrics) float64 { return m.TotalReturn },
	MetricAnnualReturn:    func(m *Metrics) float64 { return m.AnnualReturn },
	MetricMaxDrawdown:     func(m *Metrics) float64 { return m.MaxDrawdown },
	MetricWinRate:         func(m *Metrics) float64 { return m.WinRate },
	MetricProfitLossRatio: func(m *Metrics) float64 { return m.ProfitLossRatio },
	MetricVolatility:      func(m *Metrics) float64 { return m.Volatility },
	MetricCalmarRatio:     func(m *Metrics) float64 { return m.CalmarRatio },
}

// ParseMetric resolves an objective name
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := metricExtractors[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}

// Minimized reports whether smaller values of the metric are better.
// Callers optimizing such a metric should run the search with maximize=false.
func (m Metric) Minimized() bool {
	return m == MetricMaxDrawdown || m == MetricVolatility
}

// MetricValue extracts the named metric
func MetricValue(metrics *Metrics, metric Metric) (float64, error) {
	extract, ok := metricExtractors[metric]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return extract(metrics), nil
}

// ============================================================================
// REPORT GENERATION
// ============================================================================

// GenerateReport generates a human-readable performance report
func GenerateReport(metrics *Metrics) string {
	return fmt.Sprintf(`
================================================================================
BACKTEST PERFORMANCE REPORT
================================================================================

OVERVIEW
--------
Period:            %s to %s (%d bars)
Initial Capital:   $%.2f
Final Equity:      $%.2f
Peak Equity:       $%.2f

RETURNS
-------
Total Return:      %.2f%%
Annualized Return: %.2f%%

RISK METRICS
------------
Max Drawdown:      %.2f%%
Volatility:        %.2f%%
Sharpe Ratio:      %.2f
Calmar Ratio:      %.2f

RETURN DISTRIBUTION
-------------------
Win Rate:          %.2f%%
Profit/Loss Ratio: %.2f
Total Trades:      %d

================================================================================
`,
		metrics.StartDate.Format("2006-01-02"),
		metrics.EndDate.Format("2006-01-02"),
		metrics.Bars,
		metrics.InitialCapital,
		metrics.FinalEquity,
		metrics.PeakEquity,
		metrics.TotalReturn*100,
		metrics.AnnualReturn*100,
		metrics.MaxDrawdown*100,
		metrics.Volatility*100,
		metrics.SharpeRatio,
		metrics.CalmarRatio,
		metrics.WinRate*100,
		metrics.ProfitLossRatio,
		metrics.TotalTrades,
	)
}
