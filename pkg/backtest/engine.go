// Package backtest simulates a long-only strategy over historical price bars
// and scores the outcome.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Candlestick represents OHLCV data for one bar
type Candlestick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Turnover  float64   `json:"turnover,omitempty"`
}

// Signal is the transition requested on a bar
type Signal string

const (
	SignalNone      Signal = "NONE"
	SignalEnterLong Signal = "ENTER_LONG"
	SignalExitLong  Signal = "EXIT_LONG"
)

// Trade represents an executed fill
type Trade struct {
	Timestamp  time.Time `json:"timestamp"`
	Side       string    `json:"side"` // "BUY", "SELL"
	Shares     float64   `json:"shares"`
	Price      float64   `json:"price"` // execution price after slippage
	Commission float64   `json:"commission"`
	Value      float64   `json:"value"` // price * shares
}

// Position is the ledger state after a bar. It is a value: Step never
// modifies the position it was given.
type Position struct {
	Shares     float64 `json:"shares"`
	AvgCost    float64 `json:"avg_cost"`
	Cash       float64 `json:"cash"`
	LastClose  float64 `json:"last_close"`
	Equity     float64 `json:"equity"`
	PeakEquity float64 `json:"peak_equity"`
	Drawdown   float64 `json:"drawdown"` // (equity - peak) / peak, always <= 0
}

// Holding reports whether shares are held
func (p Position) Holding() bool {
	return p.Shares > 0
}

// EquityPoint represents portfolio equity at a point in time
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Holdings  float64   `json:"holdings"`
	Drawdown  float64   `json:"drawdown"`
}

// ============================================================================
// LEDGER
// ============================================================================

// Ledger defaults
const (
	DefaultInitialCapital   = 100000.0
	DefaultCommissionRate   = 0.0003
	DefaultSlippageRate     = 0.001
	DefaultPositionFraction = 0.8
)

var (
	ErrNoData       = errors.New("no price bars")
	ErrInvalidPrice = errors.New("invalid close price")
)

// BacktestConfig holds the fixed ledger settings for a simulation
type BacktestConfig struct {
	InitialCapital   float64 `json:"initial_capital" mapstructure:"initial_capital"`
	CommissionRate   float64 `json:"commission_rate" mapstructure:"commission_rate"`     // e.g., 0.0003 for 0.03%
	SlippageRate     float64 `json:"slippage_rate" mapstructure:"slippage_rate"`         // e.g., 0.001 for 0.1%
	PositionFraction float64 `json:"position_fraction" mapstructure:"position_fraction"` // share of cash committed on entry
}

// DefaultBacktestConfig returns the standard ledger settings
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:   DefaultInitialCapital,
		CommissionRate:   DefaultCommissionRate,
		SlippageRate:     DefaultSlippageRate,
		PositionFraction: DefaultPositionFraction,
	}
}

// Validate checks the ledger settings
func (c BacktestConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %f", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %f", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate must be in [0, 1), got %f", c.SlippageRate)
	}
	if c.PositionFraction <= 0 || c.PositionFraction > 1 {
		return fmt.Errorf("position fraction must be in (0, 1], got %f", c.PositionFraction)
	}
	return nil
}

// Start returns the flat position a simulation begins from
func (c BacktestConfig) Start() Position {
	return Position{
		Cash:       c.InitialCapital,
		Equity:     c.InitialCapital,
		PeakEquity: c.InitialCapital,
	}
}

// Step consumes the previous position and one bar and returns the next
// position, plus the fill if one happened.
func (c BacktestConfig) Step(prev Position, bar *Candlestick, signal Signal) (Position, *Trade) {
	next := prev
	next.LastClose = bar.Close

	var trade *Trade
	switch {
	case signal == SignalEnterLong && !prev.Holding():
		next, trade = c.enter(next, bar)
	case signal == SignalExitLong && prev.Holding():
		next, trade = c.exit(next, bar)
	}

	next.Equity = next.Cash + next.Shares*bar.Close
	next.PeakEquity = math.Max(prev.PeakEquity, next.Equity)
	if next.PeakEquity > 0 {
		next.Drawdown = (next.Equity - next.PeakEquity) / next.PeakEquity
	}

	return next, trade
}

// enter converts a fixed fraction of cash into whole shares at the close
// adjusted against the trader. The entry is skipped when it cannot be paid.
func (c BacktestConfig) enter(pos Position, bar *Candlestick) (Position, *Trade) {
	price := bar.Close * (1 + c.SlippageRate)
	budget := pos.Cash * c.PositionFraction

	shares := math.Floor(budget / (price * (1 + c.CommissionRate)))
	if shares <= 0 {
		return pos, nil
	}

	value := shares * price
	commission := value * c.CommissionRate
	totalCost := value + commission
	if totalCost > pos.Cash {
		return pos, nil
	}

	pos.Cash -= totalCost
	pos.Shares = shares
	pos.AvgCost = totalCost / shares

	return pos, &Trade{
		Timestamp:  bar.Timestamp,
		Side:       "BUY",
		Shares:     shares,
		Price:      price,
		Commission: commission,
		Value:      value,
	}
}

// exit sells every share at the close adjusted against the trader
func (c BacktestConfig) exit(pos Position, bar *Candlestick) (Position, *Trade) {
	price := bar.Close * (1 - c.SlippageRate)
	value := pos.Shares * price
	commission := value * c.CommissionRate

	trade := &Trade{
		Timestamp:  bar.Timestamp,
		Side:       "SELL",
		Shares:     pos.Shares,
		Price:      price,
		Commission: commission,
		Value:      value,
	}

	pos.Cash += value - commission
	pos.Shares = 0
	pos.AvgCost = 0

	return pos, trade
}

// ============================================================================
// SIMULATION
// ============================================================================

// SimulationResult is the outcome of one pass over a bar series
type SimulationResult struct {
	Config      BacktestConfig `json:"config"`
	Final       Position       `json:"final"`
	EquityCurve []EquityPoint  `json:"equity_curve"`
	Trades      []Trade        `json:"trades"`
}

// Simulate folds Step over the bars. signals[i] applies to bars[i].
func Simulate(bars []*Candlestick, signals []Signal, config BacktestConfig) (*SimulationResult, error) {
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("signal count %d does not match bar count %d", len(signals), len(bars))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &SimulationResult{
		Config:      config,
		EquityCurve: make([]EquityPoint, 0, len(bars)),
	}

	pos := config.Start()
	for i, bar := range bars {
		if bar.Close <= 0 || math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
			return nil, fmt.Errorf("%w: %f at %s", ErrInvalidPrice, bar.Close, bar.Timestamp.Format(time.RFC3339))
		}

		var trade *Trade
		pos, trade = config.Step(pos, bar, signals[i])
		if trade != nil {
			result.Trades = append(result.Trades, *trade)
		}

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    pos.Equity,
			Cash:      pos.Cash,
			Holdings:  pos.Shares * bar.Close,
			Drawdown:  pos.Drawdown,
		})
	}

	result.Final = pos
	return result, nil
}
