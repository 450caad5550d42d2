package backtest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/stratopt/internal/indicators"
)

// ============================================================================
// STRATEGY FAMILIES
// ============================================================================

// ErrUnknownFamily is returned for strategy names outside the supported set
var ErrUnknownFamily = errors.New("unknown strategy family")

// Family identifies a signal generator
type Family string

const (
	FamilyMACross    Family = "ma_cross"
	FamilyRSI        Family = "rsi"
	FamilyBollinger  Family = "bollinger"
	FamilyMACDSignal Family = "macd"
)

// SignalGenerator turns closes into one transition signal per bar
type SignalGenerator interface {
	Family() Family
	// Defaults lists every parameter the generator reads and its default value
	Defaults() ParameterSet
	Generate(closes []float64, params ParameterSet) ([]Signal, error)
}

var generators = map[Family]SignalGenerator{
	FamilyMACross:    maCrossGenerator{},
	FamilyRSI:        rsiGenerator{},
	FamilyBollinger:  bollingerGenerator{},
	FamilyMACDSignal: macdGenerator{},
}

// Families returns the supported family names in sorted order
func Families() []Family {
	families := make([]Family, 0, len(generators))
	for f := range generators {
		families = append(families, f)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}

// ParseFamily resolves a strategy name. Short aliases ("ma", "boll", "bb")
// are accepted.
func ParseFamily(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ma_cross", "ma", "sma_cross":
		return FamilyMACross, nil
	case "rsi":
		return FamilyRSI, nil
	case "bollinger", "boll", "bb":
		return FamilyBollinger, nil
	case "macd":
		return FamilyMACDSignal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, name)
}

// Generator returns the signal generator for a family
func (f Family) Generator() (SignalGenerator, error) {
	g, ok := generators[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
	}
	return g, nil
}

// Accepts reports whether the family reads the named parameter
func (f Family) Accepts(name string) bool {
	g, ok := generators[f]
	if !ok {
		return false
	}
	_, ok = g.Defaults()[name]
	return ok
}

// GenerateSignals runs a family over the bars. Parameters missing from
// params fall back to the family defaults.
func GenerateSignals(family Family, bars []*Candlestick, params ParameterSet) ([]Signal, error) {
	g, err := family.Generator()
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	return g.Generate(closes, params.Merge(g.Defaults()))
}

// ============================================================================
// EDGE TRIGGER
// ============================================================================

// regime is the condition a family evaluates on each bar
type regime int

const (
	regimeNeutral regime = iota
	regimeLong
	regimeFlat
)

// edges emits a signal only on bars where the regime switches into long or
// flat. Warmup bars hold the baseline regime and never signal.
func edges(regimes []regime, baseline regime) []Signal {
	signals := make([]Signal, len(regimes))
	prev := baseline
	for i, r := range regimes {
		signals[i] = SignalNone
		if r != prev {
			switch r {
			case regimeLong:
				signals[i] = SignalEnterLong
			case regimeFlat:
				signals[i] = SignalExitLong
			}
		}
		prev = r
	}
	return signals
}

// ============================================================================
// MOVING AVERAGE CROSS
// ============================================================================

type maCrossGenerator struct{}

func (maCrossGenerator) Family() Family { return FamilyMACross }

func (maCrossGenerator) Defaults() ParameterSet {
	return ParameterSet{"short_period": 5, "long_period": 20, "ma_type": "sma"}
}

func (maCrossGenerator) Generate(closes []float64, params ParameterSet) ([]Signal, error) {
	short, err := params.Int("short_period")
	if err != nil {
		return nil, err
	}
	long, err := params.Int("long_period")
	if err != nil {
		return nil, err
	}
	if short >= long {
		return nil, fmt.Errorf("short_period (%d) must be less than long_period (%d)", short, long)
	}
	maType, err := params.Str("ma_type")
	if err != nil {
		return nil, err
	}

	average := indicators.SMA
	switch strings.ToLower(maType) {
	case "sma":
	case "ema":
		average = indicators.EMA
	default:
		return nil, fmt.Errorf("unsupported ma_type %q", maType)
	}

	shortMA, err := average(closes, short)
	if err != nil {
		return nil, err
	}
	longMA, err := average(closes, long)
	if err != nil {
		return nil, err
	}

	regimes := make([]regime, len(closes))
	for i := range closes {
		switch {
		case !indicators.Ready(shortMA[i]) || !indicators.Ready(longMA[i]):
			regimes[i] = regimeFlat
		case shortMA[i] > longMA[i]:
			regimes[i] = regimeLong
		default:
			regimes[i] = regimeFlat
		}
	}

	return edges(regimes, regimeFlat), nil
}

// ============================================================================
// RSI THRESHOLD
// ============================================================================

type rsiGenerator struct{}

func (rsiGenerator) Family() Family { return FamilyRSI }

func (rsiGenerator) Defaults() ParameterSet {
	return ParameterSet{"rsi_period": 14, "oversold": 30.0, "overbought": 70.0}
}

func (rsiGenerator) Generate(closes []float64, params ParameterSet) ([]Signal, error) {
	period, err := params.Int("rsi_period")
	if err != nil {
		return nil, err
	}
	oversold, err := params.Float("oversold")
	if err != nil {
		return nil, err
	}
	overbought, err := params.Float("overbought")
	if err != nil {
		return nil, err
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, fmt.Errorf("rsi thresholds must satisfy 0 < oversold (%v) < overbought (%v) < 100", oversold, overbought)
	}

	rsi, err := indicators.RSI(closes, period)
	if err != nil {
		return nil, err
	}

	regimes := make([]regime, len(closes))
	for i, v := range rsi {
		switch {
		case !indicators.Ready(v):
			regimes[i] = regimeNeutral
		case v < oversold:
			regimes[i] = regimeLong
		case v > overbought:
			regimes[i] = regimeFlat
		default:
			regimes[i] = regimeNeutral
		}
	}

	return edges(regimes, regimeNeutral), nil
}

// ============================================================================
// BOLLINGER BAND BREAKOUT
// ============================================================================

type bollingerGenerator struct{}

func (bollingerGenerator) Family() Family { return FamilyBollinger }

func (bollingerGenerator) Defaults() ParameterSet {
	return ParameterSet{"bb_period": 20, "num_std": 2.0}
}

func (bollingerGenerator) Generate(closes []float64, params ParameterSet) ([]Signal, error) {
	period, err := params.Int("bb_period")
	if err != nil {
		return nil, err
	}
	numStd, err := params.Float("num_std")
	if err != nil {
		return nil, err
	}

	bands, err := indicators.BollingerBands(closes, period, numStd)
	if err != nil {
		return nil, err
	}

	regimes := make([]regime, len(closes))
	for i, c := range closes {
		switch {
		case !indicators.Ready(bands.Lower[i]) || !indicators.Ready(bands.Upper[i]):
			regimes[i] = regimeNeutral
		case c < bands.Lower[i]:
			regimes[i] = regimeLong
		case c > bands.Upper[i]:
			regimes[i] = regimeFlat
		default:
			regimes[i] = regimeNeutral
		}
	}

	return edges(regimes, regimeNeutral), nil
}

// ============================================================================
// MACD HISTOGRAM SIGN
// ============================================================================

type macdGenerator struct{}

func (macdGenerator) Family() Family { return FamilyMACDSignal }

func (macdGenerator) Defaults() ParameterSet {
	return ParameterSet{"fast_period": 12, "slow_period": 26, "signal_period": 9}
}

func (macdGenerator) Generate(closes []float64, params ParameterSet) ([]Signal, error) {
	fast, err := params.Int("fast_period")
	if err != nil {
		return nil, err
	}
	slow, err := params.Int("slow_period")
	if err != nil {
		return nil, err
	}
	signal, err := params.Int("signal_period")
	if err != nil {
		return nil, err
	}

	macd, err := indicators.MACD(closes, fast, slow, signal)
	if err != nil {
		return nil, err
	}

	regimes := make([]regime, len(closes))
	for i, h := range macd.Histogram {
		if indicators.Ready(h) && h > 0 {
			regimes[i] = regimeLong
		} else {
			regimes[i] = regimeFlat
		}
	}

	return edges(regimes, regimeFlat), nil
}
