package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// MACDSeries holds the MACD line, its signal line and their difference, all
// aligned with the input prices.
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the Moving Average Convergence Divergence of prices.
func MACD(prices []float64, fast, slow, signal int) (*MACDSeries, error) {
	if fast < 1 || slow < 1 || signal < 1 {
		return nil, fmt.Errorf("%w: fast=%d, slow=%d, signal=%d", ErrInvalidPeriod, fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast period (%d) must be less than slow period (%d)", ErrInvalidPeriod, fast, slow)
	}

	n := len(prices)
	if n < slow+signal-1 {
		return &MACDSeries{MACD: nanSeries(n), Signal: nanSeries(n), Histogram: nanSeries(n)}, nil
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(helper.SliceToChan(prices))

	// Both outputs are produced in lockstep and must be drained together.
	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}

	histogram := make([]float64, len(macdValues))
	for i := range macdValues {
		histogram[i] = macdValues[i] - signalValues[i]
	}

	return &MACDSeries{
		MACD:      align(n, macdValues),
		Signal:    align(n, signalValues),
		Histogram: align(n, histogram),
	}, nil
}
