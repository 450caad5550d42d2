package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the simple moving average of prices over period bars.
func SMA(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: sma period %d", ErrInvalidPeriod, period)
	}
	if len(prices) < period {
		return nanSeries(len(prices)), nil
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	return align(len(prices), compute(prices, sma.Compute)), nil
}

// EMA returns the exponential moving average of prices over period bars.
func EMA(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: ema period %d", ErrInvalidPeriod, period)
	}
	if len(prices) < period {
		return nanSeries(len(prices)), nil
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	return align(len(prices), compute(prices, ema.Compute)), nil
}
