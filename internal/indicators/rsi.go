package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
)

// RSI returns the Relative Strength Index of prices. Values are in [0, 100].
func RSI(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: rsi period %d", ErrInvalidPeriod, period)
	}
	if len(prices) <= period {
		return nanSeries(len(prices)), nil
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	return align(len(prices), compute(prices, rsi.Compute)), nil
}
