package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"
)

// BollingerSeries holds the three bands aligned with the input prices.
type BollingerSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands computes bands at numStd standard deviations around the
// period-bar moving average.
func BollingerBands(prices []float64, period int, numStd float64) (*BollingerSeries, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: bollinger period %d (must be >= 2)", ErrInvalidPeriod, period)
	}
	if numStd <= 0 {
		return nil, fmt.Errorf("invalid bollinger std multiplier: %f (must be > 0)", numStd)
	}

	n := len(prices)
	if n < period {
		return &BollingerSeries{Upper: nanSeries(n), Middle: nanSeries(n), Lower: nanSeries(n)}, nil
	}

	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	firstChan, middleChan, lastChan := bb.Compute(helper.SliceToChan(prices))

	var upper, middle, lower []float64
	for {
		a, aok := <-firstChan
		m, mok := <-middleChan
		b, bok := <-lastChan
		if !aok || !mok || !bok {
			break
		}

		// The library fixes the band at two standard deviations; rescale the
		// half-width to the requested multiplier.
		sigma := math.Abs(a-b) / 4
		middle = append(middle, m)
		upper = append(upper, m+numStd*sigma)
		lower = append(lower, m-numStd*sigma)
	}

	return &BollingerSeries{
		Upper:  align(n, upper),
		Middle: align(n, middle),
		Lower:  align(n, lower),
	}, nil
}
