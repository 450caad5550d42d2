// Package indicators wraps cinar/indicator so every result is aligned with the
// price slice it was computed from.
package indicators

import (
	"errors"
	"math"

	"github.com/cinar/indicator/v2/helper"
)

// ErrInvalidPeriod is returned when a window length is not usable.
var ErrInvalidPeriod = errors.New("invalid indicator period")

// Ready reports whether an aligned value is past the indicator warmup.
func Ready(v float64) bool {
	return !math.IsNaN(v)
}

// align places computed values at the tail of an n-length series. The
// indicators emit nothing for their idle period, so leading slots are NaN.
func align(n int, values []float64) []float64 {
	out := make([]float64, n)
	offset := n - len(values)
	for i := range out {
		if i < offset {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-offset]
	}
	return out
}

func nanSeries(n int) []float64 {
	return align(n, nil)
}

// compute runs a single-output indicator over prices.
func compute(prices []float64, fn func(<-chan float64) <-chan float64) []float64 {
	return helper.ChanToSlice(fn(helper.SliceToChan(prices)))
}
