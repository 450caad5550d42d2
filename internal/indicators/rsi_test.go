package indicators

import (
	"testing"
)

func TestRSI(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		period    int
		wantError bool
		check     func(t *testing.T, last float64)
	}{
		{
			name:   "Rising series is overbought",
			prices: risingWithPullbacks(40),
			period: 14,
			check: func(t *testing.T, last float64) {
				if last <= 70 {
					t.Errorf("Expected RSI > 70, got %.2f", last)
				}
			},
		},
		{
			name:   "Falling series is oversold",
			prices: reverse(risingWithPullbacks(40)),
			period: 14,
			check: func(t *testing.T, last float64) {
				if last >= 30 {
					t.Errorf("Expected RSI < 30, got %.2f", last)
				}
			},
		},
		{
			name:      "Invalid period (zero)",
			prices:    risingWithPullbacks(20),
			period:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi, err := RSI(tt.prices, tt.period)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(rsi) != len(tt.prices) {
				t.Fatalf("Expected %d values, got %d", len(tt.prices), len(rsi))
			}
			if Ready(rsi[0]) {
				t.Error("Expected first value to be in warmup")
			}
			for i, v := range rsi {
				if Ready(v) && (v < 0 || v > 100) {
					t.Errorf("RSI %.2f at %d out of range", v, i)
				}
			}
			last := rsi[len(rsi)-1]
			if !Ready(last) {
				t.Fatal("Expected last RSI value to be ready")
			}
			tt.check(t, last)
		})
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	rsi, err := RSI([]float64{1, 2, 3}, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, v := range rsi {
		if Ready(v) {
			t.Errorf("Expected NaN, got %f", v)
		}
	}
}

// risingWithPullbacks climbs two points per bar with a one point dip every fourth bar.
func risingWithPullbacks(n int) []float64 {
	prices := make([]float64, n)
	prices[0] = 100
	for i := 1; i < n; i++ {
		if i%4 == 0 {
			prices[i] = prices[i-1] - 1
		} else {
			prices[i] = prices[i-1] + 2
		}
	}
	return prices
}

func reverse(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[len(prices)-1-i] = p
	}
	return out
}
