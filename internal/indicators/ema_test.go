package indicators

import (
	"errors"
	"testing"
)

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	sma, err := SMA(prices, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sma) != len(prices) {
		t.Fatalf("Expected %d values, got %d", len(prices), len(sma))
	}
	if Ready(sma[0]) || Ready(sma[1]) {
		t.Error("Expected warmup bars to be NaN")
	}
	if abs(sma[2]-2.0) > 1e-9 {
		t.Errorf("Expected SMA 2.0 at index 2, got %f", sma[2])
	}
	if abs(sma[9]-9.0) > 1e-9 {
		t.Errorf("Expected SMA 9.0 at index 9, got %f", sma[9])
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	sma, err := SMA([]float64{1, 2}, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, v := range sma {
		if Ready(v) {
			t.Errorf("Expected NaN at %d, got %f", i, v)
		}
	}
}

func TestSMA_InvalidPeriod(t *testing.T) {
	_, err := SMA([]float64{1, 2, 3}, 0)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("Expected ErrInvalidPeriod, got %v", err)
	}
}

func TestEMA(t *testing.T) {
	prices := generatePriceData(40, 100.0, 2.0)

	ema, err := EMA(prices, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ema) != len(prices) {
		t.Fatalf("Expected %d values, got %d", len(prices), len(ema))
	}

	last := ema[len(ema)-1]
	if !Ready(last) {
		t.Fatal("Expected last EMA value to be ready")
	}

	lo, hi := prices[0], prices[0]
	for _, p := range prices {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if last < lo || last > hi {
		t.Errorf("EMA %.2f outside price range [%.2f, %.2f]", last, lo, hi)
	}
}

func TestEMA_InvalidPeriod(t *testing.T) {
	if _, err := EMA([]float64{1, 2, 3}, -1); err == nil {
		t.Error("Expected error, got nil")
	}
}
