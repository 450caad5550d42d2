package indicators

import (
	"testing"
)

func TestBollingerBands(t *testing.T) {
	prices := generatePriceData(50, 100.0, 2.0)

	bands, err := BollingerBands(prices, 20, 2.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sma, err := SMA(prices, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ready := 0
	for i := range prices {
		if !Ready(bands.Middle[i]) {
			continue
		}
		ready++
		if bands.Upper[i] < bands.Middle[i] || bands.Middle[i] < bands.Lower[i] {
			t.Errorf("Band order violated at %d: %f %f %f", i, bands.Upper[i], bands.Middle[i], bands.Lower[i])
		}
		if abs(bands.Middle[i]-sma[i]) > 1e-6 {
			t.Errorf("Middle band %f differs from SMA %f at %d", bands.Middle[i], sma[i], i)
		}
	}
	if ready == 0 {
		t.Fatal("Expected ready band values")
	}
}

func TestBollingerBands_StdMultiplier(t *testing.T) {
	prices := generatePriceData(50, 100.0, 2.0)

	two, err := BollingerBands(prices, 20, 2.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	one, err := BollingerBands(prices, 20, 1.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := len(prices) - 1
	wideTwo := two.Upper[last] - two.Lower[last]
	wideOne := one.Upper[last] - one.Lower[last]
	if abs(wideTwo-2*wideOne) > 1e-6 {
		t.Errorf("Expected width to scale with multiplier: %f vs %f", wideTwo, wideOne)
	}
}

func TestBollingerBands_InvalidParams(t *testing.T) {
	prices := generatePriceData(30, 100.0, 1.0)

	if _, err := BollingerBands(prices, 1, 2.0); err == nil {
		t.Error("Expected error for period < 2")
	}
	if _, err := BollingerBands(prices, 20, 0); err == nil {
		t.Error("Expected error for non-positive multiplier")
	}
}
