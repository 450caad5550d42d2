package indicators

import (
	"testing"
)

func TestMACD(t *testing.T) {
	prices := generatePriceData(60, 100.0, 2.0)

	tests := []struct {
		name      string
		fast      int
		slow      int
		signal    int
		wantError bool
	}{
		{name: "Default periods", fast: 12, slow: 26, signal: 9},
		{name: "Custom periods", fast: 8, slow: 17, signal: 9},
		{name: "Fast period >= slow period", fast: 26, slow: 12, signal: 9, wantError: true},
		{name: "Invalid fast period (zero)", fast: 0, slow: 26, signal: 9, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := MACD(prices, tt.fast, tt.slow, tt.signal)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if len(series.MACD) != len(prices) || len(series.Signal) != len(prices) || len(series.Histogram) != len(prices) {
				t.Fatal("Expected all MACD series to be aligned with prices")
			}

			last := len(prices) - 1
			if !Ready(series.Histogram[last]) {
				t.Fatal("Expected last histogram value to be ready")
			}
			for i := range prices {
				if !Ready(series.Histogram[i]) {
					continue
				}
				want := series.MACD[i] - series.Signal[i]
				if abs(series.Histogram[i]-want) > 1e-9 {
					t.Errorf("Histogram mismatch at %d: got %f, want %f", i, series.Histogram[i], want)
				}
			}
		})
	}
}

func TestMACD_InsufficientData(t *testing.T) {
	series, err := MACD(generatePriceData(10, 100.0, 1.0), 12, 26, 9)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, v := range series.Histogram {
		if Ready(v) {
			t.Errorf("Expected NaN, got %f", v)
		}
	}
}
