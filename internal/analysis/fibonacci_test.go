package analysis

import (
	"errors"
	"math"
	"testing"

	"go-ict/internal/model"
)

func TestFibonacciLevels(t *testing.T) {
	lv, err := FibonacciLevels(100, 120)
	if err != nil {
		t.Fatalf("FibonacciLevels: %v", err)
	}
	checks := map[string]float64{
		"fib_382":  112.36,
		"fib_50":   110,
		"fib_618":  107.64,
		"ext_1272": 125.44,
	}
	for name, want := range checks {
		if got := lv.Map()[name]; !approx(got, want) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if !(lv.Fib618 < lv.Fib50 && lv.Fib50 < lv.Fib382) {
		t.Errorf("retracements out of order: %+v", lv)
	}
}

func TestFibonacciLevelsDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		low, high float64
	}{
		{"equal", 100, 100},
		{"inverted", 120, 100},
		{"nan", math.NaN(), 100},
		{"inf", 100, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FibonacciLevels(tt.low, tt.high)
			if !errors.Is(err, model.ErrDegenerateRange) {
				t.Errorf("err = %v, want ErrDegenerateRange", err)
			}
		})
	}
}

func TestBandContains(t *testing.T) {
	b := Band{From: Ratio618, To: Ratio50}
	if !b.Contains(100, 120, 108) {
		t.Error("108 should be in [107.64, 110]")
	}
	if b.Contains(100, 120, 111) {
		t.Error("111 should be outside [107.64, 110]")
	}
	if !approx(ExtensionDown(100, 120, Ratio1272), 94.56) {
		t.Errorf("ExtensionDown = %v", ExtensionDown(100, 120, Ratio1272))
	}
}
