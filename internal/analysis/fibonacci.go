package analysis

import (
	"fmt"
	"math"

	"go-ict/internal/model"
)

// Standard ratios used for retracement and extension levels.
const (
	Ratio382  = 0.382
	Ratio50   = 0.5
	Ratio618  = 0.618
	Ratio1272 = 1.272
)

// FibonacciLevels computes retracements measured down from high and the
// 127.2% extension measured up from low. high must be strictly above low.
func FibonacciLevels(low, high float64) (model.FibonacciLevels, error) {
	if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return model.FibonacciLevels{}, fmt.Errorf("fibonacci range [%v, %v]: %w", low, high, model.ErrDegenerateRange)
	}
	if high <= low {
		return model.FibonacciLevels{}, fmt.Errorf("fibonacci range low=%v high=%v: %w", low, high, model.ErrDegenerateRange)
	}
	diff := high - low
	return model.FibonacciLevels{
		Fib382:  Retracement(low, high, Ratio382),
		Fib50:   Retracement(low, high, Ratio50),
		Fib618:  Retracement(low, high, Ratio618),
		Ext1272: low + Ratio1272*diff,
	}, nil
}

// Retracement returns high - r*(high-low).
func Retracement(low, high, r float64) float64 {
	return high - r*(high-low)
}

// Extension returns low + r*(high-low), the upside projection of the range.
func Extension(low, high, r float64) float64 {
	return low + r*(high-low)
}

// ExtensionDown mirrors Extension below the range: high - r*(high-low).
func ExtensionDown(low, high, r float64) float64 {
	return high - r*(high-low)
}

// Band is a closed price interval between two retracement ratios.
type Band struct {
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// Contains reports whether price lies between the retracement prices of the
// band's two ratios, in either order.
func (b Band) Contains(low, high, price float64) bool {
	a := Retracement(low, high, b.From)
	c := Retracement(low, high, b.To)
	lo, hi := math.Min(a, c), math.Max(a, c)
	return price >= lo && price <= hi
}
