// Package classifier provides the fallback model used when no rule setup
// exists: a multinomial logistic (softmax) head over the engine feature
// vector, loaded from a JSON weights file.
package classifier

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"

	"go-ict/internal/model"

	"github.com/bytedance/sonic"
)

// Class labels in the order the weights file uses by default.
var DefaultClasses = []model.Side{model.SideNoTrade, model.SideBuy, model.SideSell}

// Softmax is a linear softmax classifier with optional standardization.
// Weights is classes x features.
type Softmax struct {
	Classes  []model.Side `json:"classes"`
	Features []string     `json:"features"`
	Weights  [][]float64  `json:"weights"`
	Bias     []float64    `json:"bias"`
	Mean     []float64    `json:"mean,omitempty"`
	Scale    []float64    `json:"scale,omitempty"`
}

// Load reads and validates a weights file.
func Load(path string) (*Softmax, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file %s: %w", path, err)
	}
	var m Softmax
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model file %s: %w", path, err)
	}
	if len(m.Classes) == 0 {
		m.Classes = slices.Clone(DefaultClasses)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that every dimension agrees.
func (m *Softmax) Validate() error {
	k := len(m.Classes)
	if k < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", k)
	}
	if len(m.Weights) != k || len(m.Bias) != k {
		return fmt.Errorf("weights/bias rows %d/%d do not match %d classes", len(m.Weights), len(m.Bias), k)
	}
	n := len(m.Weights[0])
	if n == 0 {
		return fmt.Errorf("weights have no columns")
	}
	for i, row := range m.Weights {
		if len(row) != n {
			return fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), n)
		}
	}
	if len(m.Features) != 0 && len(m.Features) != n {
		return fmt.Errorf("%d feature names for %d columns", len(m.Features), n)
	}
	if len(m.Mean) != 0 && len(m.Mean) != n {
		return fmt.Errorf("mean has %d entries, want %d", len(m.Mean), n)
	}
	if len(m.Scale) != 0 && len(m.Scale) != n {
		return fmt.Errorf("scale has %d entries, want %d", len(m.Scale), n)
	}
	for _, c := range m.Classes {
		switch c {
		case model.SideBuy, model.SideSell, model.SideNoTrade:
		default:
			return fmt.Errorf("unknown class %q", c)
		}
	}
	return nil
}

// CheckFeatures fails when the model was trained on a different column layout.
func (m *Softmax) CheckFeatures(names []string) error {
	if len(m.Weights[0]) != len(names) {
		return fmt.Errorf("model expects %d features, engine provides %d", len(m.Weights[0]), len(names))
	}
	if len(m.Features) == 0 {
		return nil
	}
	for i, name := range names {
		if m.Features[i] != name {
			return fmt.Errorf("feature %d is %q in the model, %q in the engine", i, m.Features[i], name)
		}
	}
	return nil
}

// Probabilities returns the class distribution for x.
func (m *Softmax) Probabilities(x []float64) ([]float64, error) {
	n := len(m.Weights[0])
	if len(x) != n {
		return nil, fmt.Errorf("got %d features, want %d", len(x), n)
	}
	z := make([]float64, len(m.Classes))
	for k, row := range m.Weights {
		s := m.Bias[k]
		for j, w := range row {
			v := x[j]
			if len(m.Mean) > 0 {
				v -= m.Mean[j]
			}
			if len(m.Scale) > 0 && m.Scale[j] != 0 {
				v /= m.Scale[j]
			}
			s += w * v
		}
		z[k] = s
	}
	// shift by max for stability
	zmax := slices.Max(z)
	sum := 0.0
	for k := range z {
		z[k] = math.Exp(z[k] - zmax)
		sum += z[k]
	}
	for k := range z {
		z[k] /= sum
	}
	return z, nil
}

// Predict returns the most probable class and its probability.
func (m *Softmax) Predict(ctx context.Context, features []float64) (model.Side, float64, error) {
	if err := ctx.Err(); err != nil {
		return model.SideNoTrade, 0, err
	}
	p, err := m.Probabilities(features)
	if err != nil {
		return model.SideNoTrade, 0, err
	}
	best := 0
	for k := range p {
		if p[k] > p[best] {
			best = k
		}
	}
	return m.Classes[best], p[best], nil
}
