package inference

import (
	"fmt"
	"math"
)

// LinearModel predicts bias + weights·x
type LinearModel struct {
	Weights []float64
	Bias    float64
}

// NumFeatures returns the number of weights
func (m *LinearModel) NumFeatures() int { return len(m.Weights) }

// Predict scores one row
func (m *LinearModel) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Weights), len(x))
	}
	y := m.Bias
	for i, w := range m.Weights {
		y += w * x[i]
	}
	return y, nil
}

// LogisticModel is a binary classifier emitting label 1 when the
// sigmoid of the linear score reaches Threshold, else 0.
type LogisticModel struct {
	Weights   []float64
	Bias      float64
	Threshold float64
}

// NumFeatures returns the number of weights
func (m *LogisticModel) NumFeatures() int { return len(m.Weights) }

// Probability returns the positive-class probability for one row
func (m *LogisticModel) Probability(x []float64) (float64, error) {
	linear := LinearModel{Weights: m.Weights, Bias: m.Bias}
	z, err := linear.Predict(x)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Predict returns the class label for one row
func (m *LogisticModel) Predict(x []float64) (float64, error) {
	p, err := m.Probability(x)
	if err != nil {
		return 0, err
	}
	threshold := m.Threshold
	if threshold == 0 {
		threshold = 0.5
	}
	if p >= threshold {
		return 1, nil
	}
	return 0, nil
}

// ConstantModel returns Value for every row of Features columns
type ConstantModel struct {
	Value    float64
	Features int
}

// NumFeatures returns the expected row width
func (m *ConstantModel) NumFeatures() int { return m.Features }

// Predict returns the constant
func (m *ConstantModel) Predict(x []float64) (float64, error) {
	return m.Value, nil
}
