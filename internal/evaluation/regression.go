package evaluation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func regressionMetrics(targets, predictions []float64) map[string]float64 {
	n := float64(len(targets))

	residuals := make([]float64, len(targets))
	floats.SubTo(residuals, targets, predictions)
	ssRes := floats.Dot(residuals, residuals)

	centered := make([]float64, len(targets))
	copy(centered, targets)
	floats.AddConst(-stat.Mean(targets, nil), centered)
	ssTot := floats.Dot(centered, centered)

	mse := ssRes / n
	return map[string]float64{
		MetricMSE:  mse,
		MetricRMSE: math.Sqrt(mse),
		MetricMAE:  floats.Norm(residuals, 1) / n,
		MetricR2:   rSquared(ssRes, ssTot),
	}
}

// rSquared is 1 - SSres/SStot. Constant targets give 1 for a perfect fit and 0 otherwise.
func rSquared(ssRes, ssTot float64) float64 {
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
