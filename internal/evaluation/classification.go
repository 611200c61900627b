package evaluation

import (
	"math"
	"sort"
)

type confusion struct {
	tp, fp, fn float64
}

func classificationMetrics(targets, predictions []float64) map[string]float64 {
	labels := make([]float64, len(predictions))
	for i, p := range predictions {
		labels[i] = math.Round(p)
	}

	correct := 0
	for i, y := range targets {
		if y == labels[i] {
			correct++
		}
	}

	precision, recall, f1 := binaryOrMacro(targets, labels)

	return map[string]float64{
		MetricAccuracy:  float64(correct) / float64(len(targets)),
		MetricPrecision: precision,
		MetricRecall:    recall,
		MetricF1:        f1,
	}
}

// binaryOrMacro scores label 1 as the positive class when every label is 0 or 1,
// otherwise macro-averages over the sorted union of observed labels.
func binaryOrMacro(targets, labels []float64) (precision, recall, f1 float64) {
	classes := classSet(targets, labels)

	if isBinary(classes) {
		c := countClass(targets, labels, 1)
		return scores(c)
	}

	for _, class := range classes {
		p, r, f := scores(countClass(targets, labels, class))
		precision += p
		recall += r
		f1 += f
	}
	n := float64(len(classes))
	return precision / n, recall / n, f1 / n
}

func countClass(targets, labels []float64, class float64) confusion {
	var c confusion
	for i, y := range targets {
		switch {
		case y == class && labels[i] == class:
			c.tp++
		case y != class && labels[i] == class:
			c.fp++
		case y == class && labels[i] != class:
			c.fn++
		}
	}
	return c
}

func scores(c confusion) (precision, recall, f1 float64) {
	precision = ratio(c.tp, c.tp+c.fp)
	recall = ratio(c.tp, c.tp+c.fn)
	f1 = ratio(2*precision*recall, precision+recall)
	return precision, recall, f1
}

// ratio returns 0 for a zero denominator
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func classSet(targets, labels []float64) []float64 {
	seen := make(map[float64]struct{})
	for _, v := range targets {
		seen[v] = struct{}{}
	}
	for _, v := range labels {
		seen[v] = struct{}{}
	}
	classes := make([]float64, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)
	return classes
}

func isBinary(classes []float64) bool {
	for _, c := range classes {
		if c != 0 && c != 1 {
			return false
		}
	}
	return true
}
