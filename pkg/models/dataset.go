package models

// Dataset is a feature matrix with one target per row.
// Classification targets are class labels encoded as float64.
type Dataset struct {
	Features [][]float64 `json:"features"`
	Targets  []float64   `json:"targets"`
}

// Len returns the number of rows
func (d Dataset) Len() int {
	return len(d.Features)
}

// Empty reports whether the dataset has no rows
func (d Dataset) Empty() bool {
	return len(d.Features) == 0 && len(d.Targets) == 0
}
