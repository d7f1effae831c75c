// Package cal holds calibration tables, their correction rule, the
// calibration workflow and persistence of calibration artifacts.
package cal

// Pair maps a reference ratio to the ratio actually measured.
type Pair struct {
	Reference float64
	Measured  float64
}

// Table is an ordered list of calibration pairs, one per calibration step.
// A table with fewer than 2 pairs is uncalibrated.
type Table []Pair

// Calibrated reports whether the table is usable for correction.
func (t Table) Calibrated() bool {
	return len(t) >= 2
}

// Correct maps an input ratio through the table by piecewise linear
// interpolation on the measured axis. A measured point maps to its
// reference, inputs below the first measured point or above the last one
// are returned unchanged.
func (t Table) Correct(input float64) float64 {
	if len(t) < 2 {
		return input
	}
	for i, p := range t {
		if input > p.Measured {
			continue
		}
		if input == p.Measured {
			return p.Reference
		}
		if i == 0 {
			return input
		}
		prev := t[i-1]
		alpha := (input - prev.Measured) / (p.Measured - prev.Measured)
		return prev.Reference + alpha*(p.Reference-prev.Reference)
	}
	return input
}

// Inverse swaps reference and measured in every pair.
func (t Table) Inverse() Table {
	if t == nil {
		return nil
	}
	inv := make(Table, len(t))
	for i, p := range t {
		inv[i] = Pair{Reference: p.Measured, Measured: p.Reference}
	}
	return inv
}

// References returns the reference column.
func (t Table) References() []float64 {
	vals := make([]float64, len(t))
	for i, p := range t {
		vals[i] = p.Reference
	}
	return vals
}

// Measurements returns the measured column.
func (t Table) Measurements() []float64 {
	vals := make([]float64, len(t))
	for i, p := range t {
		vals[i] = p.Measured
	}
	return vals
}

// Correct applies the table correction rule to parallel arrays.
func Correct(input float64, reference, measured []float64) float64 {
	n := len(reference)
	if len(measured) < n {
		n = len(measured)
	}
	t := make(Table, n)
	for i := range t {
		t[i] = Pair{Reference: reference[i], Measured: measured[i]}
	}
	return t.Correct(input)
}
