// Package wave generates wavetables in volts for one full wave period.
package wave

import (
	"errors"
	"math"
	"math/rand"
)

// MinPoints is the shortest wavetable accepted by the generators.
const MinPoints = 4

var (
	// ErrTooFewPoints indicates less than MinPoints points.
	ErrTooFewPoints = errors.New("not enough points for wave")
	// ErrBadRange indicates v1 is not below v2.
	ErrBadRange = errors.New("v1 must be lower than v2")
)

func check(n int) error {
	if n < MinPoints {
		return ErrTooFewPoints
	}
	return nil
}

// Square is v1 for the first half of the period and v2 after.
func Square(v1, v2 float64, n int) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		if float64(i) < float64(n)/2 {
			vals[i] = v1
		} else {
			vals[i] = v2
		}
	}
	return vals, nil
}

// Pulse is v1 for the first n1 points and v2 after.
func Pulse(v1, v2 float64, n, n1 int) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		if i < n1 {
			vals[i] = v1
		} else {
			vals[i] = v2
		}
	}
	return vals, nil
}

// Triangle starts at the middle of the rising edge.
func Triangle(v1, v2 float64, n int) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		p := (i + n/4) % n
		if float64(p) < float64(n)/2 {
			vals[i] = v1 + 2*(v2-v1)*float64(p)/float64(n)
		} else {
			vals[i] = v1 + 2*(v2-v1)*float64(n-p)/float64(n)
		}
	}
	return vals, nil
}

// Sawtooth rises from v1 towards v2.
func Sawtooth(v1, v2 float64, n int) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = v1 + (v2-v1)*float64(i)/float64(n)
	}
	return vals, nil
}

func periodic(fn func(float64) float64, v1, v2 float64, n int, phase float64) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	rad := phase * math.Pi / 180
	mean, amplitude := (v1+v2)/2, (v2-v1)/2
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = mean + amplitude*fn(2*math.Pi*float64(i)/float64(n)+rad)
	}
	return vals, nil
}

// Sine oscillates between v1 and v2, phase in degrees.
func Sine(v1, v2 float64, n int, phase float64) ([]float64, error) {
	return periodic(math.Sin, v1, v2, n, phase)
}

// Cosine oscillates between v1 and v2, phase in degrees.
func Cosine(v1, v2 float64, n int, phase float64) ([]float64, error) {
	return periodic(math.Cos, v1, v2, n, phase)
}

// Noise is gaussian noise around mean, clipped to 0..vref.
func Noise(mean, std float64, n int, vref float64, rnd *rand.Rand) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Max(0, math.Min(vref, mean+std*rnd.NormFloat64()))
	}
	return vals, nil
}

// Random is uniform noise between v1 and v2.
func Random(v1, v2 float64, n int, rnd *rand.Rand) ([]float64, error) {
	if err := check(n); err != nil {
		return nil, err
	}
	if v1 >= v2 {
		return nil, ErrBadRange
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = v1 + (v2-v1)*rnd.Float64()
	}
	return vals, nil
}
