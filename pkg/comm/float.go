package comm

import "math"

const (
	expBias  = 128
	mantBias = 20000
)

// EncodeFloat converts a positive real into its wire exponent and mantissa.
// The mantissa keeps 4 significant digits, the relative error is below
// 0.05%.
func EncodeFloat(v float64) (byte, uint16, error) {
	if !(v > 0) || math.IsInf(v, 0) {
		return 0, 0, ErrNotRepresentable
	}
	exp := int(math.Floor(math.Log10(v))) - 3
	mant := math.Round(v / math.Pow10(exp))
	if mant >= 10000 {
		exp++
		mant = math.Round(v / math.Pow10(exp))
	}
	if exp+expBias < 0 || exp+expBias > 255 {
		return 0, 0, ErrNotRepresentable
	}
	return byte(exp + expBias), uint16(int(mant) + mantBias), nil
}

// DecodeFloat converts wire exponent and mantissa into a real.
func DecodeFloat(exp byte, mant uint16) float64 {
	e := int(exp) - expBias
	m := float64(int(mant) - mantBias)
	if e < 0 {
		return m / math.Pow10(-e)
	}
	return m * math.Pow10(e)
}
