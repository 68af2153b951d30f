package nn

import (
	"fmt"

	"dualgrad/internal/dual"
)

// Derivative evaluates a registered activation at x and returns its value and
// slope, read off the dual part of a single forward evaluation.
func Derivative(name string, x float64) (value, slope float64, err error) {
	fn, err := GetActivation(name)
	if err != nil {
		return 0, 0, fmt.Errorf("unsupported derivative: %w", err)
	}
	y := fn(dual.Variable(x))
	return y.Real, y.Dual, nil
}
