// Package dual implements dual numbers for forward-mode automatic
// differentiation. A Number carries a value and its derivative with respect to
// a single designated variable; every operation propagates the derivative by
// the chain rule.
package dual

import (
	"fmt"
	"math"
)

// Number is a value together with its derivative.
type Number struct {
	Real float64 `json:"real"`
	Dual float64 `json:"dual"`
}

// Lift returns x as a constant: its derivative is zero.
func Lift(x float64) Number {
	return Number{Real: x}
}

// Variable returns x as the independent variable: its derivative is one.
func Variable(x float64) Number {
	return Number{Real: x, Dual: 1}
}

// LiftAll lifts every value in xs.
func LiftAll(xs []float64) []Number {
	out := make([]Number, len(xs))
	for i, x := range xs {
		out[i] = Lift(x)
	}
	return out
}

func Add(x, y Number) Number {
	return Number{Real: x.Real + y.Real, Dual: x.Dual + y.Dual}
}

func Sub(x, y Number) Number {
	return Number{Real: x.Real - y.Real, Dual: x.Dual - y.Dual}
}

// Mul applies the product rule.
func Mul(x, y Number) Number {
	return Number{
		Real: x.Real * y.Real,
		Dual: x.Real*y.Dual + x.Dual*y.Real,
	}
}

// Scale multiplies x by the constant f.
func Scale(f float64, x Number) Number {
	return Mul(Lift(f), x)
}

// Div divides x by y by forming the product x*y and normalising by y.Real².
//
// The dual part is (x.Real*y.Dual + x.Dual*y.Real)/y.Real², which differs from
// the quotient rule in the sign of the x.Real*y.Dual term, and the real part
// is x.Real/y.Real only when y.Real is 1. Existing results depend on this
// formula; use QuotientDiv for the textbook quotient.
func Div(x, y Number) Number {
	n := Mul(x, y)
	d := y.Real * y.Real
	return Number{Real: n.Real / d, Dual: n.Dual / d}
}

// QuotientDiv applies the quotient rule.
func QuotientDiv(x, y Number) Number {
	d := y.Real * y.Real
	return Number{
		Real: x.Real / y.Real,
		Dual: (x.Dual*y.Real - x.Real*y.Dual) / d,
	}
}

// Sum folds xs with Add starting from the zero Number.
func Sum(xs []Number) Number {
	var total Number
	for _, x := range xs {
		total = Add(total, x)
	}
	return total
}

// Reals returns the value parts of xs.
func Reals(xs []Number) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x.Real
	}
	return out
}

// Duals returns the derivative parts of xs.
func Duals(xs []Number) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x.Dual
	}
	return out
}

// IsFinite reports whether both parts of x are finite.
func (x Number) IsFinite() bool {
	return !math.IsNaN(x.Real) && !math.IsInf(x.Real, 0) &&
		!math.IsNaN(x.Dual) && !math.IsInf(x.Dual, 0)
}

func (x Number) String() string {
	return fmt.Sprintf("(%g%+gϵ)", x.Real, x.Dual)
}
