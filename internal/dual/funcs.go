package dual

import "math"

// Sigmoid applies the logistic function 1/(1+e^-x).
func Sigmoid(x Number) Number {
	s := 1 / (1 + math.Exp(-x.Real))
	return Number{Real: s, Dual: s * (1 - s) * x.Dual}
}

func Tanh(x Number) Number {
	t := math.Tanh(x.Real)
	return Number{Real: t, Dual: (1 - t*t) * x.Dual}
}

// ReLU uses a zero derivative at the origin.
func ReLU(x Number) Number {
	if x.Real > 0 {
		return x
	}
	return Number{}
}

func Exp(x Number) Number {
	e := math.Exp(x.Real)
	return Number{Real: e, Dual: e * x.Dual}
}

// Chain lifts a scalar function with known derivative onto dual numbers.
func Chain(f, df func(float64) float64) func(Number) Number {
	return func(x Number) Number {
		return Number{Real: f(x.Real), Dual: df(x.Real) * x.Dual}
	}
}
