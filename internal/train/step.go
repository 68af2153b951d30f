// Package train updates network weights by stochastic gradient descent using
// forward-mode gradients.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"dualgrad/internal/dual"
	"dualgrad/internal/nn"
)

var (
	ErrInvalidStepSize = errors.New("step size must be a finite value > 0")
	ErrNonFinite       = errors.New("non-finite loss or update")
)

// GradientFn produces the gradient buffer of net at inputs.
type GradientFn func(net *nn.Network, inputs []float64) (nn.Gradients, error)

// Serial computes gradients with one forward pass per parameter in order.
func Serial(net *nn.Network, inputs []float64) (nn.Gradients, error) {
	return net.ComputeGradients(inputs)
}

// Parallel spreads the per-parameter passes over workers goroutines.
func Parallel(ctx context.Context, workers int) GradientFn {
	return func(net *nn.Network, inputs []float64) (nn.Gradients, error) {
		return net.ComputeGradientsParallel(ctx, inputs, workers)
	}
}

// StepResult holds the prediction made before the update and its
// per-output squared error.
type StepResult struct {
	Prediction []dual.Number
	Loss       []float64
}

func (r StepResult) TotalLoss() float64 {
	return floats.Sum(r.Loss)
}

// SquaredError returns (prediction[j].Real - target[j])² for every output.
func SquaredError(prediction []dual.Number, target []float64) ([]float64, error) {
	if len(prediction) != len(target) {
		return nil, fmt.Errorf("%w: %d outputs, %d targets", nn.ErrShapeMismatch, len(prediction), len(target))
	}
	loss := make([]float64, len(target))
	for j, p := range prediction {
		d := p.Real - target[j]
		loss[j] = d * d
	}
	return loss, nil
}

// Step performs one update on a single example using serial gradients.
func Step(net *nn.Network, input, target []float64, stepSize float64) (StepResult, error) {
	return StepWith(net, input, target, stepSize, Serial)
}

// StepWith performs one update. Every parameter p moves by
//
//	stepSize * Σ_j ∂output_j/∂p * loss_j
//
// where loss_j is the squared error itself rather than its derivative, and
// the step is added rather than subtracted. Trained behaviour depends on this
// rule, so it is kept as is. No weight changes unless every phase succeeds;
// a NaN or infinite loss or update fails the step with ErrNonFinite.
func StepWith(net *nn.Network, input, target []float64, stepSize float64, gradients GradientFn) (StepResult, error) {
	if stepSize <= 0 || math.IsNaN(stepSize) || math.IsInf(stepSize, 0) {
		return StepResult{}, fmt.Errorf("%w: %v", ErrInvalidStepSize, stepSize)
	}
	if gradients == nil {
		gradients = Serial
	}

	prediction, err := net.Forward(input, nil)
	if err != nil {
		return StepResult{}, fmt.Errorf("forward: %w", err)
	}
	loss, err := SquaredError(prediction, target)
	if err != nil {
		return StepResult{}, err
	}
	if !isFinite(floats.Sum(loss)) {
		return StepResult{Prediction: prediction, Loss: loss}, fmt.Errorf("%w: loss %v", ErrNonFinite, loss)
	}

	grads, err := gradients(net, input)
	if err != nil {
		return StepResult{}, fmt.Errorf("gradients: %w", err)
	}
	if grads.NumParams != net.NumParams() || grads.Outputs != len(loss) {
		return StepResult{}, fmt.Errorf("%w: gradient buffer %dx%d for %d params and %d outputs",
			nn.ErrShapeMismatch, grads.NumParams, grads.Outputs, net.NumParams(), len(loss))
	}

	updates := make([]float64, grads.NumParams)
	for flat := range updates {
		updates[flat] = stepSize * floats.Dot(grads.Row(flat), loss)
		if !isFinite(updates[flat]) {
			p, _ := net.ParamAt(flat)
			return StepResult{Prediction: prediction, Loss: loss}, fmt.Errorf("%w: update %v for parameter %s", ErrNonFinite, updates[flat], p)
		}
	}
	flat := 0
	for p := range net.All() {
		if err := net.AddToParam(p, updates[flat]); err != nil {
			return StepResult{}, err
		}
		flat++
	}
	return StepResult{Prediction: prediction, Loss: loss}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
