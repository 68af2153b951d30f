package nn

import (
	"errors"
	"fmt"
	"strings"

	"dualgrad/internal/dual"
	"dualgrad/internal/model"
)

// NoActive marks a forward pass in which no weight is tracked.
const NoActive = -1

const (
	KindLinear     = "linear"
	KindActivation = "activation"
	KindSigmoid    = "sigmoid"
)

var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrParamOutOfRange  = errors.New("parameter index out of range")
	ErrUnknownLayerKind = errors.New("unknown layer kind")
)

// Layer is one stage of a Network. The set of implementations is closed:
// *Linear and *Activation.
type Layer interface {
	Kind() string
	NumParams() int
	// Forward maps input to output. active selects the one weight whose dual
	// part is seeded with 1, or NoActive.
	Forward(input []dual.Number, active int) ([]dual.Number, error)
	// AddToParam adds delta to parameter k in place.
	AddToParam(k int, delta float64) error
	Param(k int) (float64, error)
	Spec() model.LayerSpec

	sealed()
}

// Linear is an affine map without bias. Weights are stored row-major: output
// c reads weights[c*InSize : (c+1)*InSize].
type Linear struct {
	inSize  int
	outSize int
	weights []float64
}

// NewLinear copies weights into a new layer. len(weights) must equal
// inSize*outSize.
func NewLinear(inSize, outSize int, weights []float64) (*Linear, error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("%w: linear sizes must be > 0, got in=%d out=%d", ErrShapeMismatch, inSize, outSize)
	}
	if len(weights) != inSize*outSize {
		return nil, fmt.Errorf("%w: linear %dx%d needs %d weights, got %d", ErrShapeMismatch, inSize, outSize, inSize*outSize, len(weights))
	}
	return &Linear{
		inSize:  inSize,
		outSize: outSize,
		weights: append([]float64(nil), weights...),
	}, nil
}

func (l *Linear) Kind() string   { return KindLinear }
func (l *Linear) InSize() int    { return l.inSize }
func (l *Linear) OutSize() int   { return l.outSize }
func (l *Linear) NumParams() int { return len(l.weights) }
func (l *Linear) sealed()        {}

// Weights returns a copy of the weight vector.
func (l *Linear) Weights() []float64 {
	return append([]float64(nil), l.weights...)
}

func (l *Linear) Forward(input []dual.Number, active int) ([]dual.Number, error) {
	if len(input) != l.inSize {
		return nil, fmt.Errorf("%w: linear expects %d inputs, got %d", ErrShapeMismatch, l.inSize, len(input))
	}
	if active != NoActive && (active < 0 || active >= len(l.weights)) {
		return nil, fmt.Errorf("%w: active parameter %d of %d", ErrParamOutOfRange, active, len(l.weights))
	}

	output := make([]dual.Number, l.outSize)
	for c := range output {
		offset := c * l.inSize
		var acc dual.Number
		for i, v := range input {
			acc = dual.Add(acc, dual.Mul(v, l.weightAsDual(offset+i, active)))
		}
		output[c] = acc
	}
	return output, nil
}

func (l *Linear) weightAsDual(k, active int) dual.Number {
	if k == active {
		return dual.Variable(l.weights[k])
	}
	return dual.Lift(l.weights[k])
}

func (l *Linear) AddToParam(k int, delta float64) error {
	if k < 0 || k >= len(l.weights) {
		return fmt.Errorf("%w: parameter %d of %d", ErrParamOutOfRange, k, len(l.weights))
	}
	l.weights[k] += delta
	return nil
}

func (l *Linear) Param(k int) (float64, error) {
	if k < 0 || k >= len(l.weights) {
		return 0, fmt.Errorf("%w: parameter %d of %d", ErrParamOutOfRange, k, len(l.weights))
	}
	return l.weights[k], nil
}

func (l *Linear) Spec() model.LayerSpec {
	return model.LayerSpec{
		Kind:    KindLinear,
		InSize:  l.inSize,
		OutSize: l.outSize,
		Weights: l.Weights(),
	}
}

// Activation applies a registered function to every element. It owns no
// parameters.
type Activation struct {
	name string
	fn   ActivationFunc
}

func NewActivation(name string) (*Activation, error) {
	fn, err := GetActivation(name)
	if err != nil {
		return nil, err
	}
	return &Activation{name: name, fn: fn}, nil
}

// NewSigmoid returns the logistic activation layer.
func NewSigmoid() *Activation {
	return &Activation{name: "sigmoid", fn: dual.Sigmoid}
}

func (a *Activation) Kind() string   { return KindActivation }
func (a *Activation) Name() string   { return a.name }
func (a *Activation) NumParams() int { return 0 }
func (a *Activation) sealed()        {}

// Forward ignores active: there is nothing to select.
func (a *Activation) Forward(input []dual.Number, _ int) ([]dual.Number, error) {
	output := make([]dual.Number, len(input))
	for i, v := range input {
		output[i] = a.fn(v)
	}
	return output, nil
}

func (a *Activation) AddToParam(k int, _ float64) error {
	return fmt.Errorf("%w: %s activation has no parameters, got %d", ErrParamOutOfRange, a.name, k)
}

func (a *Activation) Param(k int) (float64, error) {
	return 0, fmt.Errorf("%w: %s activation has no parameters, got %d", ErrParamOutOfRange, a.name, k)
}

func (a *Activation) Spec() model.LayerSpec {
	return model.LayerSpec{Kind: KindActivation, Activation: a.name}
}

// BuildLayer constructs a layer from its spec. "sigmoid" is accepted as a
// shorthand for an activation layer.
func BuildLayer(spec model.LayerSpec) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindLinear:
		return NewLinear(spec.InSize, spec.OutSize, spec.Weights)
	case KindActivation:
		return NewActivation(spec.Activation)
	case KindSigmoid:
		return NewSigmoid(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayerKind, spec.Kind)
	}
}
