package nn

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"dualgrad/internal/dual"
	"dualgrad/internal/model"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

// ParamIndex addresses one trainable weight.
type ParamIndex struct {
	Layer int `json:"layer"`
	Param int `json:"param"`
}

func (p ParamIndex) String() string {
	return fmt.Sprintf("%d:%d", p.Layer, p.Param)
}

// Network is an ordered composition of layers. Forward passes never mutate
// it; only AddToParam does.
type Network struct {
	layers     []Layer
	offsets    []int
	numParams  int
	inputSize  int
	outputSize int
}

// NewNetwork checks that adjacent layer widths agree. The input width is
// fixed by the first linear layer; a network of activations only accepts any
// width.
func NewNetwork(layers ...Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, errors.New("network requires at least one layer")
	}
	n := &Network{
		layers:     append([]Layer(nil), layers...),
		offsets:    make([]int, len(layers)),
		inputSize:  -1,
		outputSize: -1,
	}
	width := -1
	for i, layer := range layers {
		if layer == nil {
			return nil, fmt.Errorf("layer %d is nil", i)
		}
		n.offsets[i] = n.numParams
		n.numParams += layer.NumParams()

		linear, ok := layer.(*Linear)
		if !ok {
			continue
		}
		if width == -1 {
			n.inputSize = linear.InSize()
		} else if width != linear.InSize() {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer produces %d", ErrShapeMismatch, i, linear.InSize(), width)
		}
		width = linear.OutSize()
	}
	n.outputSize = width
	return n, nil
}

// FromSpec builds a network from its serialized description.
func FromSpec(spec model.NetworkSpec) (*Network, error) {
	if spec.SchemaVersion != 0 && spec.SchemaVersion != SupportedSchemaVersion {
		return nil, fmt.Errorf("unsupported network schema version %d", spec.SchemaVersion)
	}
	layers := make([]Layer, 0, len(spec.Layers))
	for i, ls := range spec.Layers {
		layer, err := BuildLayer(ls)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, layer)
	}
	return NewNetwork(layers...)
}

func (n *Network) Spec() model.NetworkSpec {
	spec := model.NetworkSpec{
		VersionedRecord: model.VersionedRecord{SchemaVersion: SupportedSchemaVersion, CodecVersion: SupportedCodecVersion},
		Layers:          make([]model.LayerSpec, len(n.layers)),
	}
	for i, layer := range n.layers {
		spec.Layers[i] = layer.Spec()
	}
	return spec
}

func (n *Network) NumLayers() int { return len(n.layers) }
func (n *Network) NumParams() int { return n.numParams }

// InputSize returns the expected input width, or -1 when any width is accepted.
func (n *Network) InputSize() int { return n.inputSize }

// OutputSize returns the width produced for an input of width in.
func (n *Network) OutputSize(in int) int {
	if n.outputSize < 0 {
		return in
	}
	return n.outputSize
}

func (n *Network) Layer(i int) Layer { return n.layers[i] }

// Architecture renders the layer stack, e.g. "linear(2x1) > sigmoid".
func (n *Network) Architecture() string {
	parts := make([]string, len(n.layers))
	for i, layer := range n.layers {
		switch l := layer.(type) {
		case *Linear:
			parts[i] = fmt.Sprintf("linear(%dx%d)", l.InSize(), l.OutSize())
		case *Activation:
			parts[i] = l.Name()
		}
	}
	return strings.Join(parts, " > ")
}

// Forward lifts inputs to constants and runs them through every layer. When
// active is non-nil only that layer sees the active parameter, so the dual
// parts of the result are the partial derivatives of each output with respect
// to that single weight.
func (n *Network) Forward(inputs []float64, active *ParamIndex) ([]dual.Number, error) {
	if err := n.checkInputs(inputs); err != nil {
		return nil, err
	}
	if active != nil {
		if _, err := n.FlatIndex(*active); err != nil {
			return nil, err
		}
	}

	values := dual.LiftAll(inputs)
	for i, layer := range n.layers {
		selected := NoActive
		if active != nil && active.Layer == i {
			selected = active.Param
		}
		var err error
		values, err = layer.Forward(values, selected)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Kind(), err)
		}
	}
	return values, nil
}

func (n *Network) checkInputs(inputs []float64) error {
	if n.inputSize >= 0 && len(inputs) != n.inputSize {
		return fmt.Errorf("%w: network expects %d inputs, got %d", ErrShapeMismatch, n.inputSize, len(inputs))
	}
	return nil
}

// Predict returns the value parts of a plain forward pass.
func (n *Network) Predict(inputs []float64) ([]float64, error) {
	out, err := n.Forward(inputs, nil)
	if err != nil {
		return nil, err
	}
	return dual.Reals(out), nil
}

// FlatIndex returns the position of p in the gradient layout.
func (n *Network) FlatIndex(p ParamIndex) (int, error) {
	if p.Layer < 0 || p.Layer >= len(n.layers) {
		return 0, fmt.Errorf("%w: layer %d of %d", ErrParamOutOfRange, p.Layer, len(n.layers))
	}
	if p.Param < 0 || p.Param >= n.layers[p.Layer].NumParams() {
		return 0, fmt.Errorf("%w: parameter %s, layer has %d", ErrParamOutOfRange, p, n.layers[p.Layer].NumParams())
	}
	return n.offsets[p.Layer] + p.Param, nil
}

// ParamAt is the inverse of FlatIndex.
func (n *Network) ParamAt(flat int) (ParamIndex, error) {
	if flat < 0 || flat >= n.numParams {
		return ParamIndex{}, fmt.Errorf("%w: flat index %d of %d", ErrParamOutOfRange, flat, n.numParams)
	}
	for i := len(n.offsets) - 1; i >= 0; i-- {
		if flat >= n.offsets[i] && n.layers[i].NumParams() > 0 {
			return ParamIndex{Layer: i, Param: flat - n.offsets[i]}, nil
		}
	}
	return ParamIndex{}, fmt.Errorf("%w: flat index %d", ErrParamOutOfRange, flat)
}

// All yields every ParamIndex in increasing flat-index order.
func (n *Network) All() iter.Seq[ParamIndex] {
	return func(yield func(ParamIndex) bool) {
		for i, layer := range n.layers {
			for k := 0; k < layer.NumParams(); k++ {
				if !yield(ParamIndex{Layer: i, Param: k}) {
					return
				}
			}
		}
	}
}

// ParamIndices collects All into a slice.
func (n *Network) ParamIndices() []ParamIndex {
	out := make([]ParamIndex, 0, n.numParams)
	for p := range n.All() {
		out = append(out, p)
	}
	return out
}

func (n *Network) AddToParam(p ParamIndex, delta float64) error {
	if _, err := n.FlatIndex(p); err != nil {
		return err
	}
	return n.layers[p.Layer].AddToParam(p.Param, delta)
}

func (n *Network) Param(p ParamIndex) (float64, error) {
	if _, err := n.FlatIndex(p); err != nil {
		return 0, err
	}
	return n.layers[p.Layer].Param(p.Param)
}

// Params returns every weight in flat-index order.
func (n *Network) Params() []float64 {
	out := make([]float64, 0, n.numParams)
	for p := range n.All() {
		w, _ := n.layers[p.Layer].Param(p.Param)
		out = append(out, w)
	}
	return out
}
