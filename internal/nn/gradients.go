package nn

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/mat"
)

// Gradients holds ∂output/∂parameter for every parameter and output, one row
// of Outputs values per flat parameter index.
type Gradients struct {
	NumParams int
	Outputs   int
	Values    []float64
}

func newGradients(numParams, outputs int) Gradients {
	return Gradients{
		NumParams: numParams,
		Outputs:   outputs,
		Values:    make([]float64, numParams*outputs),
	}
}

// At returns ∂output/∂param for a flat parameter index.
func (g Gradients) At(param, output int) float64 {
	return g.Values[param*g.Outputs+output]
}

// Row returns the derivatives of every output with respect to one parameter.
// The slice aliases Values.
func (g Gradients) Row(param int) []float64 {
	return g.Values[param*g.Outputs : (param+1)*g.Outputs]
}

// Matrix returns a NumParams×Outputs view sharing Values, or nil when either
// dimension is zero.
func (g Gradients) Matrix() *mat.Dense {
	if g.NumParams == 0 || g.Outputs == 0 {
		return nil
	}
	return mat.NewDense(g.NumParams, g.Outputs, g.Values)
}

// ComputeGradients runs one forward pass per parameter with that parameter
// active and stores the dual parts of the outputs in flat-index order.
func (n *Network) ComputeGradients(inputs []float64) (Gradients, error) {
	if err := n.checkInputs(inputs); err != nil {
		return Gradients{}, err
	}
	grads := newGradients(n.numParams, n.OutputSize(len(inputs)))
	flat := 0
	for p := range n.All() {
		if err := n.gradientRow(inputs, p, grads.Row(flat)); err != nil {
			return Gradients{}, err
		}
		flat++
	}
	return grads, nil
}

// ComputeGradientsParallel produces the same buffer as ComputeGradients,
// spreading the per-parameter passes over at most workers goroutines. workers
// <= 0 selects DefaultWorkers.
func (n *Network) ComputeGradientsParallel(ctx context.Context, inputs []float64, workers int) (Gradients, error) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if err := n.checkInputs(inputs); err != nil {
		return Gradients{}, err
	}

	grads := newGradients(n.numParams, n.OutputSize(len(inputs)))
	indices := n.ParamIndices()

	var (
		once     sync.Once
		firstErr error
	)
	forEach(len(indices), workers, func(flat int) {
		if err := ctx.Err(); err != nil {
			once.Do(func() { firstErr = err })
			return
		}
		if err := n.gradientRow(inputs, indices[flat], grads.Row(flat)); err != nil {
			once.Do(func() { firstErr = err })
		}
	})
	if firstErr != nil {
		return Gradients{}, firstErr
	}
	return grads, nil
}

func (n *Network) gradientRow(inputs []float64, p ParamIndex, row []float64) error {
	out, err := n.Forward(inputs, &p)
	if err != nil {
		return fmt.Errorf("gradient %s: %w", p, err)
	}
	if len(out) != len(row) {
		return fmt.Errorf("%w: gradient %s has %d outputs, want %d", ErrShapeMismatch, p, len(out), len(row))
	}
	for j, v := range out {
		row[j] = v.Dual
	}
	return nil
}

// DefaultWorkers returns the number of physical cores, falling back to the
// logical CPU count when detection fails.
func DefaultWorkers() int {
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return cores
	}
	return runtime.NumCPU()
}

// forEach calls body for 0..length-1 with at most limit calls in flight.
func forEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)
	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			body(i)
		}(i)
	}
	wg.Wait()
}
