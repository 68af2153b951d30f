package train

import (
	"context"
	"errors"
	"math"
	"testing"

	"dualgrad/internal/dual"
	"dualgrad/internal/nn"
)

func exampleNetwork(t *testing.T) *nn.Network {
	t.Helper()
	linear, err := nn.NewLinear(2, 1, []float64{0.5, 0.2})
	if err != nil {
		t.Fatalf("new linear: %v", err)
	}
	net, err := nn.NewNetwork(linear, nn.NewSigmoid())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func TestStepAppliesScaledLossUpdate(t *testing.T) {
	net := exampleNetwork(t)

	result, err := Step(net, []float64{0, 1}, []float64{1}, 10)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	s := 1 / (1 + math.Exp(-0.2))
	loss := (s - 1) * (s - 1)
	if math.Abs(result.Prediction[0].Real-s) > 1e-12 {
		t.Fatalf("unexpected prediction: got=%f want=%f", result.Prediction[0].Real, s)
	}
	if math.Abs(result.Loss[0]-loss) > 1e-12 || math.Abs(result.TotalLoss()-loss) > 1e-12 {
		t.Fatalf("unexpected loss: got=%v want=%f", result.Loss, loss)
	}

	params := net.Params()
	if params[0] != 0.5 {
		t.Fatalf("weight on a zero input moved: %f", params[0])
	}
	want := 0.2 + 10*s*(1-s)*loss
	if math.Abs(params[1]-want) > 1e-12 {
		t.Fatalf("unexpected updated weight: got=%f want=%f", params[1], want)
	}
}

func TestStepRejectsContractViolationsWithoutUpdating(t *testing.T) {
	cases := []struct {
		name     string
		input    []float64
		target   []float64
		stepSize float64
		want     error
	}{
		{name: "target width", input: []float64{1, 1}, target: []float64{1, 0}, stepSize: 1, want: nn.ErrShapeMismatch},
		{name: "input width", input: []float64{1}, target: []float64{1}, stepSize: 1, want: nn.ErrShapeMismatch},
		{name: "zero step", input: []float64{1, 1}, target: []float64{1}, stepSize: 0, want: ErrInvalidStepSize},
		{name: "nan step", input: []float64{1, 1}, target: []float64{1}, stepSize: math.NaN(), want: ErrInvalidStepSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net := exampleNetwork(t)
			if _, err := Step(net, tc.input, tc.target, tc.stepSize); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got: %v", tc.want, err)
			}
			if p := net.Params(); p[0] != 0.5 || p[1] != 0.2 {
				t.Fatalf("weights changed on failed step: %v", p)
			}
		})
	}
}

func TestStepGradientFailureLeavesWeights(t *testing.T) {
	net := exampleNetwork(t)
	failing := func(*nn.Network, []float64) (nn.Gradients, error) {
		return nn.Gradients{}, errors.New("boom")
	}
	if _, err := StepWith(net, []float64{1, 1}, []float64{1}, 1, failing); err == nil {
		t.Fatal("expected gradient error")
	}
	if p := net.Params(); p[0] != 0.5 || p[1] != 0.2 {
		t.Fatalf("weights changed on failed step: %v", p)
	}
}

func TestStepRejectsNonFiniteValues(t *testing.T) {
	cases := []struct {
		name    string
		weights []float64
		input   []float64
	}{
		{name: "nan loss", weights: []float64{math.Inf(1), 0.2}, input: []float64{0, 1}},
		{name: "nan update", weights: []float64{math.Inf(1), 0.2}, input: []float64{1, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			linear, err := nn.NewLinear(2, 1, tc.weights)
			if err != nil {
				t.Fatalf("linear: %v", err)
			}
			net, err := nn.NewNetwork(linear, nn.NewSigmoid())
			if err != nil {
				t.Fatalf("network: %v", err)
			}
			if _, err := Step(net, tc.input, []float64{1}, 1); !errors.Is(err, ErrNonFinite) {
				t.Fatalf("expected ErrNonFinite, got: %v", err)
			}
			if p := net.Params(); !math.IsInf(p[0], 1) || p[1] != 0.2 {
				t.Fatalf("weights changed on non-finite step: %v", p)
			}
		})
	}
}

func TestStepReducesLossOnFixedPair(t *testing.T) {
	net := exampleNetwork(t)
	input, target := []float64{1, 1}, []float64{1}

	before, err := net.Forward(input, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	initial, _ := SquaredError(before, target)

	for i := 0; i < 300; i++ {
		if _, err := Step(net, input, target, 10); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	after, err := net.Forward(input, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	final, _ := SquaredError(after, target)
	if final[0] >= initial[0] {
		t.Fatalf("loss did not decrease: before=%f after=%f", initial[0], final[0])
	}
}

func TestParallelStepMatchesSerial(t *testing.T) {
	serialNet := exampleNetwork(t)
	parallelNet := exampleNetwork(t)
	gradients := Parallel(context.Background(), 4)
	for i := 0; i < 20; i++ {
		in := []float64{float64(i % 2), 1}
		if _, err := Step(serialNet, in, []float64{1}, 2); err != nil {
			t.Fatalf("serial step: %v", err)
		}
		if _, err := StepWith(parallelNet, in, []float64{1}, 2, gradients); err != nil {
			t.Fatalf("parallel step: %v", err)
		}
	}
	a, b := serialNet.Params(), parallelNet.Params()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("param %d differs: serial=%f parallel=%f", i, a[i], b[i])
		}
	}
}

func TestSquaredError(t *testing.T) {
	got, err := SquaredError([]dual.Number{{Real: 0.5, Dual: 3}, {Real: -1}}, []float64{1, 1})
	if err != nil {
		t.Fatalf("squared error: %v", err)
	}
	if got[0] != 0.25 || got[1] != 4 {
		t.Fatalf("unexpected loss: %v", got)
	}
	if _, err := SquaredError(nil, []float64{1}); !errors.Is(err, nn.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got: %v", err)
	}
}
