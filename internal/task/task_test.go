package task

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func TestTruthTables(t *testing.T) {
	tests := []struct {
		name string
		want []float64
	}{
		{name: "or", want: []float64{0, 1, 1, 1}},
		{name: "and", want: []float64{0, 0, 0, 1}},
		{name: "xor", want: []float64{0, 1, 1, 0}},
		{name: "nand", want: []float64{1, 1, 1, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task, err := Lookup(tc.name)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			cases := task.Cases()
			if len(cases) != 4 {
				t.Fatalf("unexpected case count: %d", len(cases))
			}
			for i, c := range cases {
				if len(c.In) != task.InputSize() || len(c.Want) != task.OutputSize() {
					t.Fatalf("case %d has wrong shape: %+v", i, c)
				}
				if c.Want[0] != tc.want[i] {
					t.Fatalf("case %d (%v): got=%f want=%f", i, c.In, c.Want[0], tc.want[i])
				}
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("nor"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got: %v", err)
	}
	if _, err := Lookup(" OR "); err != nil {
		t.Fatalf("lookup should normalise names: %v", err)
	}
	if names := Names(); len(names) != 4 || names[0] != "and" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestSampleMatchesTable(t *testing.T) {
	task, _ := Lookup("or")
	rng := rand.New(rand.NewSource(1))
	seen := make(map[[2]float64]bool)
	for i := 0; i < 200; i++ {
		c := task.Sample(rng)
		want := 0.0
		if c.In[0] == 1 || c.In[1] == 1 {
			want = 1
		}
		if c.Want[0] != want {
			t.Fatalf("sample %v: got=%f want=%f", c.In, c.Want[0], want)
		}
		seen[[2]float64{c.In[0], c.In[1]}] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected every input combination to be sampled, got %v", seen)
	}
}

func TestEvaluate(t *testing.T) {
	task, _ := Lookup("xor")
	constant := func(_ context.Context, _ []float64) ([]float64, error) { return []float64{0.5}, nil }
	report, err := Evaluate(context.Background(), task, constant)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Cases != 4 || report.SSE != 1 || report.MSE != 0.25 || len(report.Predictions) != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}

	wide := func(_ context.Context, _ []float64) ([]float64, error) { return []float64{0, 1}, nil }
	if _, err := Evaluate(context.Background(), task, wide); err == nil {
		t.Fatal("expected output width error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Evaluate(ctx, task, constant); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}
