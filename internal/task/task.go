// Package task provides the two-input boolean problems used to exercise
// training: each task is a truth table sampled one case at a time.
package task

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

var ErrUnknownTask = errors.New("unknown task")

// Case is one input/target pair.
type Case struct {
	In   []float64 `json:"in"`
	Want []float64 `json:"want"`
}

// Report summarises an evaluation over every case of a task.
type Report struct {
	Task        string    `json:"task"`
	Cases       int       `json:"cases"`
	SSE         float64   `json:"sse"`
	MSE         float64   `json:"mse"`
	Predictions []float64 `json:"predictions"`
}

// PredictFn returns the network output for one input.
type PredictFn func(ctx context.Context, in []float64) ([]float64, error)

type Task interface {
	Name() string
	InputSize() int
	OutputSize() int
	Cases() []Case
	Sample(rng *rand.Rand) Case
}

// TruthTable is a boolean function of two inputs encoded as 0/1.
type TruthTable struct {
	name string
	fn   func(a, b bool) bool
}

var tables = map[string]TruthTable{
	"or":   {name: "or", fn: func(a, b bool) bool { return a || b }},
	"and":  {name: "and", fn: func(a, b bool) bool { return a && b }},
	"xor":  {name: "xor", fn: func(a, b bool) bool { return a != b }},
	"nand": {name: "nand", fn: func(a, b bool) bool { return !(a && b) }},
}

// Lookup returns the task registered under name (case-insensitive).
func Lookup(name string) (Task, error) {
	t, ok := tables[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t, nil
}

func Names() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t TruthTable) Name() string    { return t.name }
func (t TruthTable) InputSize() int  { return 2 }
func (t TruthTable) OutputSize() int { return 1 }

func (t TruthTable) Cases() []Case {
	cases := make([]Case, 0, 4)
	for _, in := range [][2]bool{{false, false}, {false, true}, {true, false}, {true, true}} {
		cases = append(cases, t.caseFor(in[0], in[1]))
	}
	return cases
}

// Sample draws each input bit uniformly.
func (t TruthTable) Sample(rng *rand.Rand) Case {
	return t.caseFor(rng.Intn(2) == 1, rng.Intn(2) == 1)
}

func (t TruthTable) caseFor(a, b bool) Case {
	return Case{
		In:   []float64{bit(a), bit(b)},
		Want: []float64{bit(t.fn(a, b))},
	}
}

func bit(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Evaluate runs predict over every case of t and accumulates squared error.
func Evaluate(ctx context.Context, t Task, predict PredictFn) (Report, error) {
	cases := t.Cases()
	report := Report{Task: t.Name(), Cases: len(cases), Predictions: make([]float64, 0, len(cases))}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		out, err := predict(ctx, c.In)
		if err != nil {
			return Report{}, err
		}
		if len(out) != len(c.Want) {
			return Report{}, fmt.Errorf("%s requires %d outputs, got %d", t.Name(), len(c.Want), len(out))
		}
		for j, want := range c.Want {
			delta := out[j] - want
			report.SSE += delta * delta
		}
		report.Predictions = append(report.Predictions, out[0])
	}
	if len(cases) > 0 {
		report.MSE = report.SSE / float64(len(cases))
	}
	return report, nil
}
