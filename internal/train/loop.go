package train

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	"dualgrad/internal/nn"
	"dualgrad/internal/task"
)

// Config captures the knobs of a training run.
type Config struct {
	Steps    int
	StepSize float64
	Seed     int64
	// LogEvery controls how often progress is logged; <= 0 uses 50.
	LogEvery int
	// Workers > 1 computes gradients on that many goroutines; otherwise the
	// sweep is serial.
	Workers int
	// Logger receives progress lines. Nil disables logging.
	Logger *log.Logger
}

// History records the per-step training loss and the task-wide mean squared
// error before and after training. When Run stops early FinalLoss scores the
// weights left in place, or is NaN if they cannot be scored.
type History struct {
	Losses      []float64
	InitialLoss float64
	FinalLoss   float64
}

// Run draws Steps samples from t and applies one Step per sample. It stops
// early, returning the partial history with the error, when ctx is done or a
// step produces a non-finite loss or update. The failing step leaves the
// weights untouched.
func Run(ctx context.Context, net *nn.Network, t task.Task, cfg Config) (History, error) {
	if cfg.Steps <= 0 {
		return History{}, errors.New("train: steps must be > 0")
	}
	if cfg.StepSize <= 0 || math.IsNaN(cfg.StepSize) || math.IsInf(cfg.StepSize, 0) {
		return History{}, fmt.Errorf("train: %w: %v", ErrInvalidStepSize, cfg.StepSize)
	}
	if net.InputSize() >= 0 && net.InputSize() != t.InputSize() {
		return History{}, fmt.Errorf("train: %w: network takes %d inputs, task %s provides %d",
			nn.ErrShapeMismatch, net.InputSize(), t.Name(), t.InputSize())
	}
	if got := net.OutputSize(t.InputSize()); got != t.OutputSize() {
		return History{}, fmt.Errorf("train: %w: network produces %d outputs, task %s expects %d",
			nn.ErrShapeMismatch, got, t.Name(), t.OutputSize())
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}

	gradients := Serial
	if cfg.Workers > 1 {
		gradients = Parallel(ctx, cfg.Workers)
	}

	initial, err := Evaluate(ctx, net, t)
	if err != nil {
		return History{}, err
	}
	history := History{
		Losses:      make([]float64, 0, cfg.Steps),
		InitialLoss: initial.MSE,
	}

	stop := func(err error) (History, error) {
		history.FinalLoss = math.NaN()
		if final, evalErr := Evaluate(context.WithoutCancel(ctx), net, t); evalErr == nil {
			history.FinalLoss = final.MSE
		}
		return history, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var window lossWindow
	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}
		sample := t.Sample(rng)
		result, err := StepWith(net, sample.In, sample.Want, cfg.StepSize, gradients)
		if err != nil {
			return stop(fmt.Errorf("train: step %d: %w", step, err))
		}
		loss := result.TotalLoss()
		history.Losses = append(history.Losses, loss)
		window.record(loss)

		if cfg.Logger != nil && step%cfg.LogEvery == 0 {
			cfg.Logger.Printf("step=%d task=%s loss=%.6f avg_loss=%.6f", step, t.Name(), loss, window.snapshot())
		}
	}

	final, err := Evaluate(ctx, net, t)
	if err != nil {
		return stop(err)
	}
	history.FinalLoss = final.MSE
	return history, nil
}

// Evaluate scores net on every case of t.
func Evaluate(ctx context.Context, net *nn.Network, t task.Task) (task.Report, error) {
	return task.Evaluate(ctx, t, func(_ context.Context, in []float64) ([]float64, error) {
		return net.Predict(in)
	})
}

// lossWindow averages losses between snapshots.
type lossWindow struct {
	sum   float64
	count int
}

func (w *lossWindow) record(loss float64) {
	w.sum += loss
	w.count++
}

// snapshot returns the mean loss since the previous snapshot and resets.
func (w *lossWindow) snapshot() float64 {
	if w.count == 0 {
		return 0
	}
	avg := w.sum / float64(w.count)
	w.sum = 0
	w.count = 0
	return avg
}
