package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"dualgrad/internal/dual"
	"dualgrad/internal/nn"
	"dualgrad/internal/stats"
	"dualgrad/internal/storage"
	"dualgrad/internal/task"
	"dualgrad/pkg/dualgrad"
)

const defaultDBPath = "dualgrad.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "forward":
		return runForward(ctx, args[1:])
	case "grad":
		return runGrad(ctx, args[1:])
	case "derive":
		return runDerive(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "losses":
		return runLosses(ctx, args[1:])
	case "tasks":
		return runTasks(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func storeFlags(fs *flag.FlagSet) (storeKind, dbPath *string) {
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", defaultDBPath, "sqlite database path")
	return storeKind, dbPath
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := dualgrad.New(dualgrad.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := dualgrad.New(dualgrad.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	taskName := fs.String("task", "or", "training task: or|and|xor|nand")
	networkPath := fs.String("network", "", "network spec JSON path (default: linear(2x1) > sigmoid)")
	steps := fs.Int("steps", 300, "training steps")
	stepSize := fs.Float64("step-size", 10, "SGD step size")
	seed := fs.Int64("seed", 1, "rng seed")
	logEvery := fs.Int("log-every", 50, "log progress every N steps")
	workers := fs.Int("workers", 1, "gradient workers (>1 enables the parallel sweep)")
	quiet := fs.Bool("quiet", false, "disable progress logging")
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if (*configPath == "" || setFlags["steps"]) && *steps <= 0 {
		return errors.New("steps must be > 0")
	}

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		spec, err := loadNetworkSpec(*networkPath)
		if err != nil {
			return err
		}
		req = dualgrad.RunRequest{
			RunID:    *runID,
			Task:     *taskName,
			Network:  spec,
			Steps:    *steps,
			StepSize: *stepSize,
			Seed:     *seed,
			LogEvery: *logEvery,
			Workers:  *workers,
		}
	} else {
		err := overrideFromFlags(&req, setFlags, map[string]any{
			"run-id":    *runID,
			"task":      *taskName,
			"network":   *networkPath,
			"steps":     *steps,
			"step-size": *stepSize,
			"seed":      *seed,
			"log-every": *logEvery,
			"workers":   *workers,
		})
		if err != nil {
			return err
		}
	}

	var logger *log.Logger
	if !*quiet {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	client, err := dualgrad.New(dualgrad.Options{StoreKind: *storeKind, DBPath: *dbPath, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run completed run_id=%s task=%s architecture=%q steps=%d seed=%d\n",
		summary.RunID, summary.Task, summary.Architecture, summary.Steps, req.Seed)
	fmt.Printf("initial_mse=%.6f final_mse=%.6f\n", summary.InitialLoss, summary.FinalLoss)
	for i, p := range summary.Predictions {
		fmt.Printf("case=%d prediction=%.6f\n", i, p)
	}
	fmt.Printf("params=%v\n", summary.Params)
	return nil
}

func runForward(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("forward", flag.ContinueOnError)
	networkPath := fs.String("network", "", "network spec JSON path (default: linear(2x1) > sigmoid)")
	inputsFlag := fs.String("inputs", "1,0", "comma separated inputs")
	activeFlag := fs.String("active", "", "active parameter as layer:param (optional)")
	jsonOut := fs.Bool("json", false, "emit outputs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec, err := loadNetworkSpec(*networkPath)
	if err != nil {
		return err
	}
	inputs, err := parseInputs(*inputsFlag)
	if err != nil {
		return err
	}
	active, err := parseParamIndex(*activeFlag)
	if err != nil {
		return err
	}
	out, err := dualgrad.Forward(spec, inputs, active)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for j, v := range out {
		fmt.Printf("output=%d value=%.6f derivative=%.6f\n", j, v.Real, v.Dual)
	}
	return nil
}

func runGrad(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("grad", flag.ContinueOnError)
	networkPath := fs.String("network", "", "network spec JSON path (default: linear(2x1) > sigmoid)")
	inputsFlag := fs.String("inputs", "1,0", "comma separated inputs")
	workers := fs.Int("workers", 1, "gradient workers (>1 enables the parallel sweep)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec, err := loadNetworkSpec(*networkPath)
	if err != nil {
		return err
	}
	inputs, err := parseInputs(*inputsFlag)
	if err != nil {
		return err
	}
	grads, err := dualgrad.Gradients(ctx, spec, inputs, *workers)
	if err != nil {
		return err
	}

	fmt.Printf("params=%d outputs=%d\n", grads.NumParams, grads.Outputs)
	if m := grads.Matrix(); m != nil {
		fmt.Printf("%v\n", mat.Formatted(m, mat.Squeeze()))
	}
	return nil
}

// runDerive differentiates f(x1, x2) = 3·x1² + 5·x1·x2 with respect to each
// variable, or a registered activation when --activation is given.
func runDerive(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	x1 := fs.Float64("x1", 2, "first variable")
	x2 := fs.Float64("x2", 3, "second variable")
	activation := fs.String("activation", "", "differentiate a registered activation at --x instead")
	x := fs.Float64("x", 0, "activation input")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *activation != "" {
		value, slope, err := nn.Derivative(*activation, *x)
		if err != nil {
			return err
		}
		fmt.Printf("activation=%s x=%g value=%.6f derivative=%.6f\n", *activation, *x, value, slope)
		return nil
	}

	f := func(a, b dual.Number) dual.Number {
		return dual.Add(dual.Scale(3, dual.Mul(a, a)), dual.Scale(5, dual.Mul(a, b)))
	}
	d1 := f(dual.Variable(*x1), dual.Lift(*x2))
	d2 := f(dual.Lift(*x1), dual.Variable(*x2))
	fmt.Printf("f=%g df/dx1=%g df/dx2=%g\n", d1.Real, d1.Dual, d2.Dual)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := dualgrad.New(dualgrad.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, dualgrad.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID        string   `json:"run_id"`
			CreatedAtUTC string   `json:"created_at_utc"`
			Task         string   `json:"task"`
			Architecture string   `json:"architecture"`
			Steps        int      `json:"steps"`
			StepSize     float64  `json:"step_size"`
			Seed         int64    `json:"seed"`
			InitialLoss  *float64 `json:"initial_mse,omitempty"`
			FinalLoss    *float64 `json:"final_mse,omitempty"`
			Stopped      string   `json:"stopped,omitempty"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:        item.RunID,
				CreatedAtUTC: item.CreatedAtUTC,
				Task:         item.Task,
				Architecture: item.Architecture,
				Steps:        item.Steps,
				StepSize:     item.StepSize,
				Seed:         item.Seed,
				InitialLoss:  knownLoss(item.InitialLoss),
				FinalLoss:    knownLoss(item.FinalLoss),
				Stopped:      item.Stopped,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s task=%s architecture=%q steps=%d step_size=%g seed=%d initial_mse=%.6f final_mse=%.6f",
			item.RunID, item.CreatedAtUTC, item.Task, item.Architecture, item.Steps, item.StepSize, item.Seed, item.InitialLoss, item.FinalLoss)
		if item.Stopped != "" {
			fmt.Printf(" stopped=%q", item.Stopped)
		}
		fmt.Println()
	}
	return nil
}

func runLosses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("losses", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	runIDs := fs.String("run-ids", "", "comma separated run ids to average step by step")
	latest := fs.Bool("latest", false, "show losses for the most recent run")
	limit := fs.Int("limit", 0, "show only the last N losses (<=0 for all)")
	bucket := fs.Int("bucket", 1, "average every N consecutive steps")
	summary := fs.Bool("summary", false, "print count/mean/std/min/max instead of the curve")
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}
	if *runIDs != "" && (*runID != "" || *latest) {
		return errors.New("use either run-ids or run-id/latest")
	}

	client, err := dualgrad.New(dualgrad.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var losses []float64
	if *runIDs != "" {
		var lists [][]float64
		for _, id := range strings.Split(*runIDs, ",") {
			list, err := client.LossHistory(ctx, dualgrad.LossHistoryRequest{RunID: strings.TrimSpace(id)})
			if err != nil {
				return err
			}
			lists = append(lists, list)
		}
		losses = averageLosses(lists, *limit)
	} else {
		losses, err = client.LossHistory(ctx, dualgrad.LossHistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
		if err != nil {
			return err
		}
	}

	if *summary {
		s := stats.Summarize(losses)
		fmt.Printf("count=%d first=%.6f last=%.6f mean=%.6f std=%.6f min=%.6f max=%.6f\n",
			s.Count, s.First, s.Last, s.Mean, s.Std, s.Min, s.Max)
		return nil
	}
	for _, p := range stats.LossCurve(losses, *bucket) {
		fmt.Printf("entry=%d loss=%.6f\n", p.Step, p.Value)
	}
	return nil
}

// averageLosses averages histories step by step from their first step and
// keeps the last limit averages when limit > 0.
func averageLosses(lists [][]float64, limit int) []float64 {
	curve := stats.AverageCurve(lists)
	if limit > 0 && len(curve) > limit {
		curve = curve[len(curve)-limit:]
	}
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Value
	}
	return out
}

func runTasks(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range task.Names() {
		t, err := task.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Printf("task=%s inputs=%d outputs=%d cases=%d\n", t.Name(), t.InputSize(), t.OutputSize(), len(t.Cases()))
	}
	for _, name := range nn.ListActivations() {
		fmt.Printf("activation=%s\n", name)
	}
	return nil
}

func knownLoss(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: dualgradctl <init|reset|run|forward|grad|derive|runs|losses|tasks> [flags]", msg)
}
