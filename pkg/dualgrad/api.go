// Package dualgrad is the public entry point for training small networks
// with forward-mode gradients and inspecting stored training runs.
package dualgrad

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"dualgrad/internal/dual"
	"dualgrad/internal/model"
	"dualgrad/internal/nn"
	"dualgrad/internal/storage"
	"dualgrad/internal/task"
	"dualgrad/internal/train"
)

const (
	defaultDBPath   = "dualgrad.db"
	defaultTask     = "or"
	defaultSteps    = 300
	defaultStepSize = 10.0
	defaultRunLimit = 20
)

type Options struct {
	StoreKind string
	DBPath    string
	// Logger receives training progress. Nil disables it.
	Logger *log.Logger
}

type Client struct {
	store  storage.Store
	logger *log.Logger

	initOnce sync.Once
	initErr  error
}

type RunRequest struct {
	RunID    string
	Task     string
	Network  model.NetworkSpec
	Steps    int
	StepSize float64
	Seed     int64
	LogEvery int
	Workers  int
}

type RunSummary struct {
	RunID        string
	Task         string
	Architecture string
	Steps        int
	InitialLoss  float64
	FinalLoss    float64
	Losses       []float64
	Predictions  []float64
	Params       []float64
}

type RunsRequest struct {
	Limit int
}

// RunItem lists one stored run. A loss that was not recorded is NaN.
type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Task         string
	Architecture string
	Steps        int
	StepSize     float64
	Seed         int64
	InitialLoss  float64
	FinalLoss    float64
	Stopped      string
}

type LossHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

// DefaultNetwork is a single 2→1 linear layer followed by a sigmoid.
func DefaultNetwork() model.NetworkSpec {
	return model.NetworkSpec{
		VersionedRecord: model.VersionedRecord{SchemaVersion: nn.SupportedSchemaVersion, CodecVersion: nn.SupportedCodecVersion},
		Layers: []model.LayerSpec{
			{Kind: nn.KindLinear, InSize: 2, OutSize: 1, Weights: []float64{0.5, 0.2}},
			{Kind: nn.KindActivation, Activation: "sigmoid"},
		},
	}
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: opts.Logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

func (c *Client) Reset(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

// Run trains a network on a task and records the run summary and loss
// history. A run that stops early is still recorded, with the reason in
// Stopped, and its error is returned.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Task == "" {
		req.Task = defaultTask
	}
	if req.Steps <= 0 {
		req.Steps = defaultSteps
	}
	if req.StepSize == 0 {
		req.StepSize = defaultStepSize
	}
	if len(req.Network.Layers) == 0 {
		req.Network = DefaultNetwork()
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	t, err := task.Lookup(req.Task)
	if err != nil {
		return RunSummary{}, err
	}
	net, err := nn.FromSpec(req.Network)
	if err != nil {
		return RunSummary{}, fmt.Errorf("build network: %w", err)
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	history, runErr := train.Run(ctx, net, t, train.Config{
		Steps:    req.Steps,
		StepSize: req.StepSize,
		Seed:     req.Seed,
		LogEvery: req.LogEvery,
		Workers:  req.Workers,
		Logger:   c.logger,
	})

	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion},
		ID:              req.RunID,
		CreatedAt:       time.Now().UTC(),
		Task:            t.Name(),
		Architecture:    net.Architecture(),
		NumParams:       net.NumParams(),
		Steps:           len(history.Losses),
		StepSize:        req.StepSize,
		Seed:            req.Seed,
		InitialLoss:     finiteLoss(history.InitialLoss),
		FinalLoss:       finiteLoss(history.FinalLoss),
	}
	if runErr != nil {
		record.Stopped = runErr.Error()
	}
	// A run rejected before its first step has nothing worth recording. A
	// stopped run is still recorded even when ctx is what stopped it.
	if runErr == nil || len(history.Losses) > 0 {
		if err := c.save(context.WithoutCancel(ctx), record, history.Losses); err != nil {
			return RunSummary{}, errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return RunSummary{}, runErr
	}

	report, err := train.Evaluate(ctx, net, t)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:        req.RunID,
		Task:         t.Name(),
		Architecture: record.Architecture,
		Steps:        record.Steps,
		InitialLoss:  history.InitialLoss,
		FinalLoss:    history.FinalLoss,
		Losses:       history.Losses,
		Predictions:  report.Predictions,
		Params:       net.Params(),
	}, nil
}

func (c *Client) save(ctx context.Context, record model.RunRecord, losses []float64) error {
	if err := c.store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveLossHistory(ctx, record.ID, losses); err != nil {
		return fmt.Errorf("save loss history: %w", err)
	}
	return nil
}

func finiteLoss(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// lossOrNaN reports a missing loss as NaN.
func lossOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunLimit
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAt.UTC().Format(time.RFC3339),
			Task:         r.Task,
			Architecture: r.Architecture,
			Steps:        r.Steps,
			StepSize:     r.StepSize,
			Seed:         r.Seed,
			InitialLoss:  lossOrNaN(r.InitialLoss),
			FinalLoss:    lossOrNaN(r.FinalLoss),
			Stopped:      r.Stopped,
		})
	}
	return out, nil
}

// LossHistory returns a run's per-step losses, trimmed to the last Limit
// entries when Limit > 0.
func (c *Client) LossHistory(ctx context.Context, req LossHistoryRequest) ([]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = runs[0].ID
	}
	if runID == "" {
		return nil, errors.New("loss history requires run id or latest")
	}

	losses, ok, err := c.store.GetLossHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("loss history not found for run %s", runID)
	}
	if req.Limit > 0 && len(losses) > req.Limit {
		losses = losses[len(losses)-req.Limit:]
	}
	return losses, nil
}

// Forward evaluates a network spec on raw inputs, optionally tracking one
// parameter's derivative.
func Forward(spec model.NetworkSpec, inputs []float64, active *nn.ParamIndex) ([]dual.Number, error) {
	net, err := nn.FromSpec(spec)
	if err != nil {
		return nil, err
	}
	return net.Forward(inputs, active)
}

// Gradients computes ∂output/∂parameter for every parameter of a network spec.
func Gradients(ctx context.Context, spec model.NetworkSpec, inputs []float64, workers int) (nn.Gradients, error) {
	net, err := nn.FromSpec(spec)
	if err != nil {
		return nn.Gradients{}, err
	}
	if workers > 1 {
		return net.ComputeGradientsParallel(ctx, inputs, workers)
	}
	return net.ComputeGradients(inputs)
}
