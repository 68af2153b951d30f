package storage

import (
	"context"

	"dualgrad/internal/model"
)

// Store persists training run summaries and their per-step loss history.
// Trained weights are never stored.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveLossHistory(ctx context.Context, runID string, losses []float64) error
	GetLossHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
