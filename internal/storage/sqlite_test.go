//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreRunAndLossHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "dualgrad.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	early := newRun("run-early", base)
	late := newRun("run-late", base.Add(1500*time.Millisecond))
	finalLoss := 0.05
	late.FinalLoss = &finalLoss
	if err := store.SaveRun(ctx, early); err != nil {
		t.Fatalf("save early run: %v", err)
	}
	if err := store.SaveRun(ctx, late); err != nil {
		t.Fatalf("save late run: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, late.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatalf("expected run %s", late.ID)
	}
	if loaded.FinalLoss == nil || *loaded.FinalLoss != 0.05 || !loaded.CreatedAt.Equal(late.CreatedAt) {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != late.ID {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	if err := store.SaveLossHistory(ctx, late.ID, []float64{0.4, 0.2}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	losses, ok, err := store.GetLossHistory(ctx, late.ID)
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if len(losses) != 2 || losses[1] != 0.2 {
		t.Fatalf("unexpected losses: %+v", losses)
	}
	if _, ok, err := store.GetLossHistory(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing history: ok=%t err=%v", ok, err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if runs, err := store.ListRuns(ctx); err != nil || len(runs) != 0 {
		t.Fatalf("expected empty store after reset: runs=%d err=%v", len(runs), err)
	}
}

func TestSQLiteStoreReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "dualgrad.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveRun(ctx, newRun("run-1", time.Now())); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	loaded, ok, err := second.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("expected persisted run: ok=%t err=%v", ok, err)
	}
	if loaded.InitialLoss != nil || loaded.FinalLoss != nil {
		t.Fatalf("unrecorded losses should stay nil: initial=%v final=%v", loaded.InitialLoss, loaded.FinalLoss)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
	if _, _, err := store.GetRun(context.Background(), "x"); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}
