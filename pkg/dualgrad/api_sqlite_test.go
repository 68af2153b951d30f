//go:build sqlite

package dualgrad

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"testing"
)

func TestClientSQLiteRecordsCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, err := New(Options{
		StoreKind: "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "dualgrad.db"),
		Logger:    log.New(&cancelAfterWrites{n: 1, cancel: cancel}, "", 0),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := runCancelledMidway(t, client, ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "cancelled" || runs[0].Steps != 10 {
		t.Fatalf("expected cancelled run to be stored, got: %+v", runs)
	}
}
