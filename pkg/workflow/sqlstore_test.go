package workflow_test

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/aegis-health/core/pkg/workflow"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLCheckpointStoreSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewSQLCheckpointStore(openTestDB(t))
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	cp1 := workflow.Checkpoint{ExecutionID: "exec-1", StepNo: 1, NodeID: "start", StateHash: "h1"}
	cp2 := workflow.Checkpoint{ExecutionID: "exec-1", StepNo: 2, NodeID: "classify", StateHash: "h2"}

	if err := store.Save(ctx, cp1); err != nil {
		t.Fatalf("save cp1: %v", err)
	}
	if err := store.Save(ctx, cp2); err != nil {
		t.Fatalf("save cp2: %v", err)
	}

	latest, err := store.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.StepNo != 2 || latest.NodeID != "classify" {
		t.Fatalf("expected step 2 latest, got %+v", latest)
	}
}

func TestSQLCheckpointStoreLatestUnknownExecutionIsNil(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewSQLCheckpointStore(openTestDB(t))
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	latest, err := store.Latest(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil for unknown execution, got %+v", latest)
	}
}

func TestSQLCheckpointStoreSaveOverwritesSameStep(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewSQLCheckpointStore(openTestDB(t))
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if err := store.Save(ctx, workflow.Checkpoint{ExecutionID: "exec-1", StepNo: 1, NodeID: "start", StateHash: "h1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, workflow.Checkpoint{ExecutionID: "exec-1", StepNo: 1, NodeID: "retry", StateHash: "h1-retry"}); err != nil {
		t.Fatalf("re-save same step: %v", err)
	}

	cp, err := store.ByStep(ctx, "exec-1", 1)
	if err != nil {
		t.Fatalf("by step: %v", err)
	}
	if cp == nil || cp.NodeID != "retry" || cp.StateHash != "h1-retry" {
		t.Fatalf("expected overwritten checkpoint, got %+v", cp)
	}
}
