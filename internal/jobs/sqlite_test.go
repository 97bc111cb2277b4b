package jobs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-vod/internal/jobs"
)

func openSQLiteForTest(t *testing.T) *jobs.SQLiteStore {
	t.Helper()
	store, err := jobs.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	exerciseStore(t, openSQLiteForTest(t))
}

func TestSQLiteStoreEmptyList(t *testing.T) {
	store := openSQLiteForTest(t)
	records, err := store.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", records)
	}
}

func TestSQLiteStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	store, err := jobs.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.CreateJob(ctx, sampleRecord("job-1", "clip")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := jobs.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got == nil || got.Name() != "clip" {
		t.Fatalf("expected clip record after reopen, got %+v", got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	store, err := jobs.Open(ctx, jobs.Options{Backend: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "jobs.db")})
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*jobs.SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}

	if _, err := jobs.Open(ctx, jobs.Options{Backend: "dynamodb", Table: "vod-jobs"}); err == nil {
		t.Fatal("expected error without a dynamodb client")
	}
	if _, err := jobs.Open(ctx, jobs.Options{Backend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
