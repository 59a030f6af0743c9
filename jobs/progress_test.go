package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	store := NewProgressStore(testRedis(t))
	ctx := context.Background()

	in := Progress{Status: ProgressRunning, Progress: 42.5, Processed: 85, Failed: 3, Total: 200}
	if err := store.Record(ctx, "task-abc", in); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "task-abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != ProgressRunning || got.Progress != 42.5 || got.Processed != 85 || got.Failed != 3 || got.Total != 200 {
		t.Fatalf("got %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not stamped")
	}
}

func TestProgressStoreMiss(t *testing.T) {
	store := NewProgressStore(testRedis(t))
	_, err := store.Get(context.Background(), "unknown")
	if !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("want ErrProgressNotFound, got %v", err)
	}
}

func TestProgressStoreOverwrites(t *testing.T) {
	store := NewProgressStore(testRedis(t))
	ctx := context.Background()

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	if err := store.Record(ctx, "task-x", Progress{Status: ProgressRunning, Progress: 10}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.now = func() time.Time { return first.Add(time.Minute) }
	if err := store.Record(ctx, "task-x", Progress{Status: ProgressCompleted, Progress: 100}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "task-x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != ProgressCompleted || got.Progress != 100 {
		t.Fatalf("got %+v, want the later write", got)
	}
	if !got.UpdatedAt.Equal(first.Add(time.Minute)) {
		t.Fatalf("UpdatedAt = %v", got.UpdatedAt)
	}
}
