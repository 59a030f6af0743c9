package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestProcessItemTransform(t *testing.T) {
	out, err := processItem(map[string]any{"name": "widget", "qty": 3}, ModeTransform, nil)
	if err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if out["name"] != "WIDGET" {
		t.Fatalf("name = %v, want WIDGET", out["name"])
	}
	if out["qty"] != 3 {
		t.Fatalf("qty = %v, want untouched", out["qty"])
	}
}

func TestProcessItemValidate(t *testing.T) {
	if _, err := processItem(map[string]any{"id": 1}, ModeValidate, nil); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}
	if _, err := processItem(map[string]any{"id": nil}, ModeValidate, nil); err == nil {
		t.Fatal("null field accepted")
	}
	if _, err := processItem(map[string]any{}, ModeValidate, nil); err == nil {
		t.Fatal("empty item accepted")
	}
}

func TestProcessItemEnrich(t *testing.T) {
	out, err := processItem(map[string]any{"id": 7}, ModeEnrich, map[string]any{"source": "import"})
	if err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if out["source"] != "import" {
		t.Fatalf("source = %v", out["source"])
	}
	if _, ok := out["enriched_at"]; !ok {
		t.Fatal("enriched_at missing")
	}
	if out["id"] != 7 {
		t.Fatalf("id = %v, original fields must survive", out["id"])
	}
}

func TestProcessItemAggregate(t *testing.T) {
	out, err := processItem(map[string]any{"a": float64(2), "b": float64(3), "c": "x"}, ModeAggregate, nil)
	if err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if out["sum"] != float64(5) {
		t.Fatalf("sum = %v, want 5", out["sum"])
	}
	if out["numeric_fields"] != 2 || out["total_fields"] != 3 {
		t.Fatalf("field counts = %v/%v", out["numeric_fields"], out["total_fields"])
	}
}

func TestProcessItemUnknownModePassesThrough(t *testing.T) {
	in := map[string]any{"raw": true}
	out, err := processItem(in, "bogus", nil)
	if err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if out["raw"] != true {
		t.Fatalf("out = %v, want passthrough", out)
	}
}

func TestProcessingJobHandleRun(t *testing.T) {
	job := &ProcessingJob{Metrics: testMetrics(t), Logger: testLogger()}
	task := mustTask(NewProcessTask(ProcessPayload{
		Data: map[string]any{"name": "gadget"},
		Mode: ModeTransform,
	}))
	if err := job.HandleRun(context.Background(), task); err != nil {
		t.Fatalf("HandleRun: %v", err)
	}
}

func TestProcessingJobHandleRunBadPayload(t *testing.T) {
	job := &ProcessingJob{Metrics: testMetrics(t), Logger: testLogger()}
	task := asynq.NewTask(TaskProcessingRun, []byte("{not json"))
	err := job.HandleRun(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("want SkipRetry, got %v", err)
	}
}

func TestProcessingJobHandleBatchSequential(t *testing.T) {
	job := &ProcessingJob{
		Progress: NewProgressStore(testRedis(t)),
		Metrics:  testMetrics(t),
		Logger:   testLogger(),
	}
	items := make([]map[string]any, 10)
	for i := range items {
		items[i] = map[string]any{"n": i}
	}
	task := mustTask(NewBatchProcessTask(BatchProcessPayload{Items: items, Mode: ModeValidate, BatchSize: 3}))
	if err := job.HandleBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
}

func TestProcessingJobHandleBatchParallel(t *testing.T) {
	job := &ProcessingJob{
		Progress: NewProgressStore(testRedis(t)),
		Metrics:  testMetrics(t),
		Logger:   testLogger(),
	}
	items := make([]map[string]any, 25)
	for i := range items {
		items[i] = map[string]any{"n": i}
	}
	task := mustTask(NewBatchProcessTask(BatchProcessPayload{
		Items: items, Mode: ModeTransform, BatchSize: 10, Parallel: true,
	}))
	if err := job.HandleBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
}

func TestProcessingJobHandleBatchAllFailed(t *testing.T) {
	job := &ProcessingJob{
		Progress: NewProgressStore(testRedis(t)),
		Metrics:  testMetrics(t),
		Logger:   testLogger(),
	}
	items := []map[string]any{{"bad": nil}, {"worse": nil}}
	task := mustTask(NewBatchProcessTask(BatchProcessPayload{Items: items, Mode: ModeValidate}))
	if err := job.HandleBatch(context.Background(), task); err == nil {
		t.Fatal("want error when every item fails validation")
	}
}

func TestProcessChunkCountsFailures(t *testing.T) {
	job := &ProcessingJob{Metrics: testMetrics(t), Logger: testLogger()}
	chunk := []map[string]any{{"ok": 1}, {"bad": nil}, {"ok": 2}}

	ok, failed := job.processChunk(context.Background(), chunk, ModeValidate)
	if ok != 2 || failed != 1 {
		t.Fatalf("processChunk = %d ok, %d failed; want 2/1", ok, failed)
	}

	ok, failed = job.processChunkParallel(context.Background(), chunk, ModeValidate)
	if ok != 2 || failed != 1 {
		t.Fatalf("processChunkParallel = %d ok, %d failed; want 2/1", ok, failed)
	}
}

func TestProcessingJobHandleFetchEnqueuesRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("missing header, got %q", r.Header.Get("X-Token"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"remote"}`))
	}))
	defer srv.Close()

	enq := &fakeEnqueuer{}
	job := &ProcessingJob{Enqueuer: enq, Metrics: testMetrics(t), Logger: testLogger(), HTTPClient: srv.Client()}

	task := mustTask(NewFetchProcessTask(FetchProcessPayload{
		URL:     srv.URL,
		Mode:    ModeTransform,
		Headers: map[string]string{"X-Token": "secret"},
	}))
	if err := job.HandleFetch(context.Background(), task); err != nil {
		t.Fatalf("HandleFetch: %v", err)
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("enqueued %d tasks, want 1", len(enq.tasks))
	}
	var p ProcessPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &p); err != nil {
		t.Fatalf("decode queued payload: %v", err)
	}
	if p.Data["name"] != "remote" || p.Mode != ModeTransform {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestProcessingJobHandleFetchNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	enq := &fakeEnqueuer{}
	job := &ProcessingJob{Enqueuer: enq, Metrics: testMetrics(t), Logger: testLogger(), HTTPClient: srv.Client()}

	task := mustTask(NewFetchProcessTask(FetchProcessPayload{URL: srv.URL}))
	if err := job.HandleFetch(context.Background(), task); err != nil {
		t.Fatalf("HandleFetch: %v", err)
	}
	var p ProcessPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &p); err != nil {
		t.Fatalf("decode queued payload: %v", err)
	}
	if p.Data["content"] != "plain text body" {
		t.Fatalf("content = %v", p.Data["content"])
	}
}

func TestProcessingJobHandleFetchUpstreamFailureRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	job := &ProcessingJob{Enqueuer: &fakeEnqueuer{}, Metrics: testMetrics(t), Logger: testLogger(), HTTPClient: srv.Client()}
	task := mustTask(NewFetchProcessTask(FetchProcessPayload{URL: srv.URL}))
	err := job.HandleFetch(context.Background(), task)
	if err == nil {
		t.Fatal("want error on 502")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("upstream failures must stay retryable, got %v", err)
	}
}
