package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
)

// Processing modes. An unrecognized mode passes the data through untouched.
const (
	ModeTransform = "transform"
	ModeValidate  = "validate"
	ModeEnrich    = "enrich"
	ModeAggregate = "aggregate"
)

const (
	defaultBatchSize  = 100
	parallelWorkers   = 4
	fetchTimeout      = 30 * time.Second
	fetchMaxBodyBytes = 10 << 20
)

// Batch progress statuses.
const (
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// ProcessingJob handles the processing queue task types.
type ProcessingJob struct {
	Enqueuer Enqueuer
	Progress *ProgressStore
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
	// HTTPClient is used by fetch tasks. Defaults to a client with a
	// fetchTimeout deadline.
	HTTPClient *http.Client
}

// HandleRun processes a single payload and writes the outcome to the task
// result so callers can poll it through the inspector.
func (j *ProcessingJob) HandleRun(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskProcessingRun)
	var p ProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}

	result, err := processItem(p.Data, p.Mode, p.Options)
	if err != nil {
		j.Logger.Error("processing failed", slog.String("mode", p.Mode), slog.Any("error", err))
		return track.End(err)
	}
	writeResult(t, map[string]any{"status": "completed", "mode": effectiveMode(p.Mode), "result": result})
	j.Logger.Info("processing completed", slog.String("mode", effectiveMode(p.Mode)))
	return track.End(nil)
}

// HandleBatch chunks the items, processes each chunk and records progress in
// Redis keyed by the task ID. Parallel mode bounds in-flight workers instead
// of spawning one goroutine per item.
func (j *ProcessingJob) HandleBatch(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskProcessingBatch)
	var p BatchProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	taskID, _ := asynq.GetTaskID(ctx)
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	total := len(p.Items)
	processed, failed := 0, 0
	j.recordProgress(ctx, taskID, Progress{Status: ProgressRunning, Total: total})

	for start := 0; start < total; start += batchSize {
		end := min(start+batchSize, total)
		chunk := p.Items[start:end]

		var ok, bad int
		if p.Parallel {
			ok, bad = j.processChunkParallel(ctx, chunk, p.Mode)
		} else {
			ok, bad = j.processChunk(ctx, chunk, p.Mode)
		}
		processed += ok
		failed += bad

		pct := float64(processed+failed) / float64(total) * 100
		j.recordProgress(ctx, taskID, Progress{
			Status:    ProgressRunning,
			Progress:  pct,
			Processed: processed,
			Failed:    failed,
			Total:     total,
		})
		if err := ctx.Err(); err != nil {
			j.recordProgress(ctx, taskID, Progress{
				Status: ProgressFailed, Progress: pct, Processed: processed, Failed: failed, Total: total,
			})
			return track.End(err)
		}
	}

	status := ProgressCompleted
	if total > 0 && processed == 0 {
		status = ProgressFailed
	}
	j.recordProgress(ctx, taskID, Progress{
		Status: status, Progress: 100, Processed: processed, Failed: failed, Total: total,
	})
	writeResult(t, map[string]any{
		"status": status, "processed": processed, "failed": failed, "total": total,
	})
	j.Logger.Info("batch processing finished",
		slog.String("task_id", taskID),
		slog.Int("processed", processed),
		slog.Int("failed", failed),
		slog.Int("total", total))

	if status == ProgressFailed {
		return track.End(fmt.Errorf("batch processing: all %d items failed", total))
	}
	return track.End(nil)
}

func (j *ProcessingJob) processChunk(ctx context.Context, chunk []map[string]any, mode string) (ok, failed int) {
	for _, item := range chunk {
		if ctx.Err() != nil {
			return ok, failed
		}
		if _, err := processItem(item, mode, nil); err != nil {
			failed++
			j.Logger.Warn("item processing failed", slog.String("mode", mode), slog.Any("error", err))
			continue
		}
		ok++
	}
	return ok, failed
}

func (j *ProcessingJob) processChunkParallel(ctx context.Context, chunk []map[string]any, mode string) (ok, failed int) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelWorkers)
	for _, item := range chunk {
		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := processItem(item, mode, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				j.Logger.Warn("item processing failed", slog.String("mode", mode), slog.Any("error", err))
				return nil
			}
			ok++
			return nil
		})
	}
	_ = g.Wait()
	return ok, failed
}

// HandleFetch downloads a URL and enqueues the body as a processing run.
func (j *ProcessingJob) HandleFetch(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskProcessingFetch)
	var p FetchProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if p.URL == "" {
		return track.End(fmt.Errorf("missing url: %w", asynq.SkipRetry))
	}

	data, err := j.fetch(ctx, p)
	if err != nil {
		j.Logger.Error("fetch failed", slog.String("url", p.URL), slog.Any("error", err))
		return track.End(err)
	}

	task, err := NewProcessTask(ProcessPayload{Data: data, Mode: p.Mode})
	if err != nil {
		return track.End(err)
	}
	info, err := j.Enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		return track.End(fmt.Errorf("enqueue processing run: %w", err))
	}
	writeResult(t, map[string]any{"status": "queued", "next_task_id": info.ID})
	j.Logger.Info("fetched payload queued for processing",
		slog.String("url", p.URL), slog.String("next_task_id", info.ID))
	return track.End(nil)
}

func (j *ProcessingJob) fetch(ctx context.Context, p FetchProcessPayload) (map[string]any, error) {
	client := j.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w: %w", err, asynq.SkipRetry)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", p.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var data map[string]any
		if err := json.Unmarshal(body, &data); err == nil {
			return data, nil
		}
	}
	return map[string]any{"content": string(body)}, nil
}

// processItem applies one processing mode to a single item.
func processItem(data map[string]any, mode string, options map[string]any) (map[string]any, error) {
	switch mode {
	case ModeTransform:
		return transformItem(data), nil
	case ModeValidate:
		return validateItem(data)
	case ModeEnrich:
		return enrichItem(data, options), nil
	case ModeAggregate:
		return aggregateItem(data), nil
	default:
		return data, nil
	}
}

func effectiveMode(mode string) string {
	switch mode {
	case ModeTransform, ModeValidate, ModeEnrich, ModeAggregate:
		return mode
	default:
		return "passthrough"
	}
}

// transformItem upper-cases string values and keeps everything else as-is.
func transformItem(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = strings.ToUpper(s)
			continue
		}
		out[k] = v
	}
	return out
}

// validateItem rejects items with empty keys or nil values.
func validateItem(data map[string]any) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("validate: empty item")
	}
	for k, v := range data {
		if k == "" {
			return nil, fmt.Errorf("validate: empty field name")
		}
		if v == nil {
			return nil, fmt.Errorf("validate: field %q is null", k)
		}
	}
	return map[string]any{"valid": true, "fields": len(data)}, nil
}

// enrichItem copies the item and annotates it with processing metadata.
func enrichItem(data map[string]any, options map[string]any) map[string]any {
	out := make(map[string]any, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	out["enriched_at"] = time.Now().UTC().Format(time.RFC3339)
	if source, ok := options["source"]; ok {
		out["source"] = source
	}
	return out
}

// aggregateItem sums numeric fields and counts the rest.
func aggregateItem(data map[string]any) map[string]any {
	var sum float64
	numeric := 0
	for _, v := range data {
		switch n := v.(type) {
		case float64:
			sum += n
			numeric++
		case int:
			sum += float64(n)
			numeric++
		}
	}
	return map[string]any{"sum": sum, "numeric_fields": numeric, "total_fields": len(data)}
}

func writeResult(t *asynq.Task, v any) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(raw)
}

func (j *ProcessingJob) recordProgress(ctx context.Context, taskID string, p Progress) {
	if j.Progress == nil || taskID == "" {
		return
	}
	if err := j.Progress.Record(ctx, taskID, p); err != nil {
		j.Logger.Warn("progress update failed", slog.String("task_id", taskID), slog.Any("error", err))
	}
}
