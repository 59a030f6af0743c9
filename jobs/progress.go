package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressKeyPrefix namespaces batch progress keys in Redis. Maintenance
// cleanup scans this prefix, so changing it requires a matching cleanup
// payload.
const ProgressKeyPrefix = "progress"

// progressTTL bounds how long progress survives after the last update.
const progressTTL = 24 * time.Hour

// ErrProgressNotFound is returned when no progress exists for a task ID.
var ErrProgressNotFound = errors.New("jobs: progress not found")

// Progress captures how far a batch task has advanced.
type Progress struct {
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore persists batch progress in Redis keyed by task ID.
type ProgressStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client, now: time.Now}
}

func progressKey(taskID string) string {
	return fmt.Sprintf("%s:%s", ProgressKeyPrefix, taskID)
}

// Record overwrites the progress entry for taskID and refreshes its TTL.
func (s *ProgressStore) Record(ctx context.Context, taskID string, p Progress) error {
	p.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, progressKey(taskID), raw, progressTTL).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// Get returns the recorded progress for taskID.
func (s *ProgressStore) Get(ctx context.Context, taskID string) (Progress, error) {
	raw, err := s.client.Get(ctx, progressKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, ErrProgressNotFound
	}
	if err != nil {
		return Progress{}, fmt.Errorf("load progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}
