package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
)

const (
	defaultCleanupMaxAgeHours = 24
	defaultCleanupBatchSize   = 500
	defaultArchiveDays        = 90
	defaultArchiveBatchSize   = 1000
)

// identPattern restricts archive table names to plain SQL identifiers, since
// table names cannot be bound as query parameters.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// MaintenanceJob handles the maintenance queue task types.
type MaintenanceJob struct {
	Redis   *redis.Client
	DB      *pgxpool.Pool
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
	now     func() time.Time
}

func NewMaintenanceJob(rdb *redis.Client, db *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) *MaintenanceJob {
	return &MaintenanceJob{Redis: rdb, DB: db, Metrics: metrics, Logger: logger, now: time.Now}
}

// HandleCleanup scans Redis for aged progress keys and deletes them. Keys are
// written with a fixed TTL, so remaining TTL tells us how old an entry is.
func (j *MaintenanceJob) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMaintenanceCleanup)
	var p CleanupPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = ProgressKeyPrefix
	}
	maxAge := time.Duration(p.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = defaultCleanupMaxAgeHours * time.Hour
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}

	scanned, deleted := 0, 0
	var cursor uint64
	for {
		keys, next, err := j.Redis.Scan(ctx, cursor, prefix+":*", int64(batchSize)).Result()
		if err != nil {
			return track.End(fmt.Errorf("scan %s: %w", prefix, err))
		}
		for _, key := range keys {
			scanned++
			stale, err := j.isStale(ctx, key, maxAge)
			if err != nil {
				j.Logger.Warn("cleanup ttl lookup failed", slog.String("key", key), slog.Any("error", err))
				continue
			}
			if !stale {
				continue
			}
			if err := j.Redis.Del(ctx, key).Err(); err != nil {
				j.Logger.Warn("cleanup delete failed", slog.String("key", key), slog.Any("error", err))
				continue
			}
			deleted++
		}
		cursor = next
		if cursor == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return track.End(err)
		}
	}

	writeResult(t, map[string]any{"scanned": scanned, "deleted": deleted, "prefix": prefix})
	j.Logger.Info("cleanup finished",
		slog.String("prefix", prefix),
		slog.Int("scanned", scanned),
		slog.Int("deleted", deleted))
	return track.End(nil)
}

// isStale reports whether a key has been alive longer than maxAge. Keys with
// no TTL are treated as stale leftovers and reaped.
func (j *MaintenanceJob) isStale(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	ttl, err := j.Redis.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if ttl == -2 { // already gone
		return false, nil
	}
	if ttl < 0 { // no expiry set
		return true, nil
	}
	return progressTTL-ttl > maxAge, nil
}

// HandleArchive moves aged rows into the table's _archive twin in batches,
// deleting and inserting inside one statement so a crash cannot lose rows.
func (j *MaintenanceJob) HandleArchive(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMaintenanceArchive)
	var p ArchivePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if !identPattern.MatchString(p.Table) {
		return track.End(fmt.Errorf("invalid table name %q: %w", p.Table, asynq.SkipRetry))
	}
	days := p.ArchiveDays
	if days <= 0 {
		days = defaultArchiveDays
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	cutoff := j.now().UTC().AddDate(0, 0, -days)

	query := fmt.Sprintf(`
		WITH moved AS (
			DELETE FROM %[1]s
			WHERE id IN (
				SELECT id FROM %[1]s WHERE created_at < $1 ORDER BY created_at LIMIT $2
			)
			RETURNING *
		)
		INSERT INTO %[1]s_archive SELECT * FROM moved`, p.Table)

	archived := 0
	for {
		tag, err := j.DB.Exec(ctx, query, cutoff, batchSize)
		if err != nil {
			return track.End(fmt.Errorf("archive %s: %w", p.Table, err))
		}
		moved := int(tag.RowsAffected())
		archived += moved
		if moved < batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return track.End(err)
		}
	}

	writeResult(t, map[string]any{"table": p.Table, "archived": archived, "cutoff": cutoff.Format(time.RFC3339)})
	j.Logger.Info("archive finished",
		slog.String("table", p.Table),
		slog.Int("archived", archived),
		slog.Time("cutoff", cutoff))
	return track.End(nil)
}
