// Package tasks holds the asynchronous job types: course structure sync and webhook publishing.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/topi314/tint"

	"github.com/ccxcon/ccxcon/internal/queue"
)

const Name = "github.com/ccxcon/ccxcon/internal/tasks"

const (
	TypeSync    = "courses.sync"
	TypePublish = "webhooks.publish"
)

// MaxSyncRetries is how often a sync is retried before it is given up.
const MaxSyncRetries = 5

// Backoff returns the delay before retry n (zero based): 2, 5, 10, 17 and 26 minutes.
func Backoff(retries int) time.Duration {
	return time.Duration((retries+1)*(retries+1)*60+60) * time.Second
}

type SyncPayload struct {
	CourseID   string `json:"course_id"`
	Generation int64  `json:"generation"`
}

type PublishPayload struct {
	EntityType  string `json:"entity_type"`
	LookupField string `json:"lookup_field"`
	LookupValue string `json:"lookup_value"`
}

func NewEnqueuer(q queue.Queue) *Enqueuer {
	return &Enqueuer{queue: q}
}

// Enqueuer turns write path events into jobs.
type Enqueuer struct {
	queue queue.Queue
}

// Notify schedules a webhook publish for the entity. Failures are logged and not returned.
func (e *Enqueuer) Notify(ctx context.Context, entityType string, key uuid.UUID) {
	if err := e.Publish(ctx, entityType, "uuid", key.String()); err != nil {
		slog.ErrorContext(ctx, "failed to schedule webhook publish", slog.String("entity_type", entityType), slog.String("uuid", key.String()), tint.Err(err))
	}
}

func (e *Enqueuer) Publish(ctx context.Context, entityType string, field string, value string) error {
	job, err := queue.NewJob(TypePublish, PublishPayload{
		EntityType:  entityType,
		LookupField: field,
		LookupValue: value,
	})
	if err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, job, 0)
}

// ScheduleSync enqueues a structure sync for the course at the given sync generation.
func (e *Enqueuer) ScheduleSync(ctx context.Context, courseID string, generation int64) error {
	job, err := queue.NewJob(TypeSync, SyncPayload{
		CourseID:   courseID,
		Generation: generation,
	})
	if err != nil {
		return err
	}
	if err = e.queue.Enqueue(ctx, job, 0); err != nil {
		return fmt.Errorf("failed to schedule sync for %s: %w", courseID, err)
	}
	return nil
}

// Handlers returns the job handlers for a worker pool.
func Handlers(sync *SyncTask, publish *PublishTask) map[string]queue.Handler {
	return map[string]queue.Handler{
		TypeSync:    sync.Handle,
		TypePublish: publish.Handle,
	}
}
