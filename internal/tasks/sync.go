package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/topi314/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/internal/queue"
	"github.com/ccxcon/ccxcon/internal/reconcile"
	"github.com/ccxcon/ccxcon/server/database"
)

type CourseFinder interface {
	GetCourseByCourseID(ctx context.Context, courseID string) (*database.Course, error)
	GetInstance(ctx context.Context, id uuid.UUID) (*database.BackingInstance, error)
}

type Upstream interface {
	AccessToken(ctx context.Context, instance *database.BackingInstance) (string, error)
	FetchBlocks(ctx context.Context, instance *database.BackingInstance, courseID string, accessToken string) (*edx.BlocksResponse, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, course database.Course, tree edx.BlockTree) (reconcile.Result, error)
}

func NewSyncTask(courses CourseFinder, upstream Upstream, reconciler Reconciler) *SyncTask {
	outcomes, err := otel.Meter(Name).Int64Counter("ccxcon.sync", metric.WithDescription("course syncs by outcome"))
	if err != nil {
		slog.Error("failed to create sync counter", tint.Err(err))
	}
	return &SyncTask{
		courses:    courses,
		upstream:   upstream,
		reconciler: reconciler,
		tracer:     otel.Tracer(Name),
		outcomes:   outcomes,
	}
}

// SyncTask fetches the block tree of a course and reconciles its modules.
type SyncTask struct {
	courses    CourseFinder
	upstream   Upstream
	reconciler Reconciler
	tracer     trace.Tracer
	outcomes   metric.Int64Counter
}

func (t *SyncTask) Handle(ctx context.Context, job queue.Job) error {
	var payload SyncPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	return t.Sync(ctx, payload.CourseID, payload.Generation, job.Attempt)
}

// Sync runs one attempt. A missing course is a no-op, a sync scheduled for an older
// generation than the course's current one is skipped. Upstream transport failures and
// non-2xx answers return a *queue.RetryError with the backoff for attempt.
func (t *SyncTask) Sync(ctx context.Context, courseID string, generation int64, attempt int) (err error) {
	ctx, span := t.tracer.Start(ctx, "tasks.Sync", trace.WithAttributes(
		attribute.String("course_id", courseID),
		attribute.Int64("generation", generation),
		attribute.Int("attempt", attempt),
	))
	outcome := "success"
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, "sync failed")
			span.RecordError(err)
		}
		span.End()
		if t.outcomes != nil {
			t.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()
	logger := slog.Default().With(slog.String("course_id", courseID), slog.Int64("generation", generation))

	course, err := t.courses.GetCourseByCourseID(ctx, courseID)
	if database.IsNotFound(err) {
		outcome = "missing"
		logger.DebugContext(ctx, "course no longer exists, nothing to sync")
		return nil
	}
	if err != nil {
		outcome = "failed"
		return fmt.Errorf("failed to load course: %w", err)
	}
	if generation > 0 && course.SyncGeneration > generation {
		outcome = "superseded"
		logger.DebugContext(ctx, "sync superseded by a newer one", slog.Int64("current_generation", course.SyncGeneration))
		return nil
	}

	instance, err := t.courses.GetInstance(ctx, course.EdxInstanceID)
	if err != nil {
		outcome = "failed"
		return fmt.Errorf("failed to load backing instance: %w", err)
	}

	token, err := t.upstream.AccessToken(ctx, instance)
	if err != nil {
		outcome = "failed"
		return err
	}

	rs, err := t.upstream.FetchBlocks(ctx, instance, course.CourseID, token)
	if err != nil {
		if errors.Is(err, edx.ErrUnreachable) {
			outcome = "retry"
			return queue.Retry(Backoff(attempt), err)
		}
		outcome = "failed"
		return err
	}
	if !rs.OK() {
		outcome = "retry"
		return queue.Retry(Backoff(attempt), &edx.StatusError{StatusCode: rs.StatusCode})
	}

	result, err := t.reconciler.Reconcile(ctx, *course, *rs.Tree)
	if err != nil {
		outcome = "failed"
		return fmt.Errorf("failed to reconcile modules: %w", err)
	}
	logger.InfoContext(ctx, "synced course modules", slog.Any("modules", result))
	return nil
}
