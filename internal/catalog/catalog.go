// Package catalog is the write path for courses and modules. Every write notifies
// webhook subscribers and course writes schedule a structure sync.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/topi314/tint"

	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/internal/webhook"
	"github.com/ccxcon/ccxcon/server/database"
)

const (
	EntityCourse   = "courses.Course"
	EntityModule   = "courses.Module"
	EntityAuthor   = "courses.EdxAuthor"
	EntityInstance = "oauth_mgmt.BackingInstance"
)

var (
	ErrUnknownInstance = errors.New("unknown edx instance")
	ErrCourseNotFound  = errors.New("course not found")
	ErrModuleNotFound  = errors.New("module not found")
	ErrForeignModule   = errors.New("module does not belong to course")
)

// Notifier is told about every changed entity.
type Notifier interface {
	Notify(ctx context.Context, entityType string, key uuid.UUID)
}

type SyncScheduler interface {
	ScheduleSync(ctx context.Context, courseID string, generation int64) error
}

type Upstream interface {
	CreateCCX(ctx context.Context, instance *database.BackingInstance, ccx edx.CCXRequest) error
}

// Registry returns the entity registry used to resolve webhook dispatches.
func Registry(db *database.DB) *webhook.Registry {
	registry := webhook.NewRegistry()
	registry.Register(EntityCourse, webhook.Lookup(db.FindCourses))
	registry.Register(EntityModule, webhook.Lookup(db.FindModules))
	registry.Register(EntityAuthor, webhook.Lookup(db.FindAuthors))
	registry.Register(EntityInstance, webhook.Lookup(db.FindInstances))
	return registry
}

func New(db *database.DB, notifier Notifier, scheduler SyncScheduler, upstream Upstream) *Service {
	return &Service{
		db:        db,
		notifier:  notifier,
		scheduler: scheduler,
		upstream:  upstream,
	}
}

type Service struct {
	db        *database.DB
	notifier  Notifier
	scheduler SyncScheduler
	upstream  Upstream
}

type CourseInput struct {
	CourseID    string
	Title       string
	AuthorName  string
	Overview    string
	Description string
	ImageURL    string
	InstanceURL string
	Instructors []string
	Live        bool
}

// SaveCourse creates the course or updates the one with the same course_id.
func (s *Service) SaveCourse(ctx context.Context, input CourseInput) (*database.Course, bool, error) {
	instance, err := s.db.GetInstanceByURL(ctx, input.InstanceURL)
	if database.IsNotFound(err) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownInstance, input.InstanceURL)
	}
	if err != nil {
		return nil, false, err
	}

	course, created, err := s.db.UpsertCourse(ctx, database.Course{
		CourseID:      input.CourseID,
		Title:         input.Title,
		AuthorName:    input.AuthorName,
		Overview:      input.Overview,
		Description:   input.Description,
		ImageURL:      input.ImageURL,
		EdxInstanceID: instance.ID,
		Live:          input.Live,
		Instructors:   input.Instructors,
	})
	if err != nil {
		return nil, false, err
	}

	s.courseChanged(ctx, course)
	return course, created, nil
}

func (s *Service) UpdateCourse(ctx context.Context, courseUUID uuid.UUID, update database.CourseUpdate) (*database.Course, error) {
	course, err := s.db.UpdateCourse(ctx, courseUUID, update)
	if database.IsNotFound(err) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	s.courseChanged(ctx, course)
	return course, nil
}

func (s *Service) DeleteCourse(ctx context.Context, courseUUID uuid.UUID) error {
	modules, err := s.db.DeleteCourse(ctx, courseUUID)
	if database.IsNotFound(err) {
		return ErrCourseNotFound
	}
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, EntityCourse, courseUUID)
	for _, module := range modules {
		s.notifier.Notify(ctx, EntityModule, module.UUID)
	}
	return nil
}

// Resync schedules a fresh structure sync for an existing course.
func (s *Service) Resync(ctx context.Context, courseID string) (*database.Course, error) {
	course, err := s.db.GetCourseByCourseID(ctx, courseID)
	if database.IsNotFound(err) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	if course.SyncGeneration, err = s.db.NextSyncGeneration(ctx, course.UUID); err != nil {
		return nil, err
	}
	if err = s.scheduler.ScheduleSync(ctx, course.CourseID, course.SyncGeneration); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *Service) courseChanged(ctx context.Context, course *database.Course) {
	s.notifier.Notify(ctx, EntityCourse, course.UUID)
	if err := s.scheduler.ScheduleSync(ctx, course.CourseID, course.SyncGeneration); err != nil {
		slog.ErrorContext(ctx, "failed to schedule course sync", slog.String("course_id", course.CourseID), tint.Err(err))
	}
}

func (s *Service) GetCourse(ctx context.Context, courseUUID uuid.UUID) (*database.Course, error) {
	course, err := s.db.GetCourse(ctx, courseUUID)
	if database.IsNotFound(err) {
		return nil, ErrCourseNotFound
	}
	return course, err
}

func (s *Service) ListCourses(ctx context.Context) ([]database.Course, error) {
	return s.db.ListCourses(ctx)
}

func (s *Service) AuthorExists(ctx context.Context, uid string) (bool, error) {
	return s.db.AuthorExists(ctx, uid)
}
