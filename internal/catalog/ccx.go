package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/internal/edx"
)

var ErrUpstreamNotConfigured = errors.New("no upstream configured")

type CCXInput struct {
	MasterCourse  uuid.UUID
	UserEmail     string
	TotalSeats    int
	DisplayName   string
	CourseModules []uuid.UUID
}

// CreateCCX creates a custom course upstream. Module uuids are translated into their
// locator ids and must all belong to the master course.
func (s *Service) CreateCCX(ctx context.Context, input CCXInput) error {
	if s.upstream == nil {
		return ErrUpstreamNotConfigured
	}

	course, err := s.GetCourse(ctx, input.MasterCourse)
	if err != nil {
		return err
	}

	var locators []string
	if len(input.CourseModules) > 0 {
		modules, err := s.db.ListModules(ctx, course.UUID)
		if err != nil {
			return err
		}
		byUUID := make(map[uuid.UUID]string, len(modules))
		for _, module := range modules {
			byUUID[module.UUID] = module.LocatorID
		}
		for _, moduleUUID := range input.CourseModules {
			locator, ok := byUUID[moduleUUID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrForeignModule, moduleUUID)
			}
			locators = append(locators, locator)
		}
	}

	instance, err := s.db.GetInstance(ctx, course.EdxInstanceID)
	if err != nil {
		return fmt.Errorf("failed to load backing instance: %w", err)
	}

	return s.upstream.CreateCCX(ctx, instance, edx.CCXRequest{
		MasterCourseID:     course.CourseID,
		CoachEmail:         input.UserEmail,
		MaxStudentsAllowed: input.TotalSeats,
		DisplayName:        input.DisplayName,
		CourseModules:      locators,
	})
}
