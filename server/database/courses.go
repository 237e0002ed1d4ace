package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const courseSelect = `SELECT c.uuid, c.course_id, c.title, c.author_name, c.overview, c.description, c.image_url, c.edx_instance_id,
c.live, c.deleted, c.sync_generation, c.created_at, c.updated_at, b.instance_url
FROM courses c JOIN backing_instances b ON b.id = c.edx_instance_id`

func (d *DB) GetCourse(ctx context.Context, courseUUID uuid.UUID) (*Course, error) {
	return getCourse(ctx, d, "c.uuid", courseUUID)
}

func (d *DB) GetCourseByCourseID(ctx context.Context, courseID string) (*Course, error) {
	return getCourse(ctx, d, "c.course_id", courseID)
}

func getCourse(ctx context.Context, q sqlx.QueryerContext, column string, value any) (*Course, error) {
	var course Course
	if err := sqlx.GetContext(ctx, q, &course, courseSelect+" WHERE "+column+" = $1", value); err != nil {
		return nil, err
	}
	if err := loadInstructors(ctx, q, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (d *DB) ListCourses(ctx context.Context) ([]Course, error) {
	var courses []Course
	if err := d.SelectContext(ctx, &courses, courseSelect+" ORDER BY c.created_at, c.course_id"); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	var rows []struct {
		CourseUUID uuid.UUID `db:"course_uuid"`
		EdxUID     string    `db:"edx_uid"`
	}
	if err := d.SelectContext(ctx, &rows, "SELECT course_uuid, edx_uid FROM course_instructors ORDER BY edx_uid"); err != nil {
		return nil, fmt.Errorf("failed to list course instructors: %w", err)
	}
	instructors := make(map[uuid.UUID][]string, len(courses))
	for _, row := range rows {
		instructors[row.CourseUUID] = append(instructors[row.CourseUUID], row.EdxUID)
	}
	for i := range courses {
		courses[i].Instructors = instructors[courses[i].UUID]
	}
	return courses, nil
}

// FindCourses looks courses up by uuid or course_id.
func (d *DB) FindCourses(ctx context.Context, field string, value string) ([]Course, error) {
	var column string
	switch field {
	case "uuid":
		column = "c.uuid"
		if _, err := uuid.Parse(value); err != nil {
			return nil, nil
		}
	case "course_id":
		column = "c.course_id"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	var courses []Course
	if err := d.SelectContext(ctx, &courses, courseSelect+" WHERE "+column+" = $1", value); err != nil {
		return nil, fmt.Errorf("failed to find courses: %w", err)
	}
	for i := range courses {
		if err := loadInstructors(ctx, d, &courses[i]); err != nil {
			return nil, err
		}
	}
	return courses, nil
}

// UpsertCourse creates the course or updates the existing one with the same course_id.
// Every write advances the course's sync generation.
func (d *DB) UpsertCourse(ctx context.Context, course Course) (*Course, bool, error) {
	now := d.now()
	newUUID := uuid.New()

	var saved *Course
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := upsertAuthors(ctx, tx, course.Instructors); err != nil {
			return err
		}

		var courseUUID uuid.UUID
		if err := tx.GetContext(ctx, &courseUUID, `INSERT INTO courses (uuid, course_id, title, author_name, overview, description, image_url, edx_instance_id, live, deleted, sync_generation, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
ON CONFLICT (course_id) DO UPDATE SET title = excluded.title, author_name = excluded.author_name, overview = excluded.overview,
description = excluded.description, image_url = excluded.image_url, edx_instance_id = excluded.edx_instance_id, live = excluded.live,
deleted = excluded.deleted, sync_generation = courses.sync_generation + 1, updated_at = excluded.updated_at
RETURNING uuid`,
			newUUID,
			course.CourseID,
			course.Title,
			course.AuthorName,
			course.Overview,
			course.Description,
			course.ImageURL,
			course.EdxInstanceID,
			course.Live,
			course.Deleted,
			now,
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert course: %w", err)
		}

		if err := replaceInstructors(ctx, tx, courseUUID, course.Instructors); err != nil {
			return err
		}

		var err error
		saved, err = getCourse(ctx, tx, "c.uuid", courseUUID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return saved, saved.UUID == newUUID, nil
}

func (d *DB) UpdateCourse(ctx context.Context, courseUUID uuid.UUID, update CourseUpdate) (*Course, error) {
	var saved *Course
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		course, err := getCourse(ctx, tx, "c.uuid", courseUUID)
		if err != nil {
			return err
		}
		applyCourseUpdate(course, update)

		if _, err = tx.ExecContext(ctx, `UPDATE courses SET title = $1, author_name = $2, overview = $3, description = $4, image_url = $5,
live = $6, deleted = $7, sync_generation = sync_generation + 1, updated_at = $8 WHERE uuid = $9`,
			course.Title,
			course.AuthorName,
			course.Overview,
			course.Description,
			course.ImageURL,
			course.Live,
			course.Deleted,
			d.now(),
			courseUUID,
		); err != nil {
			return fmt.Errorf("failed to update course: %w", err)
		}

		if update.Instructors != nil {
			if err = upsertAuthors(ctx, tx, *update.Instructors); err != nil {
				return err
			}
			if err = replaceInstructors(ctx, tx, courseUUID, *update.Instructors); err != nil {
				return err
			}
		}

		saved, err = getCourse(ctx, tx, "c.uuid", courseUUID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func applyCourseUpdate(course *Course, update CourseUpdate) {
	if update.Title != nil {
		course.Title = *update.Title
	}
	if update.AuthorName != nil {
		course.AuthorName = *update.AuthorName
	}
	if update.Overview != nil {
		course.Overview = *update.Overview
	}
	if update.Description != nil {
		course.Description = *update.Description
	}
	if update.ImageURL != nil {
		course.ImageURL = *update.ImageURL
	}
	if update.Live != nil {
		course.Live = *update.Live
	}
	if update.Deleted != nil {
		course.Deleted = *update.Deleted
	}
}

// NextSyncGeneration advances the sync generation of a course and returns the new value.
func (d *DB) NextSyncGeneration(ctx context.Context, courseUUID uuid.UUID) (int64, error) {
	var generation int64
	if err := d.GetContext(ctx, &generation, "UPDATE courses SET sync_generation = sync_generation + 1 WHERE uuid = $1 RETURNING sync_generation", courseUUID); err != nil {
		return 0, err
	}
	return generation, nil
}

// DeleteCourse removes the course with all of its modules and returns the removed modules.
func (d *DB) DeleteCourse(ctx context.Context, courseUUID uuid.UUID) ([]Module, error) {
	var modules []Module
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &modules, "SELECT "+moduleColumns+" FROM modules WHERE course_uuid = $1 ORDER BY order_index", courseUUID); err != nil {
			return fmt.Errorf("failed to list course modules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM course_instructors WHERE course_uuid = $1", courseUUID); err != nil {
			return fmt.Errorf("failed to delete course instructors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM modules WHERE course_uuid = $1", courseUUID); err != nil {
			return fmt.Errorf("failed to delete course modules: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM courses WHERE uuid = $1", courseUUID)
		if err != nil {
			return fmt.Errorf("failed to delete course: %w", err)
		}
		return mustAffect(res)
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func loadInstructors(ctx context.Context, q sqlx.QueryerContext, course *Course) error {
	var uids []string
	if err := sqlx.SelectContext(ctx, q, &uids, "SELECT edx_uid FROM course_instructors WHERE course_uuid = $1 ORDER BY edx_uid", course.UUID); err != nil {
		return fmt.Errorf("failed to load course instructors: %w", err)
	}
	course.Instructors = uids
	return nil
}

func replaceInstructors(ctx context.Context, tx *sqlx.Tx, courseUUID uuid.UUID, uids []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM course_instructors WHERE course_uuid = $1", courseUUID); err != nil {
		return fmt.Errorf("failed to clear course instructors: %w", err)
	}
	for _, uid := range uniqueStrings(uids) {
		if _, err := tx.ExecContext(ctx, "INSERT INTO course_instructors (course_uuid, edx_uid) VALUES ($1, $2)", courseUUID, uid); err != nil {
			return fmt.Errorf("failed to add course instructor: %w", err)
		}
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
