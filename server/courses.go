package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/internal/httperr"
	"github.com/ccxcon/ccxcon/server/database"
)

type courseRequest struct {
	CourseID    json.RawMessage `json:"course_id"`
	Title       json.RawMessage `json:"title"`
	AuthorName  json.RawMessage `json:"author_name"`
	Overview    json.RawMessage `json:"overview"`
	Description json.RawMessage `json:"description"`
	ImageURL    json.RawMessage `json:"image_url"`
	EdxInstance json.RawMessage `json:"edx_instance"`
	Instructors json.RawMessage `json:"instructors"`
	Live        json.RawMessage `json:"live"`
	Deleted     json.RawMessage `json:"deleted"`
}

type courseFields struct {
	CourseID    *string
	EdxInstance *string
	database.CourseUpdate
}

func (c courseRequest) parse() (*courseFields, error) {
	var (
		fields courseFields
		err    error
	)
	if fields.CourseID, err = optionalString("course_id", c.CourseID); err != nil {
		return nil, err
	}
	if fields.EdxInstance, err = optionalString("edx_instance", c.EdxInstance); err != nil {
		return nil, err
	}
	if fields.Title, err = optionalString("title", c.Title); err != nil {
		return nil, err
	}
	if fields.AuthorName, err = optionalString("author_name", c.AuthorName); err != nil {
		return nil, err
	}
	if fields.Overview, err = optionalString("overview", c.Overview); err != nil {
		return nil, err
	}
	if fields.Description, err = optionalString("description", c.Description); err != nil {
		return nil, err
	}
	if fields.ImageURL, err = optionalString("image_url", c.ImageURL); err != nil {
		return nil, err
	}
	if fields.Live, err = optionalBool("live", c.Live); err != nil {
		return nil, err
	}
	if fields.Deleted, err = optionalBool("deleted", c.Deleted); err != nil {
		return nil, err
	}
	if !isNull(c.Instructors) {
		instructors, err := parseStringOrList("instructors", c.Instructors)
		if err != nil {
			return nil, err
		}
		fields.Instructors = &instructors
	}
	return &fields, nil
}

func catalogError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound), errors.Is(err, catalog.ErrModuleNotFound):
		return httperr.NotFound(err)
	case errors.Is(err, catalog.ErrUnknownInstance):
		return fieldError("edx_instance", err)
	case errors.Is(err, catalog.ErrForeignModule):
		return fieldError("course_modules", err)
	case errors.Is(err, database.ErrDuplicateLocator):
		return fieldError("locator_id", err)
	}
	return err
}

func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.catalog.ListCourses(r.Context())
	if err != nil {
		s.error(w, r, err)
		return
	}

	representations := make([]database.CourseRepresentation, 0, len(courses))
	for _, course := range courses {
		representations = append(representations, course.Representation())
	}
	s.ok(w, r, representations)
}

// PostCourse creates a course or updates the one with the same course_id.
func (s *Server) PostCourse(w http.ResponseWriter, r *http.Request) {
	var rq courseRequest
	if err := s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	fields, err := rq.parse()
	if err != nil {
		s.error(w, r, err)
		return
	}
	for _, required := range []struct {
		name  string
		value *string
	}{
		{name: "course_id", value: fields.CourseID},
		{name: "title", value: fields.Title},
		{name: "image_url", value: fields.ImageURL},
		{name: "edx_instance", value: fields.EdxInstance},
	} {
		if err = requireString(required.name, required.value); err != nil {
			s.error(w, r, err)
			return
		}
	}

	input := catalog.CourseInput{
		CourseID:    *fields.CourseID,
		Title:       *fields.Title,
		ImageURL:    *fields.ImageURL,
		InstanceURL: *fields.EdxInstance,
	}
	if fields.AuthorName != nil {
		input.AuthorName = *fields.AuthorName
	}
	if fields.Overview != nil {
		input.Overview = *fields.Overview
	}
	if fields.Description != nil {
		input.Description = *fields.Description
	}
	if fields.Live != nil {
		input.Live = *fields.Live
	}
	if fields.Instructors != nil {
		input.Instructors = *fields.Instructors
	}

	course, created, err := s.catalog.SaveCourse(r.Context(), input)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.json(w, r, course.Representation(), status)
}

func (s *Server) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	course, err := s.catalog.GetCourse(r.Context(), courseUUID)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, course.Representation())
}

func (s *Server) PutCourse(w http.ResponseWriter, r *http.Request) {
	s.updateCourse(w, r, true)
}

func (s *Server) PatchCourse(w http.ResponseWriter, r *http.Request) {
	s.updateCourse(w, r, false)
}

func (s *Server) updateCourse(w http.ResponseWriter, r *http.Request, full bool) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	var rq courseRequest
	if err = s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	fields, err := rq.parse()
	if err != nil {
		s.error(w, r, err)
		return
	}
	if full {
		if err = requireString("title", fields.Title); err != nil {
			s.error(w, r, err)
			return
		}
		if err = requireString("image_url", fields.ImageURL); err != nil {
			s.error(w, r, err)
			return
		}
	}

	existing, err := s.catalog.GetCourse(r.Context(), courseUUID)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	if fields.CourseID != nil && *fields.CourseID != existing.CourseID {
		s.error(w, r, fieldError("course_id", ErrImmutableField))
		return
	}
	if fields.EdxInstance != nil && *fields.EdxInstance != existing.EdxInstanceURL {
		s.error(w, r, fieldError("edx_instance", ErrImmutableField))
		return
	}

	course, err := s.catalog.UpdateCourse(r.Context(), courseUUID, fields.CourseUpdate)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, course.Representation())
}

func (s *Server) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	if err = s.catalog.DeleteCourse(r.Context(), courseUUID); err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, nil)
}

// PostCourseSync schedules a fresh structure sync of the course.
func (s *Server) PostCourseSync(w http.ResponseWriter, r *http.Request) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	course, err := s.catalog.GetCourse(r.Context(), courseUUID)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	if course, err = s.catalog.Resync(r.Context(), course.CourseID); err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.json(w, r, course.Representation(), http.StatusAccepted)
}
