package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/internal/httperr"
)

var (
	ErrUpstreamUnreachable = errors.New("could not reach edX")
	ErrUpstreamBadStatus   = errors.New("edX responded with a bad status")
	ErrUpstreamToken       = errors.New("could not fetch access token")
)

type ccxRequest struct {
	MasterCourseID string   `json:"master_course_id"`
	UserEmail      string   `json:"user_email"`
	TotalSeats     int      `json:"total_seats"`
	DisplayName    string   `json:"display_name"`
	CourseModules  []string `json:"course_modules,omitempty"`
}

// PostCCX creates a custom course of a master course upstream.
func (s *Server) PostCCX(w http.ResponseWriter, r *http.Request) {
	var rq ccxRequest
	if err := s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}

	for _, required := range []struct {
		name  string
		value string
	}{
		{name: "master_course_id", value: rq.MasterCourseID},
		{name: "user_email", value: rq.UserEmail},
		{name: "display_name", value: rq.DisplayName},
	} {
		if required.value == "" {
			s.error(w, r, fieldError(required.name, ErrRequiredField))
			return
		}
	}
	if rq.TotalSeats <= 0 {
		s.error(w, r, fieldError("total_seats", ErrInvalidFieldType))
		return
	}

	masterCourse, err := uuid.Parse(rq.MasterCourseID)
	if err != nil {
		s.error(w, r, fieldError("master_course_id", ErrInvalidFieldType))
		return
	}
	modules := make([]uuid.UUID, 0, len(rq.CourseModules))
	for _, module := range rq.CourseModules {
		moduleUUID, err := uuid.Parse(module)
		if err != nil {
			s.error(w, r, fieldError("course_modules", ErrInvalidFieldType))
			return
		}
		modules = append(modules, moduleUUID)
	}

	if err = s.catalog.CreateCCX(r.Context(), catalog.CCXInput{
		MasterCourse:  masterCourse,
		UserEmail:     rq.UserEmail,
		TotalSeats:    rq.TotalSeats,
		DisplayName:   rq.DisplayName,
		CourseModules: modules,
	}); err != nil {
		s.error(w, r, ccxError(err))
		return
	}
	s.json(w, r, rq, http.StatusCreated)
}

func ccxError(err error) error {
	var statusErr *edx.StatusError
	switch {
	case errors.Is(err, edx.ErrUnretrievableToken):
		return httperr.BadGateway(ErrUpstreamToken)
	case errors.Is(err, edx.ErrUnreachable):
		return httperr.BadGateway(ErrUpstreamUnreachable)
	case errors.As(err, &statusErr):
		return httperr.BadGateway(ErrUpstreamBadStatus)
	case errors.Is(err, catalog.ErrUpstreamNotConfigured):
		return httperr.ServiceUnavailable(err)
	}
	return catalogError(err)
}
