package server

import (
	"errors"
	"net/http"

	"github.com/ccxcon/ccxcon/internal/httperr"
)

var ErrMissingUID = errors.New("must provide a UID")

type userExistenceResponse struct {
	Exists bool `json:"exists"`
}

// GetUserExistence reports whether an edX user is known as a course instructor.
func (s *Server) GetUserExistence(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		s.error(w, r, httperr.BadRequest(ErrMissingUID))
		return
	}

	exists, err := s.catalog.AuthorExists(r.Context(), uid)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.ok(w, r, userExistenceResponse{Exists: exists})
}
