package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/server/database"
)

type moduleRequest struct {
	Title       json.RawMessage `json:"title"`
	Subchapters json.RawMessage `json:"subchapters"`
	LocatorID   json.RawMessage `json:"locator_id"`
	Order       json.RawMessage `json:"order"`
}

func (m moduleRequest) parse() (*database.ModuleUpdate, error) {
	var (
		update database.ModuleUpdate
		err    error
	)
	if update.Title, err = optionalString("title", m.Title); err != nil {
		return nil, err
	}
	if update.LocatorID, err = optionalString("locator_id", m.LocatorID); err != nil {
		return nil, err
	}
	if update.Order, err = optionalInt("order", m.Order); err != nil {
		return nil, err
	}
	if !isNull(m.Subchapters) {
		subchapters, err := parseJSONList("subchapters", m.Subchapters)
		if err != nil {
			return nil, err
		}
		update.Subchapters = &subchapters
	}
	return &update, nil
}

func (s *Server) moduleParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	moduleUUID, err := uuidParam(r, "moduleUUID", catalog.ErrModuleNotFound)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return courseUUID, moduleUUID, nil
}

func (s *Server) ListModules(w http.ResponseWriter, r *http.Request) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	modules, err := s.catalog.ListModules(r.Context(), courseUUID)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}

	representations := make([]database.ModuleRepresentation, 0, len(modules))
	for _, module := range modules {
		representations = append(representations, module.Representation())
	}
	s.ok(w, r, representations)
}

func (s *Server) PostModule(w http.ResponseWriter, r *http.Request) {
	courseUUID, err := uuidParam(r, "courseUUID", catalog.ErrCourseNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	var rq moduleRequest
	if err = s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	update, err := rq.parse()
	if err != nil {
		s.error(w, r, err)
		return
	}
	if err = requireString("title", update.Title); err != nil {
		s.error(w, r, err)
		return
	}

	module := database.Module{
		CourseUUID:  courseUUID,
		Title:       *update.Title,
		Subchapters: database.Subchapters{},
	}
	if update.Subchapters != nil {
		module.Subchapters = *update.Subchapters
	}
	if update.LocatorID != nil {
		module.LocatorID = *update.LocatorID
	}
	if update.Order != nil {
		module.Order = *update.Order
	}

	created, err := s.catalog.CreateModule(r.Context(), module)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.json(w, r, created.Representation(), http.StatusCreated)
}

func (s *Server) GetModule(w http.ResponseWriter, r *http.Request) {
	courseUUID, moduleUUID, err := s.moduleParams(r)
	if err != nil {
		s.error(w, r, err)
		return
	}

	module, err := s.catalog.GetModule(r.Context(), courseUUID, moduleUUID)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, module.Representation())
}

func (s *Server) PutModule(w http.ResponseWriter, r *http.Request) {
	s.updateModule(w, r, true)
}

func (s *Server) PatchModule(w http.ResponseWriter, r *http.Request) {
	s.updateModule(w, r, false)
}

func (s *Server) updateModule(w http.ResponseWriter, r *http.Request, full bool) {
	courseUUID, moduleUUID, err := s.moduleParams(r)
	if err != nil {
		s.error(w, r, err)
		return
	}

	var rq moduleRequest
	if err = s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	update, err := rq.parse()
	if err != nil {
		s.error(w, r, err)
		return
	}
	if full {
		if err = requireString("title", update.Title); err != nil {
			s.error(w, r, err)
			return
		}
	}

	module, err := s.catalog.UpdateModule(r.Context(), courseUUID, moduleUUID, *update)
	if err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, module.Representation())
}

func (s *Server) DeleteModule(w http.ResponseWriter, r *http.Request) {
	courseUUID, moduleUUID, err := s.moduleParams(r)
	if err != nil {
		s.error(w, r, err)
		return
	}

	if err = s.catalog.DeleteModule(r.Context(), courseUUID, moduleUUID); err != nil {
		s.error(w, r, catalogError(err))
		return
	}
	s.ok(w, r, nil)
}
