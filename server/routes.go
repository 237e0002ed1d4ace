package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/google/uuid"
	"github.com/riandyrn/otelchi"
	"github.com/samber/slog-chi"
	"github.com/topi314/tint"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
	"github.com/ccxcon/ccxcon/internal/httperr"
)

const maxBodySize = 1 << 20

var ErrInvalidBody = errors.New("invalid request body")

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(otelchi.Middleware(Name, otelchi.WithChiRoutes(r)))
	r.Use(middleware.CleanPath)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(slogchi.NewWithConfig(slog.Default(), slogchi.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelDebug,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		WithSpanID:       s.cfg.Otel.Enabled,
		WithTraceID:      s.cfg.Otel.Enabled,
		Filters: []slogchi.Filter{
			slogchi.IgnorePathPrefix("/ping"),
		},
	}))
	r.Use(cacheControl)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(middleware.GetHead)

	if s.cfg.Debug {
		r.Mount("/debug", middleware.Profiler())
	}

	var cache func(http.Handler) http.Handler
	if s.cfg.Cache.Enabled {
		cache = stampede.HandlerWithKey(s.cfg.Cache.Size, s.cfg.Cache.TTL, s.cacheKeyFunc)
	}
	cached := func(r chi.Router) chi.Router {
		if cache == nil {
			return r
		}
		return r.With(cache)
	}

	r.Get("/version", s.GetVersion)
	r.Get("/status", s.GetStatus)
	r.Post("/o/token", s.PostToken)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.Authenticate)
		if s.cfg.RateLimit.Enabled {
			r.Use(s.RateLimit)
		}

		r.Get("/user_existence", s.GetUserExistence)
		r.Post("/ccx", s.PostCCX)

		r.Route("/coursexs", func(r chi.Router) {
			cached(r).Get("/", s.ListCourses)
			r.Post("/", s.PostCourse)
			r.Route("/{courseUUID}", func(r chi.Router) {
				cached(r).Get("/", s.GetCourse)
				r.Put("/", s.PutCourse)
				r.Patch("/", s.PatchCourse)
				r.Delete("/", s.DeleteCourse)
				r.Post("/sync", s.PostCourseSync)

				r.Route("/modules", func(r chi.Router) {
					cached(r).Get("/", s.ListModules)
					r.Post("/", s.PostModule)
					r.Route("/{moduleUUID}", func(r chi.Router) {
						cached(r).Get("/", s.GetModule)
						r.Put("/", s.PutModule)
						r.Patch("/", s.PatchModule)
						r.Delete("/", s.DeleteModule)
					})
				})
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", s.ListWebhooks)
			r.Post("/", s.PostWebhook)
			r.Route("/{webhookID}", func(r chi.Router) {
				r.Get("/", s.GetWebhook)
				r.Patch("/", s.PatchWebhook)
				r.Delete("/", s.DeleteWebhook)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.error(w, r, httperr.NotFound(errors.New("not found")))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.error(w, r, httperr.New(errors.New("method not allowed"), http.StatusMethodNotAllowed))
	})

	if s.cfg.HTTPTimeout > 0 {
		return http.TimeoutHandler(r, s.cfg.HTTPTimeout, "Request timed out")
	}
	return r
}

func (s *Server) GetVersion(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(s.version.Format()))
}

func (s *Server) error(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, http.ErrHandlerTimeout) {
		return
	}

	status := httperr.Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "internal server error", tint.Err(err))
	}
	s.json(w, r, ezhttp.ErrorResponse{
		Error:     err.Error(),
		Status:    status,
		Path:      r.URL.Path,
		RequestID: middleware.GetReqID(r.Context()),
	}, status)
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request, v any) {
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.json(w, r, v, http.StatusOK)
}

func (s *Server) json(w http.ResponseWriter, r *http.Request, v any, status int) {
	w.Header().Set(ezhttp.HeaderContentType, ezhttp.ContentTypeJSON)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.ErrorContext(r.Context(), "failed to encode json", tint.Err(err))
	}
}

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return httperr.BadRequest(fmt.Errorf("%w: %w", ErrInvalidBody, err))
	}
	return nil
}

func uuidParam(r *http.Request, name string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, httperr.NotFound(notFound)
	}
	return id, nil
}
