package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ccxcon/ccxcon/internal/httperr"
)

const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusNoConfig = "no config found"
)

var ErrStatusToken = errors.New("token_error")

type StatusCheck struct {
	Status               string            `json:"status"`
	ResponseMicroseconds int64             `json:"response_microseconds,omitempty"`
	Error                string            `json:"error,omitempty"`
	Details              map[string]string `json:"details,omitempty"`
}

type StatusResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]StatusCheck `json:"checks"`
}

// GetStatus reports the health of the database, redis and the worker pool. Any check being down answers 503.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status.Token != "" && r.URL.Query().Get("token") != s.cfg.Status.Token {
		s.error(w, r, httperr.BadRequest(ErrStatusToken))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := StatusResponse{
		Status:  StatusUp,
		Version: s.version.Short(),
		Checks: map[string]StatusCheck{
			"database": s.checkDatabase(ctx),
			"redis":    s.checkRedis(ctx),
			"worker":   s.checkWorker(ctx),
		},
	}
	status := http.StatusOK
	for _, check := range response.Checks {
		if check.Status == StatusDown {
			response.Status = StatusDown
			status = http.StatusServiceUnavailable
		}
	}
	s.json(w, r, response, status)
}

// timed runs fn inside a span named after the check and records how long it took.
func (s *Server) timed(ctx context.Context, name string, fn func(ctx context.Context) (map[string]string, error)) StatusCheck {
	ctx, span := s.tracer.Start(ctx, "status."+name)
	defer span.End()

	start := time.Now()
	details, err := fn(ctx)
	check := StatusCheck{
		Status:               StatusUp,
		ResponseMicroseconds: time.Since(start).Microseconds(),
		Details:              details,
	}
	if err != nil {
		check.Status = StatusDown
		check.Error = err.Error()
		span.SetStatus(codes.Error, "check failed")
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("status", check.Status))
	return check
}

func (s *Server) checkDatabase(ctx context.Context) StatusCheck {
	return s.timed(ctx, "database", func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"type": s.cfg.Database.Type}, s.db.PingContext(ctx)
	})
}

func (s *Server) checkRedis(ctx context.Context) StatusCheck {
	if s.redis == nil {
		return StatusCheck{Status: StatusNoConfig}
	}
	return s.timed(ctx, "redis", func(ctx context.Context) (map[string]string, error) {
		info, err := s.redis.Info(ctx, "server", "memory").Result()
		if err != nil {
			return nil, err
		}
		return parseRedisInfo(info, "uptime_in_seconds", "used_memory", "used_memory_peak"), nil
	})
}

func (s *Server) checkWorker(ctx context.Context) StatusCheck {
	if s.heartbeat == nil {
		return StatusCheck{Status: StatusNoConfig}
	}
	return s.timed(ctx, "worker", func(ctx context.Context) (map[string]string, error) {
		last, err := s.heartbeat.LastHeartbeat(ctx)
		if err != nil {
			return nil, err
		}
		if last.IsZero() {
			return nil, errors.New("no worker heartbeat recorded")
		}
		details := map[string]string{"last_heartbeat": last.UTC().Format(time.RFC3339)}
		if age := time.Since(last); s.cfg.Status.WorkerTimeout > 0 && age > s.cfg.Status.WorkerTimeout {
			return details, fmt.Errorf("last worker heartbeat %s ago", age.Truncate(time.Second))
		}
		return details, nil
	})
}

func parseRedisInfo(info string, keys ...string) map[string]string {
	values := make(map[string]string, len(keys))
	for _, line := range strings.Split(info, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		for _, k := range keys {
			if k == key {
				values[key] = value
			}
		}
	}
	return values
}
