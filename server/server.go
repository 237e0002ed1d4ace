package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/topi314/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/internal/httperr"
	"github.com/ccxcon/ccxcon/internal/httprate"
	"github.com/ccxcon/ccxcon/internal/queue"
	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/server/database"
)

var (
	Name      = "ccxcon"
	Namespace = "github.com/ccxcon/ccxcon"
)

// NewServer wires the http api. rdb and heartbeat may be nil when no redis or worker pool is configured.
func NewServer(version ver.Version, cfg Config, db *database.DB, catalog *catalog.Service, rdb redis.UniversalClient, heartbeat queue.Heartbeater, signer jose.Signer) *Server {
	tracer := tracenoop.NewTracerProvider().Tracer(Name)
	if cfg.Otel.Enabled && cfg.Otel.Trace != nil && cfg.Otel.Trace.Enabled {
		tracer = otel.Tracer(Name)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		version:       version,
		cfg:           cfg,
		db:            db,
		catalog:       catalog,
		redis:         rdb,
		heartbeat:     heartbeat,
		signer:        signer,
		tracer:        tracer,
		cleanupCancel: cancel,
	}

	if cfg.RateLimit.Enabled {
		s.rateLimitHandler = httprate.NewRateLimiter(
			cleanupCtx,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Duration,
			s.rateLimitKey,
			func(w http.ResponseWriter, r *http.Request) {
				s.error(w, r, httperr.TooManyRequests(ErrRateLimit))
			},
		).Handler
	}

	s.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.Routes(),
	}

	return s
}

type Server struct {
	version          ver.Version
	cfg              Config
	db               *database.DB
	catalog          *catalog.Service
	redis            redis.UniversalClient
	heartbeat        queue.Heartbeater
	signer           jose.Signer
	tracer           trace.Tracer
	server           *http.Server
	rateLimitHandler func(http.Handler) http.Handler
	cleanupCancel    context.CancelFunc
}

func (s *Server) Start() {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Error while listening", tint.Err(err))
	}
}

func (s *Server) Close() {
	s.cleanupCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("Error while closing server", tint.Err(err))
	}
}
