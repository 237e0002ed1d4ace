package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/topi314/tint"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/internal/queue"
	"github.com/ccxcon/ccxcon/internal/reconcile"
	"github.com/ccxcon/ccxcon/internal/tasks"
	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/internal/webhook"
	"github.com/ccxcon/ccxcon/server"
	"github.com/ccxcon/ccxcon/server/database"
)

var ErrUnknownQueueType = errors.New("unknown queue type")

const (
	componentServer = "server"
	componentWorker = "worker"
	componentCLI    = "cli"
)

// app holds everything the service commands share.
type app struct {
	cfg          server.Config
	version      ver.Version
	db           *database.DB
	redis        redis.UniversalClient
	queue        queue.Queue
	edx          *edx.Client
	enqueuer     *tasks.Enqueuer
	catalog      *catalog.Service
	otelShutdown server.ShutdownFunc
}

func newApp(ctx context.Context, cmd *cobra.Command, version ver.Version, component string) (*app, error) {
	cfg, err := server.LoadConfig(configPath(cmd))
	if err != nil {
		return nil, err
	}
	server.SetupLogger(cfg.Log)
	slog.Info("Starting ccxcon", slog.String("component", component), slog.String("version", version.Short()))
	slog.Debug("Config: " + cfg.String())

	otelCfg := cfg.Otel
	if component == componentCLI {
		// one-shot commands must not bind the metrics listener of a running server
		otelCfg.Metrics = nil
	}
	otelShutdown, err := server.SetupOtel(version.Short(), component, otelCfg)
	if err != nil {
		return nil, err
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.New(dbCtx, cfg.Database)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &app{
		cfg:          cfg,
		version:      version,
		db:           db,
		otelShutdown: otelShutdown,
	}

	switch cfg.Queue.Type {
	case queue.TypeRedis:
		client := redis.NewClient(cfg.Redis.Options())
		if err = client.Ping(dbCtx).Err(); err != nil {
			_ = client.Close()
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		a.queue = queue.NewRedisQueue(client, cfg.Queue.Name, cfg.Queue.VisibilityTimeout)
	case queue.TypeMemory, "":
		a.queue = queue.NewMemoryQueue(cfg.Queue.VisibilityTimeout)
	default:
		a.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueueType, cfg.Queue.Type)
	}

	a.edx = edx.New(edx.NewHTTPClient(cfg.Edx.Timeout), db)
	a.enqueuer = tasks.NewEnqueuer(a.queue)
	a.catalog = catalog.New(db, a.enqueuer, a.enqueuer, a.edx)
	return a, nil
}

// durable reports whether enqueued jobs outlive this process.
func (a *app) durable() bool {
	return a.cfg.Queue.Type == queue.TypeRedis
}

func (a *app) heartbeat() queue.Heartbeater {
	hb, _ := a.queue.(queue.Heartbeater)
	return hb
}

func (a *app) syncTask() *tasks.SyncTask {
	return tasks.NewSyncTask(a.db, a.edx, reconcile.New(a.catalog.Modules()))
}

func (a *app) pool() *queue.Pool {
	dispatcher := webhook.NewDispatcher(a.cfg.Webhook, catalog.Registry(a.db), a.db)
	return queue.NewPool(a.queue, a.cfg.Queue, tasks.Handlers(a.syncTask(), tasks.NewPublishTask(dispatcher)))
}

// runPool runs the worker pool until ctx is done.
func (a *app) runPool(ctx context.Context) {
	if err := a.pool().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Worker pool stopped unexpectedly", tint.Err(err))
	}
}

// drain processes every job that is ready right now.
func (a *app) drain(ctx context.Context) {
	pool := a.pool()
	for {
		wait, err := pool.RunOnce(ctx)
		if err != nil {
			slog.Error("Failed to process job", tint.Err(err))
			return
		}
		if wait > 0 {
			return
		}
	}
}

func (a *app) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			slog.Error("Error while closing queue", tint.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Error("Error while closing database", tint.Err(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otelShutdown(ctx); err != nil {
		slog.Error("Error while shutting down otel", tint.Err(err))
	}
}
