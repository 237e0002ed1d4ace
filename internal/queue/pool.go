package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jpillora/backoff"
	"github.com/topi314/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const Name = "github.com/ccxcon/ccxcon/internal/queue"

// Handler processes one job. Returning a *RetryError reschedules the job,
// any other error fails it for good.
type Handler func(ctx context.Context, job Job) error

func NewPool(q Queue, cfg Config, handlers map[string]Handler) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	jobs, err := otel.Meter(Name).Int64Counter("ccxcon.jobs", metric.WithDescription("processed jobs by type and outcome"))
	if err != nil {
		slog.Error("failed to create job counter", tint.Err(err))
	}

	return &Pool{
		queue:    q,
		cfg:      cfg,
		handlers: handlers,
		jobs:     jobs,
	}
}

type Pool struct {
	queue    Queue
	cfg      Config
	handlers map[string]Handler
	jobs     metric.Int64Counter
}

// Run starts the workers and blocks until ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting worker pool", slog.Int("workers", p.cfg.Workers), slog.Duration("poll_interval", p.cfg.PollInterval))

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		eg.Go(func() error {
			p.runLoop(ctx, worker)
			return nil
		})
	}
	if hb, ok := p.queue.(Heartbeater); ok {
		eg.Go(func() error {
			p.heartbeatLoop(ctx, hb)
			return nil
		})
	}
	err := eg.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) heartbeatLoop(ctx context.Context, hb Heartbeater) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := hb.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "failed to write worker heartbeat", tint.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) runLoop(ctx context.Context, worker int) {
	b := &backoff.Backoff{
		Min:    p.cfg.PollInterval,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
	logger := slog.Default().With(slog.Int("worker", worker))

	for {
		if ctx.Err() != nil {
			return
		}

		wait, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = b.Duration()
			logger.ErrorContext(ctx, "failed to claim job", slog.Duration("backoff", wait), tint.Err(err))
		} else {
			b.Reset()
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce claims and processes a single job. It returns how long to wait before
// polling again, which is zero after a job was processed.
func (p *Pool) RunOnce(ctx context.Context) (time.Duration, error) {
	job, err := p.queue.Claim(ctx)
	if errors.Is(err, ErrEmpty) {
		return p.cfg.PollInterval, nil
	}
	if err != nil {
		return 0, err
	}
	p.process(ctx, job)
	return 0, nil
}

func (p *Pool) process(ctx context.Context, job Job) {
	logger := slog.Default().With(slog.String("job_id", job.ID), slog.String("job_type", job.Type), slog.Int("attempt", job.Attempt))
	start := time.Now()

	err := p.handle(ctx, job)

	var retryErr *RetryError
	outcome := "success"
	switch {
	case err == nil:
		logger.DebugContext(ctx, "job done", slog.Duration("took", time.Since(start)))
		p.ack(ctx, logger, job)
	case errors.As(err, &retryErr) && job.Attempt < p.cfg.MaxRetries:
		outcome = "retry"
		logger.WarnContext(ctx, "job failed, retrying", slog.Duration("delay", retryErr.Delay), tint.Err(retryErr.Err))
		if rErr := p.queue.Retry(ctx, job, retryErr.Delay); rErr != nil {
			logger.ErrorContext(ctx, "failed to reschedule job", tint.Err(rErr))
		}
	case retryErr != nil:
		outcome = "exhausted"
		logger.ErrorContext(ctx, "job failed", tint.Err(fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, job.Attempt+1, retryErr.Err)))
		p.ack(ctx, logger, job)
	default:
		outcome = "failed"
		logger.ErrorContext(ctx, "job failed", tint.Err(err))
		p.ack(ctx, logger, job)
	}

	if p.jobs != nil {
		p.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("type", job.Type), attribute.String("outcome", outcome)))
	}
}

func (p *Pool) ack(ctx context.Context, logger *slog.Logger, job Job) {
	if err := p.queue.Ack(ctx, job); err != nil {
		logger.ErrorContext(ctx, "failed to ack job", tint.Err(err))
	}
}

func (p *Pool) handle(ctx context.Context, job Job) (err error) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v\n%s", job.Type, r, debug.Stack())
		}
	}()
	return handler(ctx, job)
}
