// Package queue is an at-least-once delayed job queue with a worker pool on top.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmpty            = errors.New("no job ready")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrUnknownJobType   = errors.New("unknown job type")
)

type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// member is the encoded form the job is stored under.
	member string
}

func NewJob(jobType string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

func (j Job) encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	return string(data), nil
}

func decodeJob(member string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	job.member = member
	return job, nil
}

// Queue stores jobs until they are ready and hands each ready job to one worker at a time.
// A claimed job becomes visible again when it is neither acked nor retried in time.
type Queue interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	// Claim returns ErrEmpty when no job is ready.
	Claim(ctx context.Context) (Job, error)
	Ack(ctx context.Context, job Job) error
	// Retry reschedules the job with its attempt counter increased.
	Retry(ctx context.Context, job Job, delay time.Duration) error
	Close() error
}

// Heartbeater records the liveness of the worker pool consuming a queue.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
	LastHeartbeat(ctx context.Context) (time.Time, error)
}

// RetryError asks the pool to run the job again after Delay.
type RetryError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry in %s: %s", e.Delay, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

func Retry(delay time.Duration, err error) error {
	return &RetryError{Delay: delay, Err: err}
}

const (
	TypeRedis  = "redis"
	TypeMemory = "memory"
)

type Config struct {
	Type              string        `cfg:"type"`
	Name              string        `cfg:"name"`
	Workers           int           `cfg:"workers"`
	PollInterval      time.Duration `cfg:"poll_interval"`
	VisibilityTimeout time.Duration `cfg:"visibility_timeout"`
	MaxRetries        int           `cfg:"max_retries"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n  Type: %s\n  Name: %s\n  Workers: %d\n  PollInterval: %s\n  VisibilityTimeout: %s\n  MaxRetries: %d",
		c.Type,
		c.Name,
		c.Workers,
		c.PollInterval,
		c.VisibilityTimeout,
		c.MaxRetries,
	)
}
