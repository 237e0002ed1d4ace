package queue

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	job     Job
	readyAt time.Time
}

func NewMemoryQueue(visibilityTimeout time.Duration) *MemoryQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &MemoryQueue{
		items:             map[string]*memoryItem{},
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
	}
}

// MemoryQueue is an in-process Queue. Jobs are lost when the process exits.
type MemoryQueue struct {
	mu                sync.Mutex
	items             map[string]*memoryItem
	visibilityTimeout time.Duration
	heartbeat         time.Time
	now               func() time.Time
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.member = job.ID
	q.items[job.ID] = &memoryItem{job: job, readyAt: q.now().Add(delay)}
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var next *memoryItem
	for _, item := range q.items {
		if item.readyAt.After(now) {
			continue
		}
		if next == nil || item.readyAt.Before(next.readyAt) {
			next = item
		}
	}
	if next == nil {
		return Job{}, ErrEmpty
	}
	next.readyAt = now.Add(q.visibilityTimeout)
	return next.job, nil
}

func (q *MemoryQueue) Ack(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, job.ID)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	job.member = job.ID
	q.items[job.ID] = &memoryItem{job: job, readyAt: q.now().Add(delay)}
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *MemoryQueue) Heartbeat(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeat = q.now()
	return nil
}

func (q *MemoryQueue) LastHeartbeat(_ context.Context) (time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heartbeat, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
