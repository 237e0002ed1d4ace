package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type lengther interface {
	Len(ctx context.Context) (int64, error)
}

func newRedisQueue(t *testing.T, c *clock) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", time.Minute)
	q.now = c.Now
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

func newMemoryQueue(c *clock) *MemoryQueue {
	q := NewMemoryQueue(time.Minute)
	q.now = c.Now
	return q
}

func queues(t *testing.T) map[string]func(c *clock) Queue {
	return map[string]func(c *clock) Queue{
		"redis": func(c *clock) Queue {
			return newRedisQueue(t, c)
		},
		"memory": func(c *clock) Queue {
			return newMemoryQueue(c)
		},
	}
}

func TestQueueContract(t *testing.T) {
	for name, newQueue := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			q := newQueue(c)

			_, err := q.Claim(ctx)
			require.ErrorIs(t, err, ErrEmpty)

			job, err := NewJob("test.job", map[string]string{"course_id": "c1"})
			require.NoError(t, err)
			require.NoError(t, q.Enqueue(ctx, job, 10*time.Second))

			_, err = q.Claim(ctx)
			require.ErrorIs(t, err, ErrEmpty, "delayed jobs are not ready yet")

			c.Advance(10 * time.Second)
			claimed, err := q.Claim(ctx)
			require.NoError(t, err)
			assert.Equal(t, job.ID, claimed.ID)
			assert.Equal(t, 0, claimed.Attempt)

			var payload map[string]string
			require.NoError(t, claimed.Decode(&payload))
			assert.Equal(t, "c1", payload["course_id"])

			_, err = q.Claim(ctx)
			require.ErrorIs(t, err, ErrEmpty, "claimed jobs are invisible")

			c.Advance(time.Minute)
			redelivered, err := q.Claim(ctx)
			require.NoError(t, err, "unacked jobs come back after the visibility timeout")
			assert.Equal(t, job.ID, redelivered.ID)

			require.NoError(t, q.Retry(ctx, redelivered, 30*time.Second))
			_, err = q.Claim(ctx)
			require.ErrorIs(t, err, ErrEmpty)

			c.Advance(30 * time.Second)
			retried, err := q.Claim(ctx)
			require.NoError(t, err)
			assert.Equal(t, job.ID, retried.ID)
			assert.Equal(t, 1, retried.Attempt)

			require.NoError(t, q.Ack(ctx, retried))
			c.Advance(time.Hour)
			_, err = q.Claim(ctx)
			require.ErrorIs(t, err, ErrEmpty)

			size, err := q.(lengther).Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, size)
		})
	}
}

func TestQueueHeartbeat(t *testing.T) {
	for name, newQueue := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			hb := newQueue(c).(Heartbeater)

			last, err := hb.LastHeartbeat(ctx)
			require.NoError(t, err)
			assert.True(t, last.IsZero())

			require.NoError(t, hb.Heartbeat(ctx))
			last, err = hb.LastHeartbeat(ctx)
			require.NoError(t, err)
			assert.True(t, c.now.Equal(last))
		})
	}
}

func TestPoolRunOnce(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := newMemoryQueue(c)

	var (
		calls    int
		attempts []int
	)
	pool := NewPool(q, Config{MaxRetries: 2, PollInterval: time.Second}, map[string]Handler{
		"ok": func(ctx context.Context, job Job) error {
			calls++
			return nil
		},
		"flaky": func(ctx context.Context, job Job) error {
			attempts = append(attempts, job.Attempt)
			return Retry(time.Minute, errors.New("upstream down"))
		},
		"broken": func(ctx context.Context, job Job) error {
			panic("boom")
		},
	})

	wait, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait, "empty queue waits for the poll interval")

	okJob, _ := NewJob("ok", nil)
	require.NoError(t, q.Enqueue(ctx, okJob, 0))
	wait, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, wait)
	assert.Equal(t, 1, calls)
	size, _ := q.Len(ctx)
	assert.Zero(t, size)

	flakyJob, _ := NewJob("flaky", nil)
	require.NoError(t, q.Enqueue(ctx, flakyJob, 0))
	for i := 0; i < 3; i++ {
		_, err = pool.RunOnce(ctx)
		require.NoError(t, err)
		c.Advance(time.Minute)
	}
	assert.Equal(t, []int{0, 1, 2}, attempts)
	size, _ = q.Len(ctx)
	assert.Zero(t, size, "exhausted jobs are dropped")

	for _, jobType := range []string{"broken", "unknown"} {
		job, _ := NewJob(jobType, nil)
		require.NoError(t, q.Enqueue(ctx, job, 0))
		_, err = pool.RunOnce(ctx)
		require.NoError(t, err)
	}
	size, _ = q.Len(ctx)
	assert.Zero(t, size, "failed jobs are not redelivered")
}

func TestPoolRun(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	done := make(chan string, 1)
	pool := NewPool(q, Config{Workers: 2, PollInterval: 10 * time.Millisecond, MaxRetries: 1}, map[string]Handler{
		"ok": func(ctx context.Context, job Job) error {
			done <- job.ID
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- pool.Run(ctx)
	}()

	job, _ := NewJob("ok", nil)
	require.NoError(t, q.Enqueue(ctx, job, 0))

	select {
	case id := <-done:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	assert.Eventually(t, func() bool {
		last, _ := q.LastHeartbeat(context.Background())
		return !last.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}
