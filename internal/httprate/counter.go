package httprate

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const cleanupInterval = 10 * time.Second

func newCounter(requestLimit int, windowLength time.Duration) *counter {
	return &counter{
		counters:     make(map[uint64]*count),
		windowLength: windowLength,
		requestLimit: requestLimit,
		now:          time.Now,
	}
}

// counter is a fixed window counter per hashed key.
type counter struct {
	counters     map[uint64]*count
	windowLength time.Duration
	requestLimit int
	now          func() time.Time
	mu           sync.Mutex
}

type count struct {
	remaining int
	resetAt   time.Time
}

// Try consumes one request of key's window and reports whether it was allowed.
func (c *counter) Try(key string) (bool, int, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hkey := xxhash.Sum64String(key)
	now := c.now()

	v, ok := c.counters[hkey]
	if !ok || now.After(v.resetAt) {
		v = &count{
			remaining: c.requestLimit,
			resetAt:   now.Add(c.windowLength),
		}
		c.counters[hkey] = v
	}

	if v.remaining == 0 {
		return false, 0, v.resetAt
	}
	v.remaining--
	return true, v.remaining, v.resetAt
}

func (c *counter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *counter) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.counters {
		if now.After(v.resetAt) {
			delete(c.counters, k)
		}
	}
}

func (c *counter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counters)
}
