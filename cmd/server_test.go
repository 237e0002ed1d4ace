package cmd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	started atomic.Bool
	closed  atomic.Bool
}

func (f *fakeService) Start() { f.started.Store(true) }
func (f *fakeService) Close() { f.closed.Store(true) }

func TestServeWaitsForWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var finished atomic.Bool
	workers := func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}

	svc := &fakeService{}
	done := make(chan struct{})
	go func() {
		serve(ctx, svc, workers)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}

	assert.True(t, svc.closed.Load())
	assert.True(t, finished.Load(), "workers finish before serve returns")
}

func TestServeWithoutWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &fakeService{}
	serve(ctx, svc, nil)
	assert.True(t, svc.closed.Load())
}
