package httprate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
)

func TestCanonicalizeIP(t *testing.T) {
	data := []struct {
		ip       string
		expected string
	}{
		{ip: "10.0.0.1", expected: "10.0.0.1"},
		{ip: "2001:db8:1:2:3:4:5:6", expected: "2001:db8:1:2::"},
		{ip: "not-an-ip", expected: "not-an-ip"},
	}
	for _, d := range data {
		t.Run(d.ip, func(t *testing.T) {
			assert.Equal(t, d.expected, canonicalizeIP(d.ip))
		})
	}
}

func TestCounterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCounter(2, time.Minute)
	c.now = func() time.Time { return now }

	ok, remaining, _ := c.Try("a")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, remaining, _ = c.Try("a")
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _, _ = c.Try("a")
	assert.False(t, ok)

	ok, _, _ = c.Try("b")
	assert.True(t, ok, "keys are counted separately")

	now = now.Add(2 * time.Minute)
	ok, remaining, _ = c.Try("a")
	assert.True(t, ok, "window resets")
	assert.Equal(t, 1, remaining)

	now = now.Add(2 * time.Minute)
	c.cleanup()
	assert.Equal(t, 0, c.len())
}

func TestHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := NewRateLimiter(ctx, 1, time.Minute, nil, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		rq := httptest.NewRequest(http.MethodPost, "/api/v1/coursexs", nil)
		rq.RemoteAddr = "192.0.2.1:1234"
		handler.ServeHTTP(rr, rq)
		return rr
	}

	first := do()
	require.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get(ezhttp.HeaderRateLimitLimit))
	assert.Equal(t, "0", first.Header().Get(ezhttp.HeaderRateLimitRemaining))

	second := do()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get(ezhttp.HeaderRetryAfter))
}
