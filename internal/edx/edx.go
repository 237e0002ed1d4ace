// Package edx talks to the upstream learning platform: OAuth2 token grants,
// course block trees and CCX creation.
package edx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const Name = "github.com/ccxcon/ccxcon/internal/edx"

var (
	ErrUnretrievableToken = errors.New("could not retrieve access token")
	ErrUnreachable        = errors.New("could not reach upstream")
	ErrMalformedResponse  = errors.New("malformed upstream response")
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream responded with status %d: %s", e.StatusCode, e.Body)
}

// TokenStore persists freshly issued tokens of a backing instance.
type TokenStore interface {
	UpdateInstanceTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken string, expiration time.Time) error
}

// NewHTTPClient returns a traced client for upstream calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

func New(httpClient *http.Client, store TokenStore) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{
		http:   httpClient,
		store:  store,
		tracer: otel.Tracer(Name),
		now:    time.Now,
	}
}

type Client struct {
	http   *http.Client
	store  TokenStore
	tracer trace.Tracer
	now    func() time.Time
}
