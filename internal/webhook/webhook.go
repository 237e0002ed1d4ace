// Package webhook delivers signed change events to subscribers.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/topi314/tint"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
	"github.com/ccxcon/ccxcon/server/database"
)

const Name = "github.com/ccxcon/ccxcon/internal/webhook"

const (
	ActionUpdate = "update"
	ActionDelete = "delete"
)

type Event struct {
	Action  string `json:"action"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Subscribers lists the webhooks that receive dispatches.
type Subscribers interface {
	ListEnabledWebhooks(ctx context.Context) ([]database.Webhook, error)
}

type Config struct {
	Timeout   time.Duration `cfg:"timeout"`
	UserAgent string        `cfg:"user_agent"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n  Timeout: %s\n  UserAgent: %s", c.Timeout, c.UserAgent)
}

// Sign returns the lowercase hex HMAC-SHA1 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func NewDispatcher(cfg Config, registry *Registry, subscribers Subscribers) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = ezhttp.UserAgent
	}

	meter := otel.Meter(Name)
	deliveries, err := meter.Int64Counter("ccxcon.webhook.deliveries", metric.WithDescription("webhook deliveries by outcome"))
	if err != nil {
		slog.Error("failed to create webhook delivery counter", tint.Err(err))
	}

	return &Dispatcher{
		cfg:         cfg,
		registry:    registry,
		subscribers: subscribers,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		tracer:     otel.Tracer(Name),
		deliveries: deliveries,
	}
}

type Dispatcher struct {
	cfg         Config
	registry    *Registry
	subscribers Subscribers
	client      *http.Client
	tracer      trace.Tracer
	deliveries  metric.Int64Counter
}

// Dispatch looks the entity up and delivers the resulting event to every enabled webhook in turn.
// A missing entity is announced as deleted. Entities that are not Publishable are skipped.
// Delivery failures are logged per subscriber and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, entityType string, field string, value string) error {
	ctx, span := d.tracer.Start(ctx, "webhook.Dispatch", trace.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.String("lookup_field", field),
		attribute.String("lookup_value", value),
	))
	defer span.End()

	event, err := d.event(ctx, entityType, field, value)
	if err != nil {
		span.SetStatus(codes.Error, "failed to build event")
		span.RecordError(err)
		return err
	}
	if event == nil {
		slog.InfoContext(ctx, "entity does not support webhooks, skipping", slog.String("entity_type", entityType), slog.String(field, value))
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	webhooks, err := d.subscribers.ListEnabledWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}

	for _, webhook := range webhooks {
		if !webhook.Enabled {
			continue
		}
		d.deliver(ctx, webhook, event.Action, body)
	}

	slog.DebugContext(ctx, "finished dispatching event", slog.String("action", event.Action), slog.String("type", event.Type), slog.Int("webhooks", len(webhooks)))
	return nil
}

func (d *Dispatcher) event(ctx context.Context, entityType string, field string, value string) (*Event, error) {
	name, lookup, err := d.registry.Resolve(entityType)
	if err != nil {
		return nil, err
	}

	found, err := lookup(ctx, field, value)
	if err != nil {
		if errors.Is(err, database.ErrUnknownField) {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnknownLookupField, field, entityType)
		}
		return nil, fmt.Errorf("failed to look up %s: %w", entityType, err)
	}

	switch len(found) {
	case 0:
		return &Event{
			Action:  ActionDelete,
			Type:    name,
			Payload: map[string]string{field: value},
		}, nil
	case 1:
		publishable, ok := found[0].(Publishable)
		if !ok {
			return nil, nil
		}
		return &Event{
			Action:  ActionUpdate,
			Type:    name,
			Payload: publishable.WebhookPayload(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s %s=%s matched %d", ErrMultipleResults, entityType, field, value, len(found))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, webhook database.Webhook, action string, body []byte) {
	ctx, span := d.tracer.Start(ctx, "webhook.deliver", trace.WithAttributes(
		attribute.String("url", webhook.URL),
		attribute.String("webhook_id", webhook.ID.String()),
	))
	defer span.End()

	logger := slog.Default().With(slog.String("action", action), slog.String("webhook_id", webhook.ID.String()), slog.String("url", webhook.URL))

	outcome := "success"
	defer func() {
		if d.deliveries != nil {
			d.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()

	signature := Sign(webhook.Secret, body)
	rq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		outcome = "invalid"
		span.SetStatus(codes.Error, "failed to create request")
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to create webhook request", tint.Err(err))
		return
	}
	rq.Header.Set(ezhttp.HeaderContentType, ezhttp.ContentTypeJSON)
	rq.Header.Set(ezhttp.HeaderUserAgent, d.cfg.UserAgent)
	rq.Header.Set(ezhttp.HeaderSignature, signature)

	rs, err := d.client.Do(rq)
	if err != nil {
		outcome = "unreachable"
		span.SetStatus(codes.Error, "failed to post webhook")
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to post webhook", slog.String("payload", string(body)), tint.Err(err))
		return
	}
	defer func() {
		_ = rs.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, rs.Body)

	if rs.StatusCode < http.StatusOK || rs.StatusCode >= http.StatusMultipleChoices {
		outcome = "bad_status"
		span.SetStatus(codes.Error, "webhook responded with bad status")
		logger.ErrorContext(ctx, "webhook responded with bad status", slog.Int("status", rs.StatusCode))
		return
	}
	logger.DebugContext(ctx, "delivered webhook", slog.String("signature", signature), slog.Int("status", rs.StatusCode))
}
