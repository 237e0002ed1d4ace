package database

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const webhookColumns = "id, url, secret, enabled, created_at"

// CreateWebhook stores a new subscriber with a freshly generated secret.
func (d *DB) CreateWebhook(ctx context.Context, url string, enabled bool) (*Webhook, error) {
	secret := uuid.New()
	webhook := Webhook{
		ID:        uuid.New(),
		URL:       url,
		Secret:    hex.EncodeToString(secret[:]),
		Enabled:   enabled,
		CreatedAt: d.now(),
	}
	if _, err := d.ExecContext(ctx, "INSERT INTO webhooks ("+webhookColumns+") VALUES ($1, $2, $3, $4, $5)",
		webhook.ID,
		webhook.URL,
		webhook.Secret,
		webhook.Enabled,
		webhook.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return &webhook, nil
}

func (d *DB) GetWebhook(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	var webhook Webhook
	if err := d.GetContext(ctx, &webhook, "SELECT "+webhookColumns+" FROM webhooks WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (d *DB) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	if err := d.SelectContext(ctx, &webhooks, "SELECT "+webhookColumns+" FROM webhooks ORDER BY created_at"); err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

func (d *DB) ListEnabledWebhooks(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	if err := d.SelectContext(ctx, &webhooks, "SELECT "+webhookColumns+" FROM webhooks WHERE enabled = $1 ORDER BY created_at", true); err != nil {
		return nil, fmt.Errorf("failed to list enabled webhooks: %w", err)
	}
	return webhooks, nil
}

func (d *DB) UpdateWebhook(ctx context.Context, id uuid.UUID, update WebhookUpdate) (*Webhook, error) {
	webhook, err := d.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.URL != nil {
		webhook.URL = *update.URL
	}
	if update.Enabled != nil {
		webhook.Enabled = *update.Enabled
	}
	res, err := d.ExecContext(ctx, "UPDATE webhooks SET url = $1, enabled = $2 WHERE id = $3", webhook.URL, webhook.Enabled, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	if err = mustAffect(res); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (d *DB) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	res, err := d.ExecContext(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return mustAffect(res)
}
