package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const instanceColumns = "id, instance_url, oauth_client_id, oauth_client_secret, username, grant_token, refresh_token, access_token, access_token_expiration, created_at"

func (d *DB) CreateInstance(ctx context.Context, instance BackingInstance) (*BackingInstance, error) {
	instance.ID = uuid.New()
	instance.CreatedAt = d.now()
	if _, err := d.ExecContext(ctx, "INSERT INTO backing_instances ("+instanceColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		instance.ID,
		instance.InstanceURL,
		instance.OAuthClientID,
		instance.OAuthClientSecret,
		instance.Username,
		instance.GrantToken,
		instance.RefreshToken,
		instance.AccessToken,
		instance.AccessTokenExpiration,
		instance.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create backing instance: %w", err)
	}
	return &instance, nil
}

func (d *DB) GetInstance(ctx context.Context, id uuid.UUID) (*BackingInstance, error) {
	var instance BackingInstance
	if err := d.GetContext(ctx, &instance, "SELECT "+instanceColumns+" FROM backing_instances WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (d *DB) GetInstanceByURL(ctx context.Context, instanceURL string) (*BackingInstance, error) {
	var instance BackingInstance
	if err := d.GetContext(ctx, &instance, "SELECT "+instanceColumns+" FROM backing_instances WHERE instance_url = $1", instanceURL); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (d *DB) ListInstances(ctx context.Context) ([]BackingInstance, error) {
	var instances []BackingInstance
	if err := d.SelectContext(ctx, &instances, "SELECT "+instanceColumns+" FROM backing_instances ORDER BY instance_url"); err != nil {
		return nil, fmt.Errorf("failed to list backing instances: %w", err)
	}
	return instances, nil
}

// UpdateInstanceTokens stores a freshly issued token set in a single statement.
func (d *DB) UpdateInstanceTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken string, expiration time.Time) error {
	expiration = expiration.UTC()
	res, err := d.ExecContext(ctx, "UPDATE backing_instances SET access_token = $1, refresh_token = $2, access_token_expiration = $3 WHERE id = $4",
		accessToken,
		refreshToken,
		expiration,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update backing instance tokens: %w", err)
	}
	return mustAffect(res)
}

// FindInstances looks backing instances up by id or instance_url.
func (d *DB) FindInstances(ctx context.Context, field string, value string) ([]BackingInstance, error) {
	var column string
	switch field {
	case "id", "uuid":
		column = "id"
		if _, err := uuid.Parse(value); err != nil {
			return nil, nil
		}
	case "instance_url":
		column = "instance_url"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	var instances []BackingInstance
	if err := d.SelectContext(ctx, &instances, "SELECT "+instanceColumns+" FROM backing_instances WHERE "+column+" = $1", value); err != nil {
		return nil, fmt.Errorf("failed to find backing instances: %w", err)
	}
	return instances, nil
}
