package edx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/ccxcon/ccxcon/server/database"
)

func oauthConfig(instance *database.BackingInstance) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     instance.OAuthClientID,
		ClientSecret: instance.OAuthClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimSuffix(instance.InstanceURL, "/") + "/oauth2/access_token/",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AccessToken returns a usable bearer token for the instance.
// A cached token is returned without any network call while it is not expired.
// Otherwise the grant token is exchanged (first issue) or the refresh token is used,
// and the new token set is persisted before it is returned.
func (c *Client) AccessToken(ctx context.Context, instance *database.BackingInstance) (string, error) {
	if !instance.IsExpired(c.now()) {
		return instance.AccessToken, nil
	}

	ctx, span := c.tracer.Start(ctx, "edx.AccessToken")
	defer span.End()
	span.SetAttributes(attribute.String("instance", instance.InstanceURL))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	cfg := oauthConfig(instance)

	var (
		token *oauth2.Token
		err   error
	)
	if instance.AccessToken == "" {
		span.SetAttributes(attribute.String("grant_type", "authorization_code"))
		token, err = cfg.Exchange(ctx, instance.GrantToken, oauth2.SetAuthURLParam("response_type", "code"))
	} else {
		span.SetAttributes(attribute.String("grant_type", "refresh_token"))
		token, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: instance.RefreshToken}).Token()
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to retrieve token")
		span.RecordError(err)
		return "", fmt.Errorf("%w: %w", ErrUnretrievableToken, err)
	}

	expiration := token.Expiry
	if expiration.IsZero() {
		expiration = c.now()
	}
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = instance.RefreshToken
	}

	if err = c.store.UpdateInstanceTokens(ctx, instance.ID, token.AccessToken, refreshToken, expiration); err != nil {
		span.SetStatus(codes.Error, "failed to persist token")
		span.RecordError(err)
		return "", fmt.Errorf("failed to persist access token: %w", err)
	}
	instance.AccessToken = token.AccessToken
	instance.RefreshToken = refreshToken
	expiration = expiration.UTC()
	instance.AccessTokenExpiration = &expiration

	slog.DebugContext(ctx, "issued new access token", slog.String("instance", instance.InstanceURL), slog.Time("expires_at", expiration))
	return instance.AccessToken, nil
}
