package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/ccxcon/ccxcon/internal/httperr"
)

var (
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrTokensDisabled       = errors.New("token issuing is not configured")
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// PostToken issues bearer tokens with the OAuth2 client credentials grant.
func (s *Server) PostToken(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		s.error(w, r, httperr.ServiceUnavailable(ErrTokensDisabled))
		return
	}
	if err := r.ParseForm(); err != nil {
		s.error(w, r, httperr.BadRequest(err))
		return
	}
	if grantType := r.PostForm.Get("grant_type"); grantType != "client_credentials" {
		s.error(w, r, httperr.BadRequest(ErrUnsupportedGrantType))
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	secret, known := s.cfg.Auth.Clients[clientID]
	if clientID == "" || !known || subtle.ConstantTimeCompare([]byte(secret), []byte(clientSecret)) != 1 {
		s.error(w, r, httperr.Unauthorized(ErrInvalidClient))
		return
	}

	token, err := s.IssueToken(clientID, time.Now())
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.ok(w, r, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.Auth.TokenTTL.Seconds()),
	})
}

// IssueToken signs a bearer token for clientID valid for the configured token ttl.
func (s *Server) IssueToken(clientID string, now time.Time) (string, error) {
	return IssueToken(s.signer, clientID, s.cfg.Auth.TokenTTL, now)
}

// IssueToken signs a bearer token for clientID that expires after ttl.
func IssueToken(signer jose.Signer, clientID string, ttl time.Duration, now time.Time) (string, error) {
	if signer == nil {
		return "", ErrTokensDisabled
	}
	return jwt.Signed(signer).Claims(Claims{
		Claims: jwt.Claims{
			Issuer:   Name,
			Subject:  clientID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
	}).CompactSerialize()
}

// NewSigner returns the HS512 signer for bearer tokens, or nil when no secret is configured.
func NewSigner(secret string) (jose.Signer, error) {
	if secret == "" {
		return nil, nil
	}
	return jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS512,
		Key:       []byte(secret),
	}, (&jose.SignerOptions{}).WithType("JWT"))
}
