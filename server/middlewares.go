package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/stampede"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
	"github.com/ccxcon/ccxcon/internal/httperr"
	"github.com/ccxcon/ccxcon/internal/httprate"
)

var (
	ErrMissingCredentials = errors.New("authentication credentials were not provided")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRateLimit          = errors.New("rate limit exceeded")
)

type clientKey struct{}

// ClientFromContext returns the identity of the authenticated api client.
func ClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(clientKey{}).(string)
	return client
}

// Claims are carried by bearer tokens issued by the token endpoint.
type Claims struct {
	jwt.Claims
}

func (s *Server) cacheKeyFunc(r *http.Request) uint64 {
	return stampede.BytesToHash([]byte(r.Method), []byte(r.URL.Path), []byte(r.URL.RawQuery))
}

func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ezhttp.HeaderCacheControl, "no-cache, no-store, must-revalidate")
		next.ServeHTTP(w, r)
	})
}

// Authenticate accepts "Token <key>" for configured client keys and "Bearer <jwt>" for issued tokens.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, credentials, _ := strings.Cut(r.Header.Get(ezhttp.HeaderAuthorization), " ")
		credentials = strings.TrimSpace(credentials)

		var client string
		switch strings.ToLower(scheme) {
		case "token":
			if !s.validClientKey(credentials) {
				s.error(w, r, httperr.Forbidden(ErrInvalidToken))
				return
			}
			client = "key:" + strconv.FormatUint(xxhash.Sum64String(credentials), 16)
		case "bearer":
			claims, err := s.parseToken(credentials)
			if err != nil {
				s.error(w, r, httperr.Forbidden(err))
				return
			}
			client = "client:" + claims.Subject
		default:
			s.error(w, r, httperr.Forbidden(ErrMissingCredentials))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
	})
}

func (s *Server) validClientKey(key string) bool {
	if key == "" {
		return false
	}
	for _, allowed := range s.cfg.Auth.AllowedClientKeys {
		if subtle.ConstantTimeCompare([]byte(allowed), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	if s.cfg.Auth.JWTSecret == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseSigned(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims Claims
	if err = token.Claims([]byte(s.cfg.Auth.JWTSecret), &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if err = claims.Validate(jwt.Expected{
		Issuer: Name,
		Time:   time.Now(),
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// RateLimit applies the configured limit to write requests. Whitelisted addresses pass and blacklisted ones are always limited.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}
		remoteAddr := httprate.KeyByIP(r)
		if slices.Contains(s.cfg.RateLimit.Whitelist, remoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		if slices.Contains(s.cfg.RateLimit.Blacklist, remoteAddr) {
			w.Header().Set(ezhttp.HeaderRateLimitLimit, strconv.Itoa(s.cfg.RateLimit.Requests))
			w.Header().Set(ezhttp.HeaderRateLimitRemaining, "0")
			s.error(w, r, httperr.TooManyRequests(ErrRateLimit))
			return
		}
		if s.rateLimitHandler == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.rateLimitHandler(next).ServeHTTP(w, r)
	})
}

// rateLimitKey counts authenticated clients by identity and everyone else by address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if client := ClientFromContext(r.Context()); client != "" {
		return client
	}
	return httprate.KeyByIP(r)
}
