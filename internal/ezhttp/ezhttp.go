package ezhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	HeaderContentType        = "Content-Type"
	HeaderUserAgent          = "User-Agent"
	HeaderAuthorization      = "Authorization"
	HeaderSignature          = "X-CCXCon-Signature"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
	HeaderCacheControl       = "Cache-Control"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeText = "text/plain; charset=UTF-8"
)

const UserAgent = "ccxcon"

// ErrorResponse is the body of every non-2xx api response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Path      string `json:"path"`
	RequestID string `json:"request_id"`
}

var defaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// Do sends a request to the ccxcon server configured under the "server" key.
// auth is sent verbatim as Authorization header when not empty.
func Do(method string, path string, auth string, body io.Reader) (*http.Response, error) {
	return DoWith(defaultClient, method, path, auth, body)
}

// DoWith is Do with a custom client, for example one which authenticates itself.
func DoWith(client *http.Client, method string, path string, auth string, body io.Reader) (*http.Response, error) {
	server := strings.TrimSuffix(viper.GetString("server"), "/")
	rq, err := http.NewRequest(method, server+path, body)
	if err != nil {
		return nil, err
	}
	rq.Header.Set(HeaderUserAgent, UserAgent)
	if body != nil {
		rq.Header.Set(HeaderContentType, ContentTypeJSON)
	}
	if auth != "" {
		rq.Header.Set(HeaderAuthorization, auth)
	}
	return client.Do(rq)
}

func Get(path string, auth string) (*http.Response, error) {
	return Do(http.MethodGet, path, auth, nil)
}

func Post(path string, auth string, body io.Reader) (*http.Response, error) {
	return Do(http.MethodPost, path, auth, body)
}

// ProcessBody decodes a 2xx body into v or turns the api error into a go error.
func ProcessBody(action string, rs *http.Response, v any) error {
	if rs.StatusCode >= http.StatusOK && rs.StatusCode < http.StatusMultipleChoices {
		if v == nil {
			return nil
		}
		if err := json.NewDecoder(rs.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	var errRs ErrorResponse
	if err := json.NewDecoder(rs.Body).Decode(&errRs); err != nil {
		return fmt.Errorf("failed to %s: server responded with status %d", action, rs.StatusCode)
	}
	return fmt.Errorf("failed to %s: %s", action, errRs.Error)
}
