package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccxcon/ccxcon/server/database"
)

type article struct {
	Key   string
	Title string
}

func (a article) WebhookPayload() any {
	return map[string]string{"key": a.Key, "title": a.Title}
}

type secretNote struct {
	Key string
}

type received struct {
	body      []byte
	signature string
}

type subscriber struct {
	*httptest.Server
	mu       sync.Mutex
	received []received
}

func newSubscriber(t *testing.T, status int) *subscriber {
	s := &subscriber{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.received = append(s.received, received{body: body, signature: r.Header.Get("X-CCXCon-Signature")})
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(context.Background(), database.Config{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestRegistry() *Registry {
	articles := map[string]article{
		"a1": {Key: "a1", Title: "First"},
	}
	registry := NewRegistry()
	registry.Register("blog.Article", Lookup(func(_ context.Context, field string, value string) ([]article, error) {
		switch field {
		case "key":
			if a, ok := articles[value]; ok {
				return []article{a}, nil
			}
			return nil, nil
		case "title":
			return []article{{Key: "x", Title: value}, {Key: "y", Title: value}}, nil
		}
		return nil, database.ErrUnknownField
	}))
	registry.Register("blog.SecretNote", Lookup(func(_ context.Context, field string, value string) ([]secretNote, error) {
		return []secretNote{{Key: value}}, nil
	}))
	return registry
}

func TestSign(t *testing.T) {
	assert.Equal(t, "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9", Sign("key", []byte("The quick brown fox jumps over the lazy dog")))
}

func TestDispatchEnabledOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first := newSubscriber(t, http.StatusOK)
	second := newSubscriber(t, http.StatusOK)
	disabled := newSubscriber(t, http.StatusOK)

	hook1, err := db.CreateWebhook(ctx, first.URL, true)
	require.NoError(t, err)
	hook2, err := db.CreateWebhook(ctx, second.URL, true)
	require.NoError(t, err)
	_, err = db.CreateWebhook(ctx, disabled.URL, false)
	require.NoError(t, err)

	dispatcher := NewDispatcher(Config{}, newTestRegistry(), db)
	require.NoError(t, dispatcher.Dispatch(ctx, "blog.Article", "key", "a1"))

	assert.Empty(t, disabled.received)
	for _, tt := range []struct {
		sub    *subscriber
		secret string
	}{
		{sub: first, secret: hook1.Secret},
		{sub: second, secret: hook2.Secret},
	} {
		require.Len(t, tt.sub.received, 1)
		rq := tt.sub.received[0]
		assert.Equal(t, Sign(tt.secret, rq.body), rq.signature)
		assert.JSONEq(t, `{"action": "update", "type": "Article", "payload": {"key": "a1", "title": "First"}}`, string(rq.body))
	}
	assert.NotEqual(t, first.received[0].signature, second.received[0].signature)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	broken := newSubscriber(t, http.StatusInternalServerError)
	gone := newSubscriber(t, http.StatusOK)
	healthy := newSubscriber(t, http.StatusOK)
	gone.Close()

	for _, url := range []string{broken.URL, gone.URL, healthy.URL} {
		_, err := db.CreateWebhook(ctx, url, true)
		require.NoError(t, err)
	}

	dispatcher := NewDispatcher(Config{}, newTestRegistry(), db)
	require.NoError(t, dispatcher.Dispatch(ctx, "blog.Article", "key", "a1"))

	assert.Len(t, broken.received, 1)
	assert.Len(t, healthy.received, 1)
}

type staticSubscribers []database.Webhook

func (s staticSubscribers) ListEnabledWebhooks(context.Context) ([]database.Webhook, error) {
	return s, nil
}

func TestDispatchDeliversInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	subscribers := staticSubscribers{
		{ID: uuid.New(), URL: srv.URL + "/first", Secret: "s1", Enabled: true},
		{ID: uuid.New(), URL: srv.URL + "/broken", Secret: "s2", Enabled: true},
		{ID: uuid.New(), URL: srv.URL + "/off", Secret: "s3", Enabled: false},
		{ID: uuid.New(), URL: srv.URL + "/last", Secret: "s4", Enabled: true},
	}

	dispatcher := NewDispatcher(Config{}, newTestRegistry(), subscribers)
	require.NoError(t, dispatcher.Dispatch(context.Background(), "blog.Article", "key", "a1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/first", "/broken", "/last"}, paths)
}

func TestDispatchDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sub := newSubscriber(t, http.StatusOK)
	_, err := db.CreateWebhook(ctx, sub.URL, true)
	require.NoError(t, err)

	dispatcher := NewDispatcher(Config{}, newTestRegistry(), db)
	require.NoError(t, dispatcher.Dispatch(ctx, "blog.Article", "key", "missing"))

	require.Len(t, sub.received, 1)
	var event map[string]any
	require.NoError(t, json.Unmarshal(sub.received[0].body, &event))
	assert.Equal(t, "delete", event["action"])
	assert.Equal(t, "Article", event["type"])
	assert.Equal(t, map[string]any{"key": "missing"}, event["payload"])
}

func TestDispatchSkipsUnpublishable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sub := newSubscriber(t, http.StatusOK)
	_, err := db.CreateWebhook(ctx, sub.URL, true)
	require.NoError(t, err)

	dispatcher := NewDispatcher(Config{}, newTestRegistry(), db)
	require.NoError(t, dispatcher.Dispatch(ctx, "blog.SecretNote", "key", "n1"))
	assert.Empty(t, sub.received)
}

func TestDispatchErrors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sub := newSubscriber(t, http.StatusOK)
	_, err := db.CreateWebhook(ctx, sub.URL, true)
	require.NoError(t, err)
	dispatcher := NewDispatcher(Config{}, newTestRegistry(), db)

	tests := []struct {
		name       string
		entityType string
		field      string
		err        error
	}{
		{name: "no namespace", entityType: "Article", field: "key", err: ErrMalformedIdentifier},
		{name: "too many parts", entityType: "blog.Article.Extra", field: "key", err: ErrMalformedIdentifier},
		{name: "unknown type", entityType: "blog.Comment", field: "key", err: ErrUnknownEntityType},
		{name: "multiple results", entityType: "blog.Article", field: "title", err: ErrMultipleResults},
		{name: "unknown field", entityType: "blog.Article", field: "asdf", err: ErrUnknownLookupField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, dispatcher.Dispatch(ctx, tt.entityType, tt.field, "a1"), tt.err)
		})
	}
	assert.Empty(t, sub.received)
}
