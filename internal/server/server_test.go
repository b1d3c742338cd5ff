package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/llmgw/internal/auth"
	"github.com/vyrodovalexey/llmgw/internal/proxy"
	"github.com/vyrodovalexey/llmgw/internal/secrets"
)

// stubProvider serves a fixed key mapping, or an error.
type stubProvider struct {
	keys    map[string]string
	err     error
	fetches atomic.Int32
}

func (p *stubProvider) Type() secrets.ProviderType { return secrets.ProviderTypeFile }

func (p *stubProvider) FetchKeys(ctx context.Context) (map[string]string, error) {
	p.fetches.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.keys, nil
}

func (p *stubProvider) HealthCheck(ctx context.Context) error { return p.err }
func (p *stubProvider) Close() error                          { return nil }

type testGateway struct {
	server   *Server
	cache    *auth.Cache
	provider *stubProvider
	upstream *httptest.Server
	hits     *atomic.Int32
}

// newTestGateway builds a full gateway in front of a stub upstream that
// records hits and echoes the request path.
func newTestGateway(t *testing.T, initialKeys map[string]string) *testGateway {
	t.Helper()

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path": r.URL.Path,
			"key":  r.Header.Get("X-API-Key"),
		})
	}))
	t.Cleanup(upstream.Close)

	cache := auth.NewCache()
	cache.Replace(auth.NewKeySet(initialKeys))

	provider := &stubProvider{keys: initialKeys}
	reloader := NewReloader(provider, cache)
	guard := auth.NewGuard("X-API-Key", cache)

	forwarder, err := proxy.NewForwarder(upstream.URL)
	require.NoError(t, err)

	srv := New(Config{
		Port:        8000,
		ServiceName: "llmgw",
	}, guard, cache, reloader, forwarder)

	return &testGateway{
		server:   srv,
		cache:    cache,
		provider: provider,
		upstream: upstream,
		hits:     &hits,
	}
}

func (g *testGateway) do(method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	// Go 1.21's ReverseProxy demands CloseNotify when the request context
	// has no done channel; ResponseRecorder lacks it, so provide one.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	g.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidKeyIsForwarded(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa"})

	rec := g.do(http.MethodGet, "/v1/models", "sk-aaa")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), g.hits.Load())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/v1/models", body["path"])
	assert.Empty(t, body["key"], "credential must be stripped before forwarding")
}

func TestServer_UnknownKeyRejectedWithoutUpstreamCall(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa"})

	rec := g.do(http.MethodPost, "/v1/completions", "sk-zzz")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), g.hits.Load(), "rejected requests must not reach the upstream")
}

func TestServer_EmptyKeySetRejectsEverything(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)

	for _, key := range []string{"", "sk-aaa", "sk-anything"} {
		rec := g.do(http.MethodGet, "/v1/models", key)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, int32(0), g.hits.Load())
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa", "team-b": "sk-bbb"})

	rec := g.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string `json:"status"`
		Service    string `json:"service"`
		KeysLoaded int    `json:"keys_loaded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "llmgw", body.Service)
	assert.Equal(t, 2, body.KeysLoaded)
}

func TestServer_HealthRequiresNoKey(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)

	rec := g.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReloadSwapsKeySet(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa"})

	// Rotate the backend to a new key.
	g.provider.keys = map[string]string{"team-b": "sk-bbb"}

	rec := g.do(http.MethodPost, "/admin/reload-keys", "sk-aaa")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string `json:"status"`
		KeysLoaded int    `json:"keys_loaded"`
		Message    string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.KeysLoaded)

	// Old key stops working, new key starts.
	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodGet, "/v1/models", "sk-aaa").Code)
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/v1/models", "sk-bbb").Code)
}

func TestServer_ReloadRequiresAuth(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa"})

	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodGet, "/admin/reload-keys", "").Code)
	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodGet, "/admin/reload-keys", "sk-zzz").Code)
	assert.Equal(t, int32(0), g.provider.fetches.Load())
}

func TestServer_ReloadFailureLeavesCacheUntouched(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]string{"team-a": "sk-aaa"})
	g.provider.err = secrets.ErrBackendUnavailable

	rec := g.do(http.MethodPost, "/admin/reload-keys", "sk-aaa")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])

	// The previous key set still validates.
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/v1/models", "sk-aaa").Code)
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)

	rec := g.do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	g.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	g.server.cfg.Port = 0

	assert.False(t, g.server.IsRunning())
	require.NoError(t, g.server.Stop(context.Background()))
}

func TestServer_QueryStringForwarded(t *testing.T) {
	t.Parallel()

	var gotQuery atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	cache := auth.NewCache()
	cache.Replace(auth.NewKeySet(map[string]string{"a": "sk-aaa"}))
	forwarder, err := proxy.NewForwarder(upstream.URL)
	require.NoError(t, err)

	srv := New(Config{ServiceName: "llmgw"},
		auth.NewGuard("X-API-Key", cache), cache,
		NewReloader(&stubProvider{}, cache), forwarder)

	req := httptest.NewRequest(http.MethodGet, "/v1/models?limit=5&cursor=abc", nil)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	req.Header.Set("X-API-Key", "sk-aaa")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "limit=5&cursor=abc", gotQuery.Load())
}

func TestServer_SlowUpstreamWithinCeiling(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	cache := auth.NewCache()
	cache.Replace(auth.NewKeySet(map[string]string{"a": "sk-aaa"}))
	forwarder, err := proxy.NewForwarder(upstream.URL, proxy.WithTimeout(5*time.Second))
	require.NoError(t, err)

	srv := New(Config{ServiceName: "llmgw"},
		auth.NewGuard("X-API-Key", cache), cache,
		NewReloader(&stubProvider{}, cache), forwarder)

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("X-API-Key", "sk-aaa")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
