package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/internal/config"
	"github.com/lanternvc/lantern/internal/storage/sqlite"
)

func startTestServer(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()

	store, err := sqlite.New(":memory:", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Security.SecurityMode = "development"
	cfg.Security.RatePerSec = 1000
	cfg.Security.RateBurst = 1000
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, _, err := Start(ctx, cfg, store, nil, nil)
	require.NoError(t, err)
	return "http://" + addr
}

func get(t *testing.T, url string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func TestServer_HealthAndRoutes(t *testing.T) {
	base := startTestServer(t, nil)

	resp, body := get(t, base+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = get(t, base+"/api/graph/initial", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Contains(t, view, "entities")

	resp, _ = get(t, base+"/api/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SyncUnavailableWithoutRunner(t *testing.T) {
	base := startTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, base+"/api/sync", nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ProductionAuth(t *testing.T) {
	base := startTestServer(t, func(cfg *config.Config) {
		cfg.Security.SecurityMode = "production"
		cfg.Security.APIToken = "secret-token"
	})

	// Health stays open.
	resp, _ := get(t, base+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API routes require the token.
	resp, _ = get(t, base+"/api/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, base+"/api/stats", map[string]string{"Authorization": "Bearer secret-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
