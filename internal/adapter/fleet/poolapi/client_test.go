package poolapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_GetPoolAndWorkspaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/pools/acme":
			_ = json.NewEncoder(w).Encode(port.PoolInfo{ID: "acme", Name: "acme", Status: port.PoolCounts{Running: 3, Used: 1, Unused: 2}})
		case "/pools/acme/workspaces":
			_ = json.NewEncoder(w).Encode([]port.PoolDescriptor{{Subdomain: "pod-1", UsageStatus: "in-use"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"}, zap.NewNop())

	info, err := c.GetPool(context.Background(), "acme", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Status.Running)

	pods, err := c.ListPoolWorkspaces(context.Background(), "acme", "key-1")
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "in-use", pods[0].UsageStatus)
}

func TestClient_UpdateMinimumVMs(t *testing.T) {
	var got map[string]int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/pools/acme", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, c.UpdateMinimumVMs(context.Background(), "acme", "k", 4))
	assert.Equal(t, map[string]int{"minimum_vms": 4}, got)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	err := c.UpdateMinimumVMs(context.Background(), "acme", "bad", 2)
	assert.ErrorContains(t, err, "401")

	unconfigured := NewClient(Config{}, zap.NewNop())
	_, err = unconfigured.GetPool(context.Background(), "acme", "k")
	assert.Error(t, err)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 0.001, Burst: 1}, zap.NewNop())
	require.NoError(t, c.UpdateMinimumVMs(context.Background(), "acme", "k", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.UpdateMinimumVMs(ctx, "acme", "k", 1), "second call must wait for a token")
}
