// Package poolapi is the HTTP client of the external pool-manager API.
package poolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the pool-manager API client settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

type client struct {
	baseURL string
	http    *http.Client
	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) port.FleetClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

func (c *client) GetPool(ctx context.Context, poolID, apiKey string) (*port.PoolInfo, error) {
	var info port.PoolInfo
	if err := c.do(ctx, http.MethodGet, "/pools/"+url.PathEscape(poolID), apiKey, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *client) ListPoolWorkspaces(ctx context.Context, poolID, apiKey string) ([]port.PoolDescriptor, error) {
	var pods []port.PoolDescriptor
	if err := c.do(ctx, http.MethodGet, "/pools/"+url.PathEscape(poolID)+"/workspaces", apiKey, nil, &pods); err != nil {
		return nil, err
	}
	return pods, nil
}

func (c *client) UpdateMinimumVMs(ctx context.Context, poolName, apiKey string, minimumVMs int) error {
	body := map[string]int{"minimum_vms": minimumVMs}
	return c.do(ctx, http.MethodPut, "/pools/"+url.PathEscape(poolName), apiKey, body, nil)
}

// do sends a bearer-authenticated JSON request and decodes a 2xx body into out
func (c *client) do(ctx context.Context, method, path, apiKey string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("pool manager url is not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("Pool manager call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pool manager returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JSON decode failed: %w", err)
	}
	return nil
}
