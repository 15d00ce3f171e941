// Package stakwork is the HTTP client of the external workflow engine.
package stakwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

// NewClient builds a workflow engine client. Deadlines come from the caller's context.
func NewClient(baseURL, apiKey string, log *zap.Logger) port.WorkflowEngine {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		log:     log,
	}
}

// stepID accepts both numeric and string step ids
type stepID string

func (id *stepID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = stepID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("step id: %w", err)
	}
	*id = stepID(n.String())
	return nil
}

type artifactsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Steps []struct {
			ID        stepID `json:"id"`
			Name      string `json:"name"`
			Log       string `json:"log"`
			Output    string `json:"output"`
			StepState string `json:"step_state"`
		} `json:"thinking_artifacts"`
	} `json:"data"`
	Error string `json:"error"`
}

func (c *client) GetThinkingArtifacts(ctx context.Context, projectID int64) ([]domain.ThinkingArtifact, error) {
	reqURL := fmt.Sprintf("%s/projects/%d/thinking_artifacts", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("workflow engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result artifactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("JSON decode failed: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("workflow engine error: %s", result.Error)
	}

	artifacts := make([]domain.ThinkingArtifact, 0, len(result.Data.Steps))
	for _, s := range result.Data.Steps {
		artifacts = append(artifacts, domain.ThinkingArtifact{
			StepID:    string(s.ID),
			Name:      s.Name,
			Log:       s.Log,
			Output:    s.Output,
			StepState: s.StepState,
		})
	}
	c.log.Debug("Fetched thinking artifacts", zap.Int64("project_id", projectID), zap.Int("steps", len(artifacts)))
	return artifacts, nil
}
