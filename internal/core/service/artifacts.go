package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// DefaultEngineTimeout bounds a single workflow engine call
const DefaultEngineTimeout = 10 * time.Second

// Artifact sources
const (
	SourceCache  = "cache"
	SourceEngine = "engine"
	SourceNone   = "none"
)

type ThinkingArtifacts struct {
	RunID     string                    `json:"runId"`
	Artifacts []domain.ThinkingArtifact `json:"artifacts"`
	Source    string                    `json:"source"`
}

// ArtifactService serves the thinking steps of workflow engine runs
type ArtifactService struct {
	runs    port.RunRepository
	engine  port.WorkflowEngine
	timeout time.Duration
	log     *zap.Logger
}

func NewArtifactService(runs port.RunRepository, engine port.WorkflowEngine, timeout time.Duration, log *zap.Logger) *ArtifactService {
	if timeout <= 0 {
		timeout = DefaultEngineTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ArtifactService{
		runs:    runs,
		engine:  engine,
		timeout: timeout,
		log:     log,
	}
}

// GetThinkingArtifacts returns cached artifacts when the run has them, otherwise
// fetches them live. Artifacts of a finished run are cached for later reads.
func (s *ArtifactService) GetThinkingArtifacts(ctx context.Context, runID string) (*ThinkingArtifacts, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if len(run.ThinkingArtifacts) > 0 {
		return &ThinkingArtifacts{RunID: run.ID, Artifacts: run.ThinkingArtifacts, Source: SourceCache}, nil
	}
	if run.ProjectID == nil {
		// Not submitted to the engine yet
		return &ThinkingArtifacts{RunID: run.ID, Artifacts: []domain.ThinkingArtifact{}, Source: SourceNone}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	artifacts, err := s.engine.GetThinkingArtifacts(callCtx, *run.ProjectID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("Workflow engine timed out", zap.String("run_id", run.ID), zap.Duration("timeout", s.timeout))
		} else {
			s.log.Warn("Workflow engine call failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: fetch thinking artifacts: %v", domain.ErrUpstreamFailure, err)
	}
	if artifacts == nil {
		artifacts = []domain.ThinkingArtifact{}
	}

	if run.Status.IsTerminal() && len(artifacts) > 0 {
		if err := s.runs.SaveThinkingArtifacts(ctx, run.ID, artifacts); err != nil {
			s.log.Warn("Failed to cache thinking artifacts", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	return &ThinkingArtifacts{RunID: run.ID, Artifacts: artifacts, Source: SourceEngine}, nil
}
