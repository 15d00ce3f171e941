package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// DefaultMaxMinimumVMs caps the per-workspace minimumVms setting
const DefaultMaxMinimumVMs = 20

const poolOverviewTTL = 15 * time.Second

// PoolOverview is the pool-manager view of a workspace pool
type PoolOverview struct {
	Workspace  string                `json:"workspace"`
	Pool       *port.PoolInfo        `json:"pool"`
	Workspaces []port.PoolDescriptor `json:"workspaces"`
}

// FleetService keeps workspace fleet sizing in sync with the pool-manager API
type FleetService struct {
	workspaces port.WorkspaceRepository
	client     port.FleetClient
	cache      port.Cache
	maxVMs     int
	log        *zap.Logger
}

// NewFleetService wires the service; cache may be nil to always read through
func NewFleetService(workspaces port.WorkspaceRepository, client port.FleetClient, cache port.Cache, maxVMs int, log *zap.Logger) *FleetService {
	if maxVMs <= 0 {
		maxVMs = DefaultMaxMinimumVMs
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FleetService{
		workspaces: workspaces,
		client:     client,
		cache:      cache,
		maxVMs:     maxVMs,
		log:        log,
	}
}

// UpdateMinimumVMs stores the new minimum and then mirrors it to the pool-manager.
// The stored value is authoritative; a failed mirror is only logged.
func (s *FleetService) UpdateMinimumVMs(ctx context.Context, slug string, minimumVMs int) (*domain.Workspace, error) {
	if minimumVMs < 1 || minimumVMs > s.maxVMs {
		return nil, fmt.Errorf("%w: minimumVms must be between 1 and %d", domain.ErrValidation, s.maxVMs)
	}

	ws, err := s.workspaces.UpdateMinimumVMs(ctx, slug, minimumVMs)
	if err != nil {
		return nil, err
	}

	if ws.PoolName == "" || ws.PoolAPIKey == "" || s.client == nil {
		s.log.Debug("Workspace has no pool configured, skipping sync", zap.String("workspace", slug))
		return ws, nil
	}

	if err := s.client.UpdateMinimumVMs(ctx, ws.PoolName, ws.PoolAPIKey, minimumVMs); err != nil {
		s.log.Warn("Failed to sync minimumVms to pool manager",
			zap.String("workspace", slug),
			zap.String("pool", ws.PoolName),
			zap.Int("minimum_vms", minimumVMs),
			zap.Error(err))
	}
	return ws, nil
}

// PoolOverview reads the live pool state for a workspace. Results are cached briefly.
func (s *FleetService) PoolOverview(ctx context.Context, slug string) (*PoolOverview, error) {
	ws, err := s.workspaces.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ws.PoolName == "" || ws.PoolAPIKey == "" || s.client == nil {
		return nil, domain.ErrPoolNotFound
	}

	if cached := s.cachedOverview(ctx, ws); cached != nil {
		return cached, nil
	}

	info, err := s.client.GetPool(ctx, ws.PoolName, ws.PoolAPIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: get pool: %v", domain.ErrUpstreamFailure, err)
	}
	pods, err := s.client.ListPoolWorkspaces(ctx, ws.PoolName, ws.PoolAPIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: list pool workspaces: %v", domain.ErrUpstreamFailure, err)
	}
	if pods == nil {
		pods = []port.PoolDescriptor{}
	}

	overview := &PoolOverview{Workspace: ws.Slug, Pool: info, Workspaces: pods}
	s.storeOverview(ctx, ws, overview)
	return overview, nil
}

// overviewKey includes minimumVms so a resize never serves a stale overview
func overviewKey(ws *domain.Workspace) string {
	return fmt.Sprintf("pool-overview:%s:%d", ws.Slug, ws.MinimumVMs)
}

func (s *FleetService) cachedOverview(ctx context.Context, ws *domain.Workspace) *PoolOverview {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, overviewKey(ws))
	if err != nil {
		s.log.Warn("Pool overview cache read failed", zap.String("workspace", ws.Slug), zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}
	var overview PoolOverview
	if err := json.Unmarshal(data, &overview); err != nil {
		return nil
	}
	return &overview
}

func (s *FleetService) storeOverview(ctx context.Context, ws *domain.Workspace, overview *PoolOverview) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(overview)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, overviewKey(ws), data, poolOverviewTTL); err != nil {
		s.log.Warn("Pool overview cache write failed", zap.String("workspace", ws.Slug), zap.Error(err))
	}
}
