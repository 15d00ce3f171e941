package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
)

// WorkspaceRepository is the in-memory workspace store. SaveWorkspace is exposed for seeding.
type WorkspaceRepository struct {
	mu         sync.Mutex
	workspaces map[string]*domain.Workspace // keyed by slug
	now        func() time.Time
}

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{
		workspaces: make(map[string]*domain.Workspace),
		now:        time.Now,
	}
}

func (r *WorkspaceRepository) SaveWorkspace(_ context.Context, ws *domain.Workspace) error {
	if ws == nil || ws.Slug == "" {
		return fmt.Errorf("%w: workspace slug is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c := *ws
	r.workspaces[ws.Slug] = &c
	return nil
}

func (r *WorkspaceRepository) GetBySlug(_ context.Context, slug string) (*domain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[slug]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	c := *ws
	return &c, nil
}

func (r *WorkspaceRepository) UpdateMinimumVMs(_ context.Context, slug string, minimumVMs int) (*domain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[slug]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	ws.MinimumVMs = minimumVMs
	ws.UpdatedAt = r.now().UTC()
	c := *ws
	return &c, nil
}
