package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
)

// RunRepository is the in-memory run store. SaveRun is exposed for seeding.
type RunRepository struct {
	mu   sync.Mutex
	runs map[string]*domain.Run
	now  func() time.Time
}

func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs: make(map[string]*domain.Run),
		now:  time.Now,
	}
}

func (r *RunRepository) SaveRun(_ context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = copyRun(run)
	return nil
}

func (r *RunRepository) GetRun(_ context.Context, id string) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return copyRun(run), nil
}

func (r *RunRepository) SaveThinkingArtifacts(_ context.Context, id string, artifacts []domain.ThinkingArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.ThinkingArtifacts = append([]domain.ThinkingArtifact(nil), artifacts...)
	run.UpdatedAt = r.now().UTC()
	return nil
}

func copyRun(run *domain.Run) *domain.Run {
	c := *run
	if run.ProjectID != nil {
		v := *run.ProjectID
		c.ProjectID = &v
	}
	c.ThinkingArtifacts = append([]domain.ThinkingArtifact(nil), run.ThinkingArtifacts...)
	return &c
}
