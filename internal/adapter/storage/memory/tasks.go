// Package memory provides process-local implementations of the storage ports,
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
)

type taskRepository struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

// NewTaskRepository creates an empty in-memory task store
func NewTaskRepository() port.TaskRepository {
	return &taskRepository{tasks: make(map[string]*domain.Task)}
}

func (r *taskRepository) Save(_ context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s already exists", domain.ErrConflict, task.ID)
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(task), nil
}

// ApplyWorkflowStatus mirrors the conditional UPDATE of the postgres adapter
func (r *taskRepository) ApplyWorkflowStatus(_ context.Context, id string, status domain.WorkflowStatus, at time.Time) (*domain.Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, false, domain.ErrTaskNotFound
	}
	if task.WorkflowStatus.IsTerminal() {
		return copyTask(task), false, nil
	}
	applied := task.ApplyStatus(status, at)
	return copyTask(task), applied, nil
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.WorkflowStartedAt != nil {
		v := *t.WorkflowStartedAt
		c.WorkflowStartedAt = &v
	}
	if t.WorkflowCompletedAt != nil {
		v := *t.WorkflowCompletedAt
		c.WorkflowCompletedAt = &v
	}
	if t.StakworkProjectID != nil {
		v := *t.StakworkProjectID
		c.StakworkProjectID = &v
	}
	return &c
}
