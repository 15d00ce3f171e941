package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
)

var errBroker = errors.New("broker unavailable")

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.err
}

func (b *recordingBroadcaster) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

// racingTaskRepository reports a stored terminal state on every conditional update,
// as if another callback committed first.
type racingTaskRepository struct {
	port.TaskRepository
	winner domain.WorkflowStatus
}

func (r *racingTaskRepository) ApplyWorkflowStatus(ctx context.Context, id string, _ domain.WorkflowStatus, _ time.Time) (*domain.Task, bool, error) {
	task, err := r.TaskRepository.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	task.WorkflowStatus = r.winner
	return task, false, nil
}

type stubEngine struct {
	mu        sync.Mutex
	artifacts []domain.ThinkingArtifact
	err       error
	delay     time.Duration
	calls     int
}

func (e *stubEngine) GetThinkingArtifacts(ctx context.Context, _ int64) ([]domain.ThinkingArtifact, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.artifacts, nil
}

func (e *stubEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubFleetClient struct {
	mu         sync.Mutex
	updates    []int
	updateErr  error
	info       *port.PoolInfo
	workspaces []port.PoolDescriptor
	readErr    error
}

func (c *stubFleetClient) GetPool(_ context.Context, _, _ string) (*port.PoolInfo, error) {
	return c.info, c.readErr
}

func (c *stubFleetClient) ListPoolWorkspaces(_ context.Context, _, _ string) ([]port.PoolDescriptor, error) {
	return c.workspaces, c.readErr
}

func (c *stubFleetClient) UpdateMinimumVMs(_ context.Context, _, _ string, minimumVMs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, minimumVMs)
	return c.updateErr
}

type stubMonitor struct {
	usage    map[string]domain.ResourceUsage
	batchErr error
	single   int
	// onBatch runs while the batch query is in flight
	onBatch func()
}

func (m *stubMonitor) GetAllPodMetrics(context.Context) (map[string]domain.ResourceUsage, error) {
	if m.onBatch != nil {
		m.onBatch()
	}
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	return m.usage, nil
}

func (m *stubMonitor) GetPodMetrics(_ context.Context, podID string) (domain.ResourceUsage, error) {
	m.single++
	usage, ok := m.usage[podID]
	if !ok {
		return domain.ResourceUsage{}, errors.New("no samples")
	}
	return usage, nil
}
