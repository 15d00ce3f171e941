package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// Webhook actions reported back to the workflow engine
const (
	ActionUpdated   = "updated"
	ActionIgnored   = "ignored"
	ActionSkipped   = "skipped"
	ActionDuplicate = "duplicate"
)

// WorkflowResult is the outcome of a status callback
type WorkflowResult struct {
	TaskID         string                `json:"taskId"`
	WorkflowStatus domain.WorkflowStatus `json:"workflowStatus"`
	Action         string                `json:"action"`
}

// WorkflowService applies workflow engine status callbacks to tasks
type WorkflowService struct {
	tasks       port.TaskRepository
	broadcaster port.Broadcaster
	now         func() time.Time
	log         *zap.Logger
}

func NewWorkflowService(tasks port.TaskRepository, broadcaster port.Broadcaster, log *zap.Logger) *WorkflowService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowService{
		tasks:       tasks,
		broadcaster: broadcaster,
		now:         time.Now,
		log:         log,
	}
}

// HandleStatusWebhook maps externalStatus onto the task and broadcasts the change.
// Unknown statuses and transitions out of a terminal state leave the task untouched.
func (s *WorkflowService) HandleStatusWebhook(ctx context.Context, taskID, externalStatus string) (*WorkflowResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	next, ok := domain.ParseExternalStatus(externalStatus)
	if !ok {
		s.log.Info("Ignoring unknown workflow status",
			zap.String("task_id", taskID),
			zap.String("project_status", externalStatus))
		return &WorkflowResult{TaskID: taskID, WorkflowStatus: task.WorkflowStatus, Action: ActionIgnored}, nil
	}

	if !task.WorkflowStatus.CanTransitionTo(next) {
		s.log.Info("Skipping non-monotonic workflow transition",
			zap.String("task_id", taskID),
			zap.String("from", string(task.WorkflowStatus)),
			zap.String("to", string(next)))
		return &WorkflowResult{TaskID: taskID, WorkflowStatus: task.WorkflowStatus, Action: ActionSkipped}, nil
	}

	at := s.now().UTC()
	updated, applied, err := s.tasks.ApplyWorkflowStatus(ctx, taskID, next, at)
	if err != nil {
		return nil, fmt.Errorf("apply workflow status: %w", err)
	}
	if !applied {
		// Lost a race with another callback that already reached a terminal state
		return &WorkflowResult{TaskID: taskID, WorkflowStatus: updated.WorkflowStatus, Action: ActionSkipped}, nil
	}

	s.log.Info("Workflow status updated",
		zap.String("task_id", taskID),
		zap.String("workspace_id", updated.WorkspaceID),
		zap.String("workflow_status", string(updated.WorkflowStatus)))

	s.broadcastStatus(ctx, updated, at)

	return &WorkflowResult{TaskID: taskID, WorkflowStatus: updated.WorkflowStatus, Action: ActionUpdated}, nil
}

// broadcastStatus notifies task and workspace subscribers. The database row is
// already committed, so failures are logged and dropped.
func (s *WorkflowService) broadcastStatus(ctx context.Context, task *domain.Task, at time.Time) {
	if s.broadcaster == nil {
		return
	}

	events := []domain.Event{
		{
			Channel: domain.TaskChannel(task.ID),
			Name:    domain.EventWorkflowStatusUpdate,
			Payload: domain.TaskStatusEvent{
				TaskID:         task.ID,
				WorkflowStatus: task.WorkflowStatus,
				Timestamp:      at,
			},
		},
		{
			Channel: domain.WorkspaceChannel(task.WorkspaceID),
			Name:    domain.EventWorkspaceTaskStatusUpdate,
			Payload: domain.WorkspaceTaskEvent{
				TaskID:         task.ID,
				WorkspaceID:    task.WorkspaceID,
				Title:          task.Title,
				WorkflowStatus: task.WorkflowStatus,
				Timestamp:      at,
			},
		},
	}

	for _, event := range events {
		if err := s.broadcaster.Broadcast(ctx, event); err != nil {
			s.log.Warn("Failed to broadcast workflow status",
				zap.String("channel", event.Channel),
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
	}
}
