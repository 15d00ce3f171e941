package domain

import (
	"time"
)

type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "PENDING"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowStatusCompleted  WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed     WorkflowStatus = "FAILED"
	WorkflowStatusHalted     WorkflowStatus = "HALTED"
)

// externalStatuses maps the workflow engine's project_status vocabulary.
// Matching is exact; anything not listed is ignored by the webhook.
var externalStatuses = map[string]WorkflowStatus{
	"completed":   WorkflowStatusCompleted,
	"failed":      WorkflowStatusFailed,
	"halted":      WorkflowStatusHalted,
	"in_progress": WorkflowStatusInProgress,
	"running":     WorkflowStatusInProgress,
}

// ParseExternalStatus translates an engine status string
func ParseExternalStatus(s string) (WorkflowStatus, bool) {
	status, ok := externalStatuses[s]
	return status, ok
}

// Valid reports whether s is a member of the closed status set
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusInProgress,
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusHalted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusHalted:
		return true
	}
	return false
}

// CanTransitionTo enforces one-directional movement toward terminal states.
// Re-sending the current non-terminal status is allowed.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	if s == WorkflowStatusInProgress && next == WorkflowStatusPending {
		return false
	}
	return true
}

// TerminalWorkflowStatuses lists the states that end a workflow
func TerminalWorkflowStatuses() []WorkflowStatus {
	return []WorkflowStatus{WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusHalted}
}

// Task represents a unit of work driven by the external workflow engine
type Task struct {
	ID                  string         `json:"id"`
	WorkspaceID         string         `json:"workspace_id"`
	Title               string         `json:"title"`
	WorkflowStatus      WorkflowStatus `json:"workflow_status"`
	WorkflowStartedAt   *time.Time     `json:"workflow_started_at,omitempty"`
	WorkflowCompletedAt *time.Time     `json:"workflow_completed_at,omitempty"`
	StakworkProjectID   *int64         `json:"stakwork_project_id,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ApplyStatus moves the task to next and stamps the lifecycle timestamps.
// It returns false when the transition is not allowed.
func (t *Task) ApplyStatus(next WorkflowStatus, at time.Time) bool {
	if !t.WorkflowStatus.CanTransitionTo(next) {
		return false
	}
	t.WorkflowStatus = next
	if next == WorkflowStatusInProgress && t.WorkflowStartedAt == nil {
		started := at
		t.WorkflowStartedAt = &started
	}
	if next.IsTerminal() && t.WorkflowCompletedAt == nil {
		completed := at
		t.WorkflowCompletedAt = &completed
	}
	t.UpdatedAt = at
	return true
}
