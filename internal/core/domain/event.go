package domain

import (
	"fmt"
	"time"
)

// Broadcast event names
const (
	EventWorkflowStatusUpdate      = "workflow-status-update"
	EventWorkspaceTaskStatusUpdate = "workspace-task-status-update"
	EventHighlightNodes            = "highlight-nodes"
)

// GraphHighlightChannel receives highlights that are not bound to a workspace
const GraphHighlightChannel = "graph-highlights"

// TaskChannel is the pub/sub channel carrying updates for a single task
func TaskChannel(taskID string) string {
	return fmt.Sprintf("task-%s", taskID)
}

// WorkspaceChannel is the pub/sub channel carrying updates for a workspace
func WorkspaceChannel(workspaceID string) string {
	return fmt.Sprintf("workspace-%s", workspaceID)
}

// Event is a broadcast envelope addressed to a single channel
type Event struct {
	Channel string `json:"channel"`
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

type TaskStatusEvent struct {
	TaskID         string         `json:"taskId"`
	WorkflowStatus WorkflowStatus `json:"workflowStatus"`
	Timestamp      time.Time      `json:"timestamp"`
}

type WorkspaceTaskEvent struct {
	TaskID         string         `json:"taskId"`
	WorkspaceID    string         `json:"workspaceId"`
	Title          string         `json:"title"`
	WorkflowStatus WorkflowStatus `json:"workflowStatus"`
	Timestamp      time.Time      `json:"timestamp"`
}

type HighlightEvent struct {
	NodeIDs     []string  `json:"nodeIds"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Depth       int       `json:"depth"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
}
