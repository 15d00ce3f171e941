package domain

import "time"

// ThinkingArtifact is one logged step of a workflow engine run
type ThinkingArtifact struct {
	StepID    string `json:"stepId"`
	Name      string `json:"name"`
	Log       string `json:"log,omitempty"`
	Output    string `json:"output,omitempty"`
	StepState string `json:"stepState"`
}

// Run represents a workflow engine execution started for a workspace
type Run struct {
	ID                string             `json:"id"`
	WorkspaceID       string             `json:"workspace_id"`
	TaskID            string             `json:"task_id,omitempty"`
	ProjectID         *int64             `json:"project_id,omitempty"` // Engine-side project id
	Status            WorkflowStatus     `json:"status"`
	ThinkingArtifacts []ThinkingArtifact `json:"thinking_artifacts,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
