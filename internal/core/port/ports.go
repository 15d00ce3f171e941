// Package port provides behavior interfaces that connects service & storage & handler.
package port

import (
	"context"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
)

// TaskRepository defines how tasks are persisted
type TaskRepository interface {
	Save(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// ApplyWorkflowStatus performs a single conditional update that only
	// succeeds while the stored status is non-terminal. applied is false
	// when the row was left untouched; the returned task is the stored state.
	ApplyWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus, at time.Time) (task *domain.Task, applied bool, err error)
}

// RunRepository defines how workflow engine runs are persisted
type RunRepository interface {
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	SaveThinkingArtifacts(ctx context.Context, id string, artifacts []domain.ThinkingArtifact) error
}

// WorkspaceRepository defines how workspace fleet settings are persisted
type WorkspaceRepository interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error)
	UpdateMinimumVMs(ctx context.Context, slug string, minimumVMs int) (*domain.Workspace, error)
}

// Broadcaster fans events out to real-time subscribers
type Broadcaster interface {
	Broadcast(ctx context.Context, event domain.Event) error
}

// Subscriber streams events published on a channel until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error)
}

// EventQueue is a durable event stream (RabbitMQ) that also acts as a Broadcaster
type EventQueue interface {
	Broadcaster
	// ConsumeEvents binds queue to bindingKey and runs handler for each event until ctx is done.
	// A handler error requeues the message.
	ConsumeEvents(ctx context.Context, queue, bindingKey string, handler func(domain.Event) error) error
	Close() error
}

// DeliveryStore remembers webhook delivery ids for replay protection
type DeliveryStore interface {
	// MarkDelivered returns false when id was already recorded within ttl
	MarkDelivered(ctx context.Context, id string, ttl time.Duration) (bool, error)
	// Forget drops id so a failed delivery can be retried
	Forget(ctx context.Context, id string) error
}

// Cache is a byte-oriented TTL key-value store
type Cache interface {
	// Get returns nil without error on a miss
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// WorkflowEngine defines how we talk to the external workflow engine
type WorkflowEngine interface {
	GetThinkingArtifacts(ctx context.Context, projectID int64) ([]domain.ThinkingArtifact, error)
}

// PoolDescriptor is a pod as reported by the pool-manager API
type PoolDescriptor struct {
	Subdomain     string               `json:"subdomain"`
	State         string               `json:"state"`
	UsageStatus   string               `json:"usage_status"`
	FQDN          string               `json:"fqdn"`
	URL           string               `json:"url"`
	Password      string               `json:"password"`
	PortMappings  map[string]string    `json:"portMappings"`
	Repositories  []string             `json:"repositories"`
	Branches      []string             `json:"branches"`
	ResourceUsage domain.ResourceUsage `json:"resource_usage"`
}

// PoolCounts is the status block of the pool-manager API
type PoolCounts struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Used    int `json:"used"`
	Unused  int `json:"unused"`
}

// PoolInfo is the pool-manager API view of a pool
type PoolInfo struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status PoolCounts `json:"status"`
}

// FleetClient defines how we talk to the pool-manager API
type FleetClient interface {
	GetPool(ctx context.Context, poolID, apiKey string) (*PoolInfo, error)
	ListPoolWorkspaces(ctx context.Context, poolID, apiKey string) ([]PoolDescriptor, error)
	UpdateMinimumVMs(ctx context.Context, poolName, apiKey string, minimumVMs int) error
}

// MonitoringService defines how we fetch live pod metrics (Prometheus)
type MonitoringService interface {
	GetPodMetrics(ctx context.Context, podID string) (domain.ResourceUsage, error)
	// GetAllPodMetrics fetches every pod's usage in one round trip, keyed by pod id
	GetAllPodMetrics(ctx context.Context) (map[string]domain.ResourceUsage, error)
}
