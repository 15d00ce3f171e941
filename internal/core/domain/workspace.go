package domain

import "time"

// Workspace carries the fleet sizing configuration of a tenant workspace
type Workspace struct {
	ID         string    `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	PoolName   string    `json:"pool_name"`
	PoolAPIKey string    `json:"-"`
	MinimumVMs int       `json:"minimum_vms"`
	UpdatedAt  time.Time `json:"updated_at"`
}
