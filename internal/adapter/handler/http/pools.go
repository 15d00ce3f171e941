package http

import (
	"net/http"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Pool-manager API pod states
const (
	podStateRunning   = "running"
	usageStatusInUse  = "in-use"
	usageStatusUnused = "available"
)

// PoolAPIHandler serves the pool-manager API backed by the in-process pool manager.
// Every call authenticates with the pool's own API key as a bearer token.
type PoolAPIHandler struct {
	pools *service.PoolManager
	log   *zap.Logger
}

func NewPoolAPIHandler(pools *service.PoolManager, log *zap.Logger) *PoolAPIHandler {
	return &PoolAPIHandler{pools: pools, log: log}
}

// open authenticates the request against the pool in the URL, creating it on first use
func (h *PoolAPIHandler) open(w http.ResponseWriter, r *http.Request) (domain.Pool, bool) {
	name := chi.URLParam(r, "id")
	key := bearerToken(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return domain.Pool{}, false
	}
	pool, err := h.pools.OpenPool(name, key)
	if err != nil {
		handleError(w, r, h.log, err)
		return domain.Pool{}, false
	}
	return pool, true
}

// GetPool handles GET /pools/{id}
func (h *PoolAPIHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.open(w, r)
	if !ok {
		return
	}
	status, err := h.pools.GetPoolStatus(pool.Name)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolInfo(status))
}

// ListWorkspaces handles GET /pools/{id}/workspaces
func (h *PoolAPIHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.open(w, r)
	if !ok {
		return
	}
	status, err := h.pools.GetPoolStatus(pool.Name)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	pods := make([]port.PoolDescriptor, 0, len(status.Pods))
	for _, pod := range status.Pods {
		pods = append(pods, toDescriptor(pod))
	}
	writeJSON(w, http.StatusOK, pods)
}

type minimumVMsRequest struct {
	MinimumVMs *int `json:"minimum_vms"`
}

// UpdatePool handles PUT /pools/{id}
func (h *PoolAPIHandler) UpdatePool(w http.ResponseWriter, r *http.Request) {
	pool, ok := h.open(w, r)
	if !ok {
		return
	}

	var req minimumVMsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	if req.MinimumVMs == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "minimum_vms is required")
		return
	}

	updated, err := h.pools.SetMinimumVMs(pool.Name, *req.MinimumVMs)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func toPoolInfo(status domain.PoolStatus) port.PoolInfo {
	return port.PoolInfo{
		ID:   status.Name,
		Name: status.Name,
		Status: port.PoolCounts{
			Running: status.Total,
			Used:    status.Claimed,
			Unused:  status.Available,
		},
	}
}

func toDescriptor(pod domain.Pod) port.PoolDescriptor {
	usage := usageStatusUnused
	if pod.IsClaimed() {
		usage = usageStatusInUse
	}
	return port.PoolDescriptor{
		Subdomain:     pod.Subdomain,
		State:         podStateRunning,
		UsageStatus:   usage,
		FQDN:          pod.FQDN,
		URL:           pod.URL,
		Password:      pod.Password,
		PortMappings:  pod.PortMappings,
		Repositories:  nonNil(pod.Repositories),
		Branches:      nonNil(pod.Branches),
		ResourceUsage: pod.ResourceUsage,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
