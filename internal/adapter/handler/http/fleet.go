package http

import (
	"net/http"
	"strings"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FleetHandler exposes pool manager operations to super admins
type FleetHandler struct {
	pools *service.PoolManager
	log   *zap.Logger
}

func NewFleetHandler(pools *service.PoolManager, log *zap.Logger) *FleetHandler {
	return &FleetHandler{pools: pools, log: log}
}

type createPoolRequest struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// ListPools handles GET /api/fleet/pools
func (h *FleetHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.pools.Pools())
}

// CreatePool handles POST /api/fleet/pools
func (h *FleetHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "name is required")
		return
	}
	writeData(w, http.StatusOK, h.pools.GetOrCreatePool(req.Name, req.APIKey))
}

// PoolStatus handles GET /api/fleet/pools/{name}
func (h *FleetHandler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.pools.GetPoolStatus(chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

type claimRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// Claim handles POST /api/fleet/pools/{name}/claim
func (h *FleetHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)
	if req.WorkspaceID == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "workspace_id is required")
		return
	}

	pod, err := h.pools.ClaimPod(chi.URLParam(r, "name"), req.WorkspaceID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, pod)
}

// Release handles POST /api/fleet/pods/{id}/release
func (h *FleetHandler) Release(w http.ResponseWriter, r *http.Request) {
	pod, err := h.pools.ReleasePod(chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, pod)
}

type repositoriesRequest struct {
	Repositories []string `json:"repositories"`
}

// UpdateRepositories handles PUT /api/fleet/pods/{id}/repositories
func (h *FleetHandler) UpdateRepositories(w http.ResponseWriter, r *http.Request) {
	var req repositoriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}

	pod, err := h.pools.UpdatePodRepositories(chi.URLParam(r, "id"), req.Repositories)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, pod)
}

// GetPod handles GET /api/fleet/pods/{id}
func (h *FleetHandler) GetPod(w http.ResponseWriter, r *http.Request) {
	pod, ok := h.pools.GetPod(chi.URLParam(r, "id"))
	if !ok {
		handleError(w, r, h.log, domain.ErrPodNotFound)
		return
	}
	writeData(w, http.StatusOK, pod)
}

// ClaimedBy handles GET /api/fleet/claims/{workspaceId}
func (h *FleetHandler) ClaimedBy(w http.ResponseWriter, r *http.Request) {
	pod, ok := h.pools.FindClaimedPod(chi.URLParam(r, "workspaceId"))
	if !ok {
		handleError(w, r, h.log, domain.ErrPodNotFound)
		return
	}
	writeData(w, http.StatusOK, pod)
}

// Reset handles POST /api/fleet/reset
func (h *FleetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.pools.Reset()
	if p, ok := PrincipalFrom(r.Context()); ok {
		h.log.Warn("Fleet reset", zap.String("user_id", p.UserID))
	}
	writeData(w, http.StatusOK, h.pools.Pools())
}
