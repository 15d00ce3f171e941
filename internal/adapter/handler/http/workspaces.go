package http

import (
	"net/http"

	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WorkspaceHandler serves workspace fleet sizing to workspace admins
type WorkspaceHandler struct {
	fleet *service.FleetService
	log   *zap.Logger
}

func NewWorkspaceHandler(fleet *service.FleetService, log *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{fleet: fleet, log: log}
}

type poolConfigRequest struct {
	MinimumVMs *int `json:"minimumVms"`
}

// UpdatePoolConfig handles PUT /api/workspaces/{slug}/pool-config
func (h *WorkspaceHandler) UpdatePoolConfig(w http.ResponseWriter, r *http.Request) {
	var req poolConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	if req.MinimumVMs == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "minimumVms is required")
		return
	}

	ws, err := h.fleet.UpdateMinimumVMs(r.Context(), chi.URLParam(r, "slug"), *req.MinimumVMs)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"slug":       ws.Slug,
		"minimumVms": ws.MinimumVMs,
	})
}

// Pool handles GET /api/workspaces/{slug}/pool
func (h *WorkspaceHandler) Pool(w http.ResponseWriter, r *http.Request) {
	overview, err := h.fleet.PoolOverview(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, overview)
}
