package http

import (
	"net/http"

	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RunHandler struct {
	artifacts *service.ArtifactService
	log       *zap.Logger
}

func NewRunHandler(artifacts *service.ArtifactService, log *zap.Logger) *RunHandler {
	return &RunHandler{artifacts: artifacts, log: log}
}

// Thinking handles GET /api/runs/{id}/thinking
func (h *RunHandler) Thinking(w http.ResponseWriter, r *http.Request) {
	result, err := h.artifacts.GetThinkingArtifacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
