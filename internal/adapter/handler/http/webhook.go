package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"go.uber.org/zap"
)

// Webhook headers
const (
	HeaderSignature  = "x-signature"
	HeaderDeliveryID = "x-delivery-id"
	HeaderAPIKey     = "x-api-key"
)

// WebhookConfig holds the inbound webhook settings
type WebhookConfig struct {
	Secret       string
	GraphAPIKey  string
	MaxBodyBytes int64
	DeliveryTTL  time.Duration
}

// WebhookHandler serves the workflow status and graph highlight callbacks
type WebhookHandler struct {
	cfg        WebhookConfig
	workflow   *service.WorkflowService
	highlights *service.HighlightService
	deliveries port.DeliveryStore
	log        *zap.Logger
}

// NewWebhookHandler wires the handler; deliveries may be nil to disable replay protection
func NewWebhookHandler(cfg WebhookConfig, workflow *service.WorkflowService, highlights *service.HighlightService, deliveries port.DeliveryStore, log *zap.Logger) *WebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.DeliveryTTL <= 0 {
		cfg.DeliveryTTL = 24 * time.Hour
	}
	return &WebhookHandler{
		cfg:        cfg,
		workflow:   workflow,
		highlights: highlights,
		deliveries: deliveries,
		log:        log,
	}
}

type statusWebhookRequest struct {
	ProjectStatus *string `json:"project_status"`
	TaskID        string  `json:"task_id"`
}

// WorkflowStatus handles POST /api/stakwork/webhook. The raw body is read once
// so the HMAC is computed over exactly the bytes that were sent.
func (h *WebhookHandler) WorkflowStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	var req statusWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}

	if err := service.VerifySignature([]byte(h.cfg.Secret), body, r.Header.Get(HeaderSignature)); err != nil {
		if !errors.Is(err, domain.ErrServerMisconfiguration) {
			h.log.Warn("Webhook signature rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		}
		handleError(w, r, h.log, err)
		return
	}

	taskID := strings.TrimSpace(req.TaskID)
	if taskID == "" {
		taskID = strings.TrimSpace(r.URL.Query().Get("task_id"))
	}
	if taskID == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "task_id is required")
		return
	}
	if req.ProjectStatus == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "project_status is required")
		return
	}

	deliveryID := strings.TrimSpace(r.Header.Get(HeaderDeliveryID))
	if deliveryID != "" && h.deliveries != nil {
		first, err := h.deliveries.MarkDelivered(r.Context(), deliveryID, h.cfg.DeliveryTTL)
		if err != nil {
			// Replay protection is best-effort, process the callback anyway
			h.log.Warn("Delivery store unavailable", zap.Error(err))
			deliveryID = ""
		} else if !first {
			h.log.Debug("Duplicate webhook delivery", zap.String("delivery_id", deliveryID), zap.String("task_id", taskID))
			writeData(w, http.StatusOK, service.WorkflowResult{TaskID: taskID, Action: service.ActionDuplicate})
			return
		}
	}

	result, err := h.workflow.HandleStatusWebhook(r.Context(), taskID, *req.ProjectStatus)
	if err != nil {
		h.forgetDelivery(deliveryID)
		handleError(w, r, h.log, err)
		return
	}

	writeData(w, http.StatusOK, result)
}

// forgetDelivery lets the sender retry a delivery we failed to process
func (h *WebhookHandler) forgetDelivery(id string) {
	if id == "" || h.deliveries == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.deliveries.Forget(ctx, id); err != nil {
		h.log.Warn("Failed to forget delivery", zap.String("delivery_id", id), zap.Error(err))
	}
}

// GraphHighlight handles POST /api/graph/webhook
func (h *WebhookHandler) GraphHighlight(w http.ResponseWriter, r *http.Request) {
	if err := service.VerifyAPIKey(h.cfg.GraphAPIKey, r.Header.Get(HeaderAPIKey)); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	var req service.HighlightRequest
	if err := decodeJSON(limitBody(w, r, h.cfg.MaxBodyBytes), &req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			handleError(w, r, h.log, err)
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}

	event, err := h.highlights.Highlight(r.Context(), req)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

func limitBody(w http.ResponseWriter, r *http.Request, n int64) *http.Request {
	r.Body = http.MaxBytesReader(w, r.Body, n)
	return r
}
