// Package http provides the chi router, middleware & handlers of the api server.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"go.uber.org/zap"
)

// Error codes of the JSON error envelope
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeMisconfigured    = "SERVER_MISCONFIGURED"
	CodeUpstreamFailure  = "UPSTREAM_FAILURE"
	CodePoolExhausted    = "POOL_EXHAUSTED"
	CodePoolLimit        = "POOL_LIMIT_REACHED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

type response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// internalErrorBody is sent when a response cannot be encoded
var internalErrorBody = []byte(`{"success":false,"error":{"code":"` + CodeInternal + `","message":"Internal server error"}}` + "\n")

// writeJSON encodes v before touching the response so an encoding failure
// still yields a well-formed 500
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("Failed to encode response", zap.Int("status", status), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalErrorBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeData wraps data in the success envelope
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// handleError maps domain errors onto status codes. Anything unrecognised is
// logged and answered with a generic 500 so internals never leak.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, CodeForbidden, "Forbidden")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, domain.ErrPoolExhausted):
		writeError(w, http.StatusServiceUnavailable, CodePoolExhausted, "Pool has no capacity left")
	case errors.Is(err, domain.ErrPoolLimitReached):
		writeError(w, http.StatusServiceUnavailable, CodePoolLimit, "No more pools can be created")
	case errors.Is(err, domain.ErrServerMisconfiguration):
		log.Error("Server misconfiguration", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeMisconfigured, "Server misconfiguration")
	case errors.Is(err, domain.ErrUpstreamFailure):
		log.Warn("Upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeUpstreamFailure, "Upstream service failure")
	default:
		log.Error("Unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

// decodeJSON reads a JSON body into v, rejecting trailing data
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
