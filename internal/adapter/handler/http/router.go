package http

import (
	"net/http"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Auth       *TokenAuthenticator
	Webhooks   *WebhookHandler
	Pools      *PoolAPIHandler
	Fleet      *FleetHandler
	Workspaces *WorkspaceHandler
	Runs       *RunHandler
	Events     *EventStream
	Checks     map[string]HealthCheck
}

// NewRouter builds the chi router serving the whole HTTP surface
func NewRouter(h Handlers, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(recoverer(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", Health(h.Checks))

	r.Post("/webhook", h.Webhooks.WorkflowStatus)
	r.Post("/api/stakwork/webhook", h.Webhooks.WorkflowStatus)
	r.Post("/api/graph/webhook", h.Webhooks.GraphHighlight)

	// pool-manager API, authenticated per pool
	r.Route("/pools", func(r chi.Router) {
		r.Get("/{id}", h.Pools.GetPool)
		r.Get("/{id}/workspaces", h.Pools.ListWorkspaces)
		r.Put("/{id}", h.Pools.UpdatePool)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireRole(domain.RoleViewer))
		r.Get("/api/runs/{id}/thinking", h.Runs.Thinking)
		if h.Events != nil {
			r.Get("/ws", h.Events.Serve)
		}
	})

	r.Route("/api/workspaces/{slug}", func(r chi.Router) {
		r.Use(h.Auth.RequireRole(domain.RoleAdmin))
		r.Put("/pool-config", h.Workspaces.UpdatePoolConfig)
		r.Get("/pool", h.Workspaces.Pool)
	})

	r.Route("/api/fleet", func(r chi.Router) {
		r.Use(h.Auth.RequireRole(domain.RoleSuperAdmin))
		r.Get("/pools", h.Fleet.ListPools)
		r.Post("/pools", h.Fleet.CreatePool)
		r.Get("/pools/{name}", h.Fleet.PoolStatus)
		r.Post("/pools/{name}/claim", h.Fleet.Claim)
		r.Get("/pods/{id}", h.Fleet.GetPod)
		r.Post("/pods/{id}/release", h.Fleet.Release)
		r.Put("/pods/{id}/repositories", h.Fleet.UpdateRepositories)
		r.Get("/claims/{workspaceId}", h.Fleet.ClaimedBy)
		r.Post("/reset", h.Fleet.Reset)
	})

	return r
}
