package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"examgate/internal/infrastructure"
)

// Pinger is implemented by stores that can report backend reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and store readiness
type HealthHandler struct {
	store   Pinger // nil for the in-memory store
	started time.Time
	version string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(store Pinger, version string) *HealthHandler {
	return &HealthHandler{store: store, started: time.Now(), version: version}
}

// HealthResponse is the payload of GET /api/health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store"`
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Store:   "memory",
	}

	if h.store != nil {
		resp.Store = "postgres"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			infrastructure.LoggerWithContext(r.Context()).Warn("store ping failed",
				slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Store = "postgres: " + err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
	}

	render.JSON(w, r, resp)
}
