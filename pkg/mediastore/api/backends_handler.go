package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/artreg/mediastore/pkg/mediastore"
)

// BackendsHandler exposes the registry's usage snapshots for the
// operator dashboard.
type BackendsHandler struct {
	service mediastore.Service
}

// NewBackendsHandler creates a backends handler backed by the given service
func NewBackendsHandler(service mediastore.Service) *BackendsHandler {
	return &BackendsHandler{service: service}
}

// Routes returns the router for backend endpoints
func (h *BackendsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListBackends)
	return r
}

// BackendResponse represents one backend's last-known usage snapshot
type BackendResponse struct {
	ID           string     `json:"id"`
	IsActive     bool       `json:"is_active"`
	UsedBytes    int64      `json:"used_bytes"`
	TotalBytes   int64      `json:"total_bytes"`
	UsageRatio   float64    `json:"usage_ratio"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
}

// ListBackends returns the active backends with their usage figures.
func (h *BackendsHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	backends, err := h.service.ListBackends(r.Context())
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	resp := make([]BackendResponse, 0, len(backends))
	for _, backend := range backends {
		resp = append(resp, BackendResponse{
			ID:           backend.ID,
			IsActive:     backend.IsActive,
			UsedBytes:    backend.UsedBytes,
			TotalBytes:   backend.TotalBytes,
			UsageRatio:   backend.UsageRatio(),
			LastPolledAt: backend.LastPolledAt,
		})
	}

	render.JSON(w, r, resp)
}
