package service

import (
	"net/http"
	"time"

	"github.com/dancelink/platform/internal/httputil"
)

// =============================================================================
// Standard Response Types
// =============================================================================

// HealthResponse is the standard response for /health endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// InfoResponse is the standard response for /info endpoint.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Workers    int            `json:"workers"`
	Jobs       int            `json:"jobs"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// =============================================================================
// Standard Handlers
// =============================================================================

// HealthHandler re-probes the store and answers 503 when it is unreachable.
func HealthHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = s.CheckHealth(r.Context())
		status := s.HealthStatus()

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, HealthResponse{
			Status:    status,
			Service:   s.Name(),
			Version:   s.Version(),
			Details:   s.HealthDetails(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// InfoHandler returns a standardized /info handler for BaseService.
func InfoHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InfoResponse{
			Status:    "active",
			Service:   s.Name(),
			Version:   s.Version(),
			Workers:   s.WorkerCount(),
			Jobs:      s.JobCount(),
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if s.statsFn != nil {
			resp.Statistics = s.statsFn()
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterStandardRoutes registers /health and /info.
func (b *BaseService) RegisterStandardRoutes() {
	b.router.HandleFunc("/health", HealthHandler(b)).Methods(http.MethodGet)
	b.router.HandleFunc("/info", InfoHandler(b)).Methods(http.MethodGet)
}
