// Package events serves event posting for organizers and event discovery
// for dancers.
package events

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/middleware"
	"github.com/dancelink/platform/internal/session"
)

// Service implements the events API.
type Service struct {
	backend storage.Backend
	catalog *config.Catalog
	logger  *logging.Logger
}

// Config configures the events service.
type Config struct {
	Backend storage.Backend
	Catalog *config.Catalog
	Logger  *logging.Logger
}

// New creates the service. A nil catalog uses the embedded default.
func New(cfg Config) *Service {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard("events")
	}
	return &Service{backend: cfg.Backend, catalog: catalog, logger: logger}
}

// RegisterRoutes mounts the event routes on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	dancer := middleware.RequireRole(session.RoleDancer)
	organizer := middleware.RequireRole(session.RoleOrganizer)

	r.Handle("/events", dancer(http.HandlerFunc(s.handleBrowse))).Methods(http.MethodGet)
	r.Handle("/events", organizer(http.HandlerFunc(s.handleCreate))).Methods(http.MethodPost)
	r.Handle("/events/{id}", organizer(http.HandlerFunc(s.handleDelete))).Methods(http.MethodDelete)
	r.Handle("/events/{id}/applicants", organizer(http.HandlerFunc(s.handleApplicants))).Methods(http.MethodGet)
	r.Handle("/organizer/events", organizer(http.HandlerFunc(s.handleListOwn))).Methods(http.MethodGet)
}
