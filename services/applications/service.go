package applications

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/middleware"
	"github.com/dancelink/platform/internal/session"
)

// Service exposes the lifecycle over HTTP.
type Service struct {
	backend   storage.Backend
	lifecycle *Lifecycle
	logger    *logging.Logger
}

// Config configures the applications service.
type Config struct {
	Backend   storage.Backend
	Lifecycle *Lifecycle
	Logger    *logging.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard("applications")
	}
	return &Service{backend: cfg.Backend, lifecycle: cfg.Lifecycle, logger: logger}
}

// RegisterRoutes mounts the application routes on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	dancer := middleware.RequireRole(session.RoleDancer)
	organizer := middleware.RequireRole(session.RoleOrganizer)

	r.Handle("/events/{id}/applications", dancer(http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)
	r.Handle("/applications", dancer(http.HandlerFunc(s.handleListMine))).Methods(http.MethodGet)
	r.Handle("/applications/{id}/status", organizer(http.HandlerFunc(s.handleSetStatus))).Methods(http.MethodPut)
}
