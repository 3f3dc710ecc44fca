// Package profiles serves the dancer profile, its media uploads and the
// option catalog shared with the event form.
package profiles

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/middleware"
	"github.com/dancelink/platform/internal/objectstore"
	"github.com/dancelink/platform/internal/session"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

// Service implements the profiles API.
type Service struct {
	backend  storage.Backend
	uploader *objectstore.Uploader
	catalog  *config.Catalog
	logger   *logging.Logger
}

// Config configures the profiles service.
type Config struct {
	Backend  storage.Backend
	Uploader *objectstore.Uploader
	Catalog  *config.Catalog
	Logger   *logging.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard("profiles")
	}
	return &Service{backend: cfg.Backend, uploader: cfg.Uploader, catalog: catalog, logger: logger}
}

// RegisterRoutes mounts the profile routes on r. /catalog needs no session.
func (s *Service) RegisterRoutes(r *mux.Router) {
	dancer := middleware.RequireRole(session.RoleDancer)

	r.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	r.Handle("/profile", dancer(http.HandlerFunc(s.handleGet))).Methods(http.MethodGet)
	r.Handle("/profile", dancer(http.HandlerFunc(s.handleUpdate))).Methods(http.MethodPut)
	r.Handle("/profile/video", dancer(s.uploadHandler(objectstore.VideoRule))).Methods(http.MethodPost)
	r.Handle("/profile/certification", dancer(s.uploadHandler(objectstore.CertificationRule))).Methods(http.MethodPost)
}
