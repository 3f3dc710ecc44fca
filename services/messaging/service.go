package messaging

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dancelink/platform/internal/logging"
)

// Service exposes threads over HTTP and a websocket stream.
type Service struct {
	controller   *Controller
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// Config configures the messaging service.
type Config struct {
	Controller *Controller
	Logger     *logging.Logger
	// CheckOrigin validates websocket origins; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// New creates the service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard("messaging")
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Service{
		controller: cfg.Controller,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		pingInterval: 30 * time.Second,
	}
}

// RegisterRoutes mounts the messaging routes on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/applications/{id}/messages", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/applications/{id}/messages", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/applications/{id}/messages/stream", s.handleStream).Methods(http.MethodGet)
}
