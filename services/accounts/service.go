// Package accounts handles sign-in, sign-up and role provisioning against
// Supabase Auth.
package accounts

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/supabase/client"
)

// Authenticator is the subset of Supabase Auth the service calls.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*client.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// RoleInvalidator drops a cached role after it changes.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Service implements the accounts API.
type Service struct {
	auth    Authenticator
	backend storage.Backend
	roles   RoleInvalidator
	logger  *logging.Logger
	now     func() time.Time
}

// Config configures the accounts service. Roles may be nil.
type Config struct {
	Auth    Authenticator
	Backend storage.Backend
	Roles   RoleInvalidator
	Logger  *logging.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard("accounts")
	}
	return &Service{
		auth:    cfg.Auth,
		backend: cfg.Backend,
		roles:   cfg.Roles,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes mounts the account routes. sign-in and sign-up must be on
// the auth middleware's skip list.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/sign-up", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/sign-in", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/sign-out", s.handleSignOut).Methods(http.MethodPost)
	r.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
}
