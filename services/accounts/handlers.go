package accounts

import (
	"net/http"
	"strings"
	"time"

	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/session"
	"github.com/dancelink/platform/supabase/client"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// Credentials is the body of POST /auth/sign-in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpInput is the body of POST /auth/sign-up.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// SessionResponse is returned by sign-in and sign-up. AccessToken is empty
// when the project requires email confirmation before the first sign-in.
type SessionResponse struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role,omitempty"`
}

// MeResponse is returned by GET /me.
type MeResponse struct {
	UserID    string           `json:"user_id"`
	Email     string           `json:"email"`
	Role      string           `json:"role"`
	Profile   *profile.Profile `json:"profile,omitempty"`
	Organizer *event.Organizer `json:"organizer,omitempty"`
}

func (s *Service) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in SignUpInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Email == "" || in.Password == "":
		httputil.WriteError(w, r, svcerrors.BadRequest("email and password are required"))
		return
	case !validRole(in.Role):
		httputil.WriteError(w, r, svcerrors.Validation("role", "role must be dancer or organizer"))
		return
	}

	resp, err := s.auth.SignUp(r.Context(), in.Email, in.Password, map[string]any{
		metaRole: in.Role,
		metaName: strings.TrimSpace(in.Name),
	})
	if err != nil {
		httputil.WriteError(w, r, authError(err, "sign up"))
		return
	}
	if resp.User == nil {
		httputil.WriteError(w, r, svcerrors.Unavailable("sign up returned no user", nil))
		return
	}

	if resp.AccessToken == "" {
		// Provisioned on first sign-in once the address is confirmed.
		httputil.WriteJSON(w, http.StatusAccepted, SessionResponse{UserID: resp.User.ID, Email: resp.User.Email})
		return
	}
	s.respondSession(w, r, resp, http.StatusCreated)
}

func (s *Service) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in Credentials
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		httputil.WriteError(w, r, svcerrors.BadRequest("email and password are required"))
		return
	}

	resp, err := s.auth.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Info("sign in rejected")
		httputil.WriteError(w, r, authError(err, "sign in"))
		return
	}
	if resp.User == nil || resp.AccessToken == "" {
		httputil.WriteError(w, r, svcerrors.Unavailable("sign in returned no session", nil))
		return
	}
	s.respondSession(w, r, resp, http.StatusOK)
}

func (s *Service) respondSession(w http.ResponseWriter, r *http.Request, resp *client.AuthResponse, status int) {
	sess := session.Session{
		UserID:      resp.User.ID,
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.Expiry(s.now()),
	}
	role, err := s.provision(r.Context(), sess, resp.User)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "account", sess.UserID, "provision account"))
		return
	}

	httputil.WriteJSON(w, status, SessionResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    sess.ExpiresAt,
		UserID:       sess.UserID,
		Email:        sess.Email,
		Role:         role,
	})
}

func (s *Service) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	if err := s.auth.SignOut(r.Context(), sess.AccessToken); err != nil {
		httputil.WriteError(w, r, authError(err, "sign out"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	out := MeResponse{UserID: sess.UserID, Email: sess.Email, Role: sess.Role}
	store := s.backend.For(sess)

	switch sess.Role {
	case session.RoleDancer:
		p, err := store.GetProfile(r.Context(), sess.UserID)
		if err != nil {
			httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "load profile"))
			return
		}
		out.Profile = &p
	case session.RoleOrganizer:
		org, err := store.GetOrganizer(r.Context(), sess.UserID)
		if err != nil {
			httputil.WriteError(w, r, commonservice.StoreError(err, "organizer", sess.UserID, "load organizer"))
			return
		}
		out.Organizer = &org
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
