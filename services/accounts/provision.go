package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/session"
	"github.com/dancelink/platform/supabase/client"
)

// Metadata keys written to user_metadata at sign-up.
const (
	metaRole = "role"
	metaName = "name"
)

func validRole(role string) bool {
	return role == session.RoleDancer || role == session.RoleOrganizer
}

// provision records the role picked at sign-up together with the matching
// profile or organizer row. It runs with the new user's own token and is a
// no-op once a role exists.
func (s *Service) provision(ctx context.Context, sess session.Session, user *client.User) (string, error) {
	store := s.backend.For(sess)

	role, err := store.GetRole(ctx, sess.UserID)
	switch {
	case err == nil && role != "":
		return role, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("load role: %w", err)
	}

	role, _ = user.UserMetadata[metaRole].(string)
	if !validRole(role) {
		return "", nil
	}
	name, _ := user.UserMetadata[metaName].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.Split(user.Email, "@")[0]
	}

	if err := store.SetRole(ctx, sess.UserID, role); err != nil {
		return "", fmt.Errorf("set role: %w", err)
	}
	switch role {
	case session.RoleDancer:
		if _, err := store.CreateProfile(ctx, profile.Profile{ID: sess.UserID, Name: name, Email: user.Email}); err != nil {
			return "", fmt.Errorf("create profile: %w", err)
		}
	case session.RoleOrganizer:
		if _, err := store.UpsertOrganizer(ctx, event.Organizer{ID: sess.UserID, Name: name}); err != nil {
			return "", fmt.Errorf("create organizer: %w", err)
		}
	}

	if s.roles != nil {
		if err := s.roles.Invalidate(ctx, sess.UserID); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("role cache invalidation failed")
		}
	}
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": sess.UserID,
		"role":    role,
	}).Info("account provisioned")
	return role, nil
}

// authError maps a GoTrue failure to a service error.
func authError(err error, action string) error {
	if apiErr, ok := client.AsAPIError(err); ok {
		switch {
		case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized:
			return svcerrors.Unauthorized(apiErr.Message)
		case apiErr.StatusCode == http.StatusUnprocessableEntity:
			return svcerrors.BadRequest(apiErr.Message)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return svcerrors.RateLimitExceeded(0, "auth")
		}
	}
	return svcerrors.Unavailable(action+" failed", err)
}
