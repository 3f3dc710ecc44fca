// Package session carries the authenticated caller through controller calls.
package session

import (
	"context"
	"time"
)

// Role values stored in user_roles.
const (
	RoleDancer    = "dancer"
	RoleOrganizer = "organizer"
)

// Session identifies the caller of a controller operation. It is passed
// explicitly to every controller method; AccessToken is forwarded to the
// backing store so row-level security applies to the caller.
type Session struct {
	UserID      string
	Email       string
	Role        string
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the session has a known expiry in the past.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// IsDancer reports whether the caller acts as a dancer.
func (s Session) IsDancer() bool { return s.Role == RoleDancer }

// IsOrganizer reports whether the caller acts as an organizer.
func (s Session) IsOrganizer() bool { return s.Role == RoleOrganizer }

type ctxKey struct{}

// NewContext returns ctx carrying sess. Only the HTTP layer uses this to hand
// the session from middleware to handlers.
func NewContext(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(Session)
	return sess, ok
}
