// Package middleware provides HTTP middleware for the DanceLink API
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/dancelink/platform/internal/errors"
	internalhttputil "github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/session"
)

// Claims are the Supabase access token claims the API relies on. Role here
// is the Postgres role ("authenticated"), not the marketplace role.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RoleResolver looks up the marketplace role (dancer or organizer) of an
// authenticated caller. An empty role means the user has not picked one yet.
type RoleResolver interface {
	RoleFor(ctx context.Context, sess session.Session) (string, error)
}

// AuthMiddleware validates Supabase access tokens and stores a
// session.Session in the request context.
type AuthMiddleware struct {
	secret       []byte
	roles        RoleResolver
	logger       *logging.Logger
	skipPaths    map[string]bool
	// skipPrefixes come from skip entries ending in "/".
	skipPrefixes []string
}

// NewAuthMiddleware creates a new authentication middleware. roles may be nil.
func NewAuthMiddleware(jwtSecret string, roles RoleResolver, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	var prefixes []string
	for _, path := range skipPaths {
		if len(path) > 1 && strings.HasSuffix(path, "/") {
			prefixes = append(prefixes, path)
			continue
		}
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:       []byte(jwtSecret),
		roles:        roles,
		logger:       logger,
		skipPaths:    skip,
		skipPrefixes: prefixes,
	}
}

func (m *AuthMiddleware) skips(path string) bool {
	if m.skipPaths[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skips(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		sess := session.Session{
			UserID:      claims.Subject,
			Email:       claims.Email,
			AccessToken: tokenString,
		}
		if claims.ExpiresAt != nil {
			sess.ExpiresAt = claims.ExpiresAt.Time
		}

		ctx := logging.WithUserID(r.Context(), sess.UserID)
		if m.roles != nil {
			role, err := m.roles.RoleFor(ctx, sess)
			if err != nil {
				m.logger.WithContext(ctx).WithError(err).Warn("Role lookup failed")
			}
			sess.Role = role
		}
		if sess.Role != "" {
			ctx = logging.WithRole(ctx, sess.Role)
		}
		ctx = session.NewContext(ctx, sess)

		m.logger.WithContext(ctx).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// websocket handshakes from browsers cannot carry headers
		if websocket.IsWebSocketUpgrade(r) {
			if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
				return token, nil
			}
		}
		return "", errors.Unauthorized("Missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", errors.Unauthorized("Invalid Authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, errors.InvalidToken(err)
	}

	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}

	return claims, nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// RequireRole rejects callers whose session role differs from role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := internalhttputil.RequireSession(w, r)
			if !ok {
				return
			}
			if sess.Role != role {
				internalhttputil.WriteError(w, r, errors.Forbidden("this action requires the "+role+" role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
