package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/session"
)

// DefaultRoleTTL bounds how long a role change can go unnoticed.
const DefaultRoleTTL = 5 * time.Minute

// Roles resolves marketplace roles through a cache. Only non-empty roles
// are cached, so a user who picks a role right after signing up is seen
// on the next request.
type Roles struct {
	backend storage.Backend
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewRoles creates a resolver. m and logger may be nil.
func NewRoles(backend storage.Backend, c Cache, ttl time.Duration, m *metrics.Metrics, logger *logging.Logger) *Roles {
	if ttl <= 0 {
		ttl = DefaultRoleTTL
	}
	if logger == nil {
		logger = logging.NewDiscard("cache")
	}
	return &Roles{backend: backend, cache: c, ttl: ttl, metrics: m, logger: logger}
}

func roleKey(userID string) string { return "role:" + userID }

// RoleFor returns the caller's role, or "" when none is recorded. Cache
// failures fall through to the store.
func (r *Roles) RoleFor(ctx context.Context, sess session.Session) (string, error) {
	key := roleKey(sess.UserID)
	role, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("role cache read failed")
	}
	if ok {
		r.record(true)
		return role, nil
	}
	r.record(false)

	role, err = r.backend.For(sess).GetRole(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if role != "" {
		if err := r.cache.Set(ctx, key, role, r.ttl); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("role cache write failed")
		}
	}
	return role, nil
}

// Invalidate forgets the cached role of userID.
func (r *Roles) Invalidate(ctx context.Context, userID string) error {
	return r.cache.Delete(ctx, roleKey(userID))
}

func (r *Roles) record(hit bool) {
	if r.metrics != nil {
		r.metrics.RecordRoleLookup(hit)
	}
}
