package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/app/storage/memory"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/session"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func TestMemoryExpiry(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "b", "2", time.Hour))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	clock.now = clock.now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "expired entry must miss")

	require.NoError(t, c.Set(ctx, "c", "3", time.Second))
	clock.now = clock.now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "b"))
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, string) error { return errors.New("cache down") }

func TestRolesCachesStoreLookups(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SetRole(ctx, "u1", session.RoleOrganizer))

	m := metrics.New()
	roles := NewRoles(storage.Static{Store: store}, NewMemory(), time.Minute, m, nil)
	sess := session.Session{UserID: "u1"}

	for i := 0; i < 3; i++ {
		role, err := roles.RoleFor(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, session.RoleOrganizer, role)
	}
	assert.Equal(t, 1, store.Calls("GetRole"))

	series, err := testutil.GatherAndCount(m.Registry(), "dancelink_cache_role_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "hit and miss series")

	require.NoError(t, roles.Invalidate(ctx, "u1"))
	_, err = roles.RoleFor(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Calls("GetRole"))
}

func TestRolesMissingRoleIsNotCached(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	roles := NewRoles(storage.Static{Store: store}, NewMemory(), time.Minute, nil, nil)
	sess := session.Session{UserID: "new-user"}

	role, err := roles.RoleFor(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "", role)

	require.NoError(t, store.SetRole(ctx, "new-user", session.RoleDancer))
	role, err = roles.RoleFor(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, session.RoleDancer, role)
}

func TestRolesFallsThroughOnCacheFailure(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SetRole(ctx, "u1", session.RoleDancer))
	roles := NewRoles(storage.Static{Store: store}, failingCache{}, 0, nil, nil)

	role, err := roles.RoleFor(ctx, session.Session{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleDancer, role)
}

func TestRolesStoreError(t *testing.T) {
	store := memory.New()
	store.FailNext("GetRole", errors.New("connection refused"))
	roles := NewRoles(storage.Static{Store: store}, NewMemory(), time.Minute, nil, nil)

	_, err := roles.RoleFor(context.Background(), session.Session{UserID: "u1"})
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_URL")
	if addr == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis cache test")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "dancelink-test:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "k", "v", time.Minute))
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
