package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T, opts CacheOptions) (*PermissionCache, *miniredis.Miniredis, *redis.Client, *Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewPermissionCache(client, opts, metrics, nil), mr, client, metrics
}

func TestPermissionCacheRedisTier(t *testing.T) {
	ctx := context.Background()
	cache, mr, client, metrics := newRedisCache(t, CacheOptions{})

	_, stamp, ok := cache.Get(ctx, RoleCustomer)
	require.False(t, ok)
	cache.Put(ctx, RoleCustomer, stamp, NewPermissionSet("cart:manage:own", "orders:read:own"))

	assert.True(t, mr.Exists("rbac:role_perms:customer:0"))
	assert.Equal(t, 5*time.Minute, mr.TTL("rbac:role_perms:customer:0"))

	// A second instance shares the Redis tier but not the local one.
	other := NewPermissionCache(client, CacheOptions{}, metrics, nil)
	set, _, ok := other.Get(ctx, RoleCustomer)
	require.True(t, ok)
	assert.Equal(t, []string{"cart:manage:own", "orders:read:own"}, set.Strings())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cache.WithLabelValues("redis", "hit")))
}

func TestPermissionCacheBumpOrphansEntries(t *testing.T) {
	ctx := context.Background()
	cache, mr, _, _ := newRedisCache(t, CacheOptions{})

	_, stamp, _ := cache.Get(ctx, RoleAdmin)
	cache.Put(ctx, RoleAdmin, stamp, NewPermissionSet("rbac:manage"))

	require.NoError(t, cache.Bump(ctx))
	v, err := mr.Get("rbac:version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, _, ok := cache.Get(ctx, RoleAdmin)
	assert.False(t, ok)
}

func TestPermissionCacheIgnoresStalePut(t *testing.T) {
	ctx := context.Background()
	cache, _, _, _ := newRedisCache(t, CacheOptions{})

	_, stamp, _ := cache.Get(ctx, RoleOrganizer)
	require.NoError(t, cache.Bump(ctx))
	cache.Put(ctx, RoleOrganizer, stamp, NewPermissionSet("tickets:validate"))

	_, _, ok := cache.Get(ctx, RoleOrganizer)
	assert.False(t, ok)
}

func TestPermissionCacheUserEntries(t *testing.T) {
	ctx := context.Background()
	cache, mr, client, _ := newRedisCache(t, CacheOptions{})

	_, stamp, ok := cache.GetUser(ctx, 7)
	require.False(t, ok)
	cache.PutUser(ctx, 7, stamp, UserAccess{Role: RoleOrganizer, Active: true})
	assert.True(t, mr.Exists("rbac:user_role:7:0"))

	other := NewPermissionCache(client, CacheOptions{}, nil, nil)
	access, _, ok := other.GetUser(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, UserAccess{Role: RoleOrganizer, Active: true}, access)

	require.NoError(t, cache.Bump(ctx))
	_, _, ok = cache.GetUser(ctx, 7)
	assert.False(t, ok)
}

func TestPermissionCacheStampVoidsPutAcrossBump(t *testing.T) {
	ctx := context.Background()
	cache, mr, _, _ := newRedisCache(t, CacheOptions{})

	stamp := cache.Stamp(ctx)
	require.NoError(t, cache.Bump(ctx))
	cache.Put(ctx, RoleOrganizer, stamp, NewPermissionSet("tickets:validate"))

	assert.False(t, mr.Exists("rbac:role_perms:organizer:0"))
	assert.False(t, mr.Exists("rbac:role_perms:organizer:1"))
	assert.NotEqual(t, cache.flightKey("organizer"), "organizer#0")
}

func TestPermissionCacheFallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	require.NoError(t, Seed(ctx, mem))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(mem, ServiceOptions{Cache: NewPermissionCache(client, CacheOptions{}, nil, nil)})

	set, err := svc.RolePermissionSet(ctx, RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.Error(t, svc.Invalidate(ctx))
}

func TestListenForInvalidationPurgesLocalTier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache, _, client, _ := newRedisCache(t, CacheOptions{LocalTTL: time.Hour})
	peer := NewPermissionCache(client, CacheOptions{}, nil, nil)

	_, stamp, _ := cache.Get(ctx, RoleCustomer)
	cache.Put(ctx, RoleCustomer, stamp, NewPermissionSet("cart:manage:own"))
	cache.PutUser(ctx, 3, stamp, UserAccess{Role: RoleCustomer, Active: true})

	done := make(chan error, 1)
	go func() { done <- cache.ListenForInvalidation(ctx) }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, InvalidationChannel).Result()
		return err == nil && n[InvalidationChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Bump(ctx))
	require.Eventually(t, func() bool {
		return cache.local.Len() == 0 && cache.users.Len() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
