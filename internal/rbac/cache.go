package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultLocalCacheTTL = 30 * time.Second
	defaultLocalSize     = 256
	defaultCachePrefix   = "rbac"

	// InvalidationChannel carries version bumps between instances.
	InvalidationChannel = "rbac.bump"
)

// CacheOptions configures PermissionCache.
type CacheOptions struct {
	TTL       time.Duration
	LocalTTL  time.Duration
	LocalSize int
	Prefix    string
}

// PermissionCache keeps role permission sets and user access records in
// in-process LRUs backed by Redis. Redis keys embed a global version so a bump orphans every entry at
// once; the local tier is purged on bump and bounded by LocalTTL otherwise.
type PermissionCache struct {
	client  redis.UniversalClient
	local   *expirable.LRU[RoleName, PermissionSet]
	users   *expirable.LRU[int64, UserAccess]
	gen     atomic.Uint64
	ttl     time.Duration
	prefix  string
	metrics *Metrics
	logger  *slog.Logger
}

// Stamp captures the cache generation observed by a lookup. Put ignores
// results whose stamp predates the latest bump.
type Stamp struct {
	gen       uint64
	version   int64
	versioned bool
}

// NewPermissionCache constructs a cache. client may be nil, in which case only
// the local tier is used.
func NewPermissionCache(client redis.UniversalClient, opts CacheOptions, metrics *Metrics, logger *slog.Logger) *PermissionCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = defaultLocalCacheTTL
	}
	if opts.LocalSize <= 0 {
		opts.LocalSize = defaultLocalSize
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultCachePrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionCache{
		client:  client,
		local:   expirable.NewLRU[RoleName, PermissionSet](opts.LocalSize, nil, opts.LocalTTL),
		users:   expirable.NewLRU[int64, UserAccess](opts.LocalSize, nil, opts.LocalTTL),
		ttl:     opts.TTL,
		prefix:  opts.Prefix,
		metrics: metrics,
		logger:  logger,
	}
}

// Get looks the role up in both tiers. The returned Stamp must be passed to
// Put when the caller loads the set from the store after a miss.
func (c *PermissionCache) Get(ctx context.Context, role RoleName) (PermissionSet, Stamp, bool) {
	if set, ok := c.local.Get(role); ok {
		c.metrics.cacheHit("local")
		return set, Stamp{gen: c.gen.Load()}, true
	}
	c.metrics.cacheMiss("local")
	var names []string
	stamp, ok := c.fetch(ctx, func(v int64) string { return c.roleKey(role, v) }, &names)
	if !ok {
		return nil, stamp, false
	}
	set := PermissionSetFromStrings(names)
	if c.gen.Load() == stamp.gen {
		c.local.Add(role, set)
	}
	return set, stamp, true
}

// Stamp captures the current generation and Redis version. Loaders take it
// before reading the store so a bump during the read voids their Put.
func (c *PermissionCache) Stamp(ctx context.Context) Stamp {
	stamp := Stamp{gen: c.gen.Load()}
	if c.client == nil {
		return stamp
	}
	version, err := c.version(ctx)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.Any("error", err))
		return stamp
	}
	stamp.version, stamp.versioned = version, true
	return stamp
}

// flightKey scopes concurrent loads of key to the current generation, so a
// caller arriving after a bump never joins a load that started before it.
func (c *PermissionCache) flightKey(key string) string {
	return key + "#" + strconv.FormatUint(c.gen.Load(), 10)
}

// Put stores a freshly loaded set unless a bump happened since stamp was taken.
func (c *PermissionCache) Put(ctx context.Context, role RoleName, stamp Stamp, set PermissionSet) {
	if c.gen.Load() != stamp.gen {
		return
	}
	c.local.Add(role, set)
	c.store(ctx, stamp, func(v int64) string { return c.roleKey(role, v) }, set.Strings())
}

// GetUser looks a user's access record up in both tiers.
func (c *PermissionCache) GetUser(ctx context.Context, userID int64) (UserAccess, Stamp, bool) {
	if access, ok := c.users.Get(userID); ok {
		c.metrics.cacheHit("local")
		return access, Stamp{gen: c.gen.Load()}, true
	}
	c.metrics.cacheMiss("local")
	var access UserAccess
	stamp, ok := c.fetch(ctx, func(v int64) string { return c.userKey(userID, v) }, &access)
	if !ok {
		return UserAccess{}, stamp, false
	}
	if c.gen.Load() == stamp.gen {
		c.users.Add(userID, access)
	}
	return access, stamp, true
}

// PutUser stores a freshly loaded access record unless a bump happened since
// stamp was taken.
func (c *PermissionCache) PutUser(ctx context.Context, userID int64, stamp Stamp, access UserAccess) {
	if c.gen.Load() != stamp.gen {
		return
	}
	c.users.Add(userID, access)
	c.store(ctx, stamp, func(v int64) string { return c.userKey(userID, v) }, access)
}

// fetch decodes the Redis entry for the current version into out.
func (c *PermissionCache) fetch(ctx context.Context, key func(version int64) string, out any) (Stamp, bool) {
	stamp := Stamp{gen: c.gen.Load()}
	if c.client == nil {
		return stamp, false
	}
	version, err := c.version(ctx)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.Any("error", err))
		return stamp, false
	}
	stamp.version, stamp.versioned = version, true

	k := key(version)
	raw, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("rbac cache get", slog.String("key", k), slog.Any("error", err))
		}
		c.metrics.cacheMiss("redis")
		return stamp, false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("rbac cache decode", slog.String("key", k), slog.Any("error", err))
		c.metrics.cacheMiss("redis")
		return stamp, false
	}
	c.metrics.cacheHit("redis")
	return stamp, true
}

func (c *PermissionCache) store(ctx context.Context, stamp Stamp, key func(version int64) string, v any) {
	if c.client == nil || !stamp.versioned {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	k := key(stamp.version)
	if err := c.client.Set(ctx, k, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("rbac cache set", slog.String("key", k), slog.Any("error", err))
	}
}

// Purge drops the local tier.
func (c *PermissionCache) Purge() {
	c.gen.Add(1)
	c.local.Purge()
	c.users.Purge()
}

// Bump invalidates every cached set on every instance.
func (c *PermissionCache) Bump(ctx context.Context) error {
	c.Purge()
	if c.client == nil {
		return nil
	}
	version, err := c.client.Incr(ctx, c.versionKey()).Result()
	if err != nil {
		return fmt.Errorf("rbac: bump cache version: %w", err)
	}
	if err := c.client.Publish(ctx, InvalidationChannel, strconv.FormatInt(version, 10)).Err(); err != nil {
		return fmt.Errorf("rbac: publish cache bump: %w", err)
	}
	return nil
}

// ListenForInvalidation purges the local tier whenever another instance bumps
// the version. It blocks until ctx is done.
func (c *PermissionCache) ListenForInvalidation(ctx context.Context) error {
	if c.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := c.client.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rbac: subscribe %s: %w", InvalidationChannel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.Purge()
			c.logger.Debug("rbac cache purged", slog.String("version", msg.Payload))
		}
	}
}

func (c *PermissionCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *PermissionCache) versionKey() string {
	return c.prefix + ":version"
}

func (c *PermissionCache) roleKey(role RoleName, version int64) string {
	return fmt.Sprintf("%s:role_perms:%s:%d", c.prefix, role, version)
}

func (c *PermissionCache) userKey(userID, version int64) string {
	return fmt.Sprintf("%s:user_role:%d:%d", c.prefix, userID, version)
}
