package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey        = "crm:rbac:version"
	cachePermsKey          = "crm:rbac:page_permissions"
	cacheInvalidateChannel = "crm:rbac:invalidate"
)

// CachedStore keeps the page permission table in Redis in front of another
// Store. Role lookups always go to the wrapped store.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedStore wraps next with a Redis cache of the permission table.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

// ResolveRole implements Store.
func (c *CachedStore) ResolveRole(ctx context.Context, userID string) (Role, error) {
	return c.next.ResolveRole(ctx, userID)
}

// ListPagePermissions implements Store. Redis failures degrade to a direct
// read of the wrapped store.
func (c *CachedStore) ListPagePermissions(ctx context.Context) ([]PagePermission, error) {
	if c.client == nil {
		return c.next.ListPagePermissions(ctx)
	}
	key, err := c.key(ctx)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.Any("error", err))
		return c.next.ListPagePermissions(ctx)
	}
	if !bypassCache(ctx) {
		raw, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var perms []PagePermission
			if err := json.Unmarshal(raw, &perms); err == nil {
				return perms, nil
			}
			c.logger.Warn("rbac cache decode", slog.String("key", key))
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("rbac cache read", slog.Any("error", err))
		}
	}
	return c.load(ctx, key)
}

// Warm reloads the permission table into the cache.
func (c *CachedStore) Warm(ctx context.Context) (int, error) {
	if err := c.Bump(ctx); err != nil {
		return 0, err
	}
	perms, err := c.ListPagePermissions(WithoutCache(ctx))
	if err != nil {
		return 0, err
	}
	return len(perms), nil
}

// Bump invalidates cached tables by moving to a new version and tells
// subscribers about it.
func (c *CachedStore) Bump(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, cacheInvalidateChannel, ver).Err(); err != nil {
		c.logger.Warn("rbac cache publish", slog.Any("error", err))
	}
	return nil
}

// Subscribe calls onInvalidate for every Bump, from any process, until ctx
// is done.
func (c *CachedStore) Subscribe(ctx context.Context, onInvalidate func()) error {
	if c.client == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := c.client.Subscribe(ctx, cacheInvalidateChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("rbac: invalidation channel closed")
			}
			c.logger.Debug("rbac cache invalidated", slog.String("version", msg.Payload))
			onInvalidate()
		}
	}
}

func (c *CachedStore) load(ctx context.Context, key string) ([]PagePermission, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := c.next.ListPagePermissions(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(perms)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("rbac cache write", slog.Any("error", err))
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	perms, _ := v.([]PagePermission)
	return perms, nil
}

func (c *CachedStore) key(ctx context.Context) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		ver = 0
	} else if err != nil {
		return "", err
	}
	return cachePermsKey + ":v" + strconv.FormatInt(ver, 10), nil
}

var _ Store = (*CachedStore)(nil)
