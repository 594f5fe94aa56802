package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
)

const (
	scopeUser  = "user"
	scopeAdmin = "admin"
)

// CacheStore is satisfied by *redis.Client.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	OrderListKey(scope, id string) string
}

// listCache holds unfiltered first pages. Failures are logged and ignored.
type listCache struct {
	store CacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func (c *listCache) key(userID *uuid.UUID) string {
	if userID == nil {
		return c.store.OrderListKey(scopeAdmin, "")
	}
	return c.store.OrderListKey(scopeUser, userID.String())
}

func (c *listCache) load(ctx context.Context, userID *uuid.UUID) (*ListResult, bool) {
	key := c.key(userID)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) {
			c.warn(ctx, "order list cache read failed", key, err)
		}
		return nil, false
	}
	var res ListResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		c.warn(ctx, "order list cache held malformed payload", key, err)
		return nil, false
	}
	return &res, true
}

func (c *listCache) save(ctx context.Context, userID *uuid.UUID, res *ListResult) {
	key := c.key(userID)
	payload, err := json.Marshal(res)
	if err != nil {
		c.warn(ctx, "order list encode failed", key, err)
		return
	}
	if err := c.store.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.warn(ctx, "order list cache write failed", key, err)
	}
}

// invalidate drops the user's first page and the admin first page.
func (c *listCache) invalidate(ctx context.Context, userID uuid.UUID) {
	keys := []string{c.key(&userID), c.key(nil)}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.warn(ctx, "order list cache invalidation failed", keys[0], err)
	}
}

func (c *listCache) warn(ctx context.Context, msg, key string, err error) {
	ctx = c.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()})
	c.logg.Warn(ctx, msg)
}
