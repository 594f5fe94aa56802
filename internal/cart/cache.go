package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
)

// CacheStore is the key/value surface the cart cache needs; *redis.Client
// satisfies it.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartIdentityKey(kind, id string) string
	CartViewKey(cartID string) string
}

// cartCache is advisory. Every failure is logged and swallowed so a broken
// cache degrades to store reads.
type cartCache struct {
	store       CacheStore
	logg        *logger.Logger
	identityTTL time.Duration
	viewTTL     time.Duration
}

func (c *cartCache) identityKey(id Identity) string {
	kind, value := id.key()
	return c.store.CartIdentityKey(kind, value)
}

func (c *cartCache) lookupCartID(ctx context.Context, id Identity) (uuid.UUID, bool) {
	key := c.identityKey(id)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) {
			c.warn(ctx, "cart identity cache read failed", key, err)
		}
		return uuid.Nil, false
	}
	cartID, err := uuid.Parse(raw)
	if err != nil {
		c.warn(ctx, "cart identity cache held malformed id", key, err)
		return uuid.Nil, false
	}
	return cartID, true
}

func (c *cartCache) storeCartID(ctx context.Context, id Identity, cartID uuid.UUID) {
	key := c.identityKey(id)
	if err := c.store.Set(ctx, key, cartID.String(), c.identityTTL); err != nil {
		c.warn(ctx, "cart identity cache write failed", key, err)
	}
}

func (c *cartCache) touch(ctx context.Context, id Identity) {
	key := c.identityKey(id)
	if err := c.store.Expire(ctx, key, c.identityTTL); err != nil {
		c.warn(ctx, "cart identity cache refresh failed", key, err)
	}
}

func (c *cartCache) loadView(ctx context.Context, cartID uuid.UUID) (*View, bool) {
	key := c.store.CartViewKey(cartID.String())
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) {
			c.warn(ctx, "cart view cache read failed", key, err)
		}
		return nil, false
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		c.warn(ctx, "cart view cache held malformed payload", key, err)
		return nil, false
	}
	return &view, true
}

func (c *cartCache) storeView(ctx context.Context, view *View) {
	key := c.store.CartViewKey(view.CartID.String())
	payload, err := json.Marshal(view)
	if err != nil {
		c.warn(ctx, "cart view encode failed", key, err)
		return
	}
	if err := c.store.Set(ctx, key, string(payload), c.viewTTL); err != nil {
		c.warn(ctx, "cart view cache write failed", key, err)
	}
}

// invalidate drops the rendered views of cartIDs and the identity mappings of
// owners.
func (c *cartCache) invalidate(ctx context.Context, cartIDs []uuid.UUID, owners ...Identity) {
	keys := make([]string, 0, len(cartIDs)+len(owners))
	for _, id := range cartIDs {
		keys = append(keys, c.store.CartViewKey(id.String()))
	}
	for _, owner := range owners {
		if owner.UserID == nil && owner.SessionID == "" {
			continue
		}
		keys = append(keys, c.identityKey(owner))
	}
	if len(keys) == 0 {
		return
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.warn(ctx, "cart cache invalidation failed", keys[0], err)
	}
}

func (c *cartCache) warn(ctx context.Context, msg, key string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"cache_key": key,
		"error":     err.Error(),
	})
	c.logg.Warn(ctx, msg)
}
