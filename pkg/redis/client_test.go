package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSetGetExpireDel(t *testing.T) {
	ctx := context.Background()
	client, mr := newMiniredisClient(t)

	require.NoError(t, client.Set(ctx, "ad:k", "v", time.Minute))
	got, err := client.Get(ctx, "ad:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, client.Expire(ctx, "ad:k", 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("ad:k"))

	mr.FastForward(11 * time.Minute)
	_, err = client.Get(ctx, "ad:k")
	assert.True(t, IsMiss(err))

	require.NoError(t, client.Set(ctx, "ad:a", "1", 0))
	require.NoError(t, client.Del(ctx, "ad:a", "ad:missing"))
	assert.False(t, mr.Exists("ad:a"))
	require.NoError(t, client.Del(ctx))
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	client, _ := newMiniredisClient(t)

	ok, err := client.SetNX(ctx, "ad:guard", "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "ad:guard", "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{URL: "redis://" + addr, DialTimeout: 100 * time.Millisecond}, nil)
	assert.Error(t, err)
}

func TestUnavailableClientFailsEveryCall(t *testing.T) {
	ctx := context.Background()
	client := Unavailable()

	assert.ErrorIs(t, client.Set(ctx, "k", "v", time.Second), ErrNotInitialized)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, IsMiss(err))
	assert.ErrorIs(t, client.Expire(ctx, "k", time.Second), ErrNotInitialized)
	assert.ErrorIs(t, client.Del(ctx, "k"), ErrNotInitialized)
	assert.ErrorIs(t, client.Ping(ctx), ErrNotInitialized)
	assert.NoError(t, client.Close())
}

func TestNewFromRaw(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, client.Ping(context.Background()))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "ad:idempotency:stripe_event:evt_1", client.IdempotencyKey("stripe_event", "evt_1"))
	assert.Equal(t, "ad:cart:user:u1", client.CartIdentityKey("user", "u1"))
	assert.Equal(t, "ad:cart:view:c1", client.CartViewKey("c1"))
	assert.Equal(t, "ad:orders:list:admin", client.OrderListKey("admin", ""))
	assert.Equal(t, "ad:orders:list:user:u1", client.OrderListKey("user", "u1"))
	assert.Equal(t, "ad:lock:cron", client.LockKey("cron"))
}
