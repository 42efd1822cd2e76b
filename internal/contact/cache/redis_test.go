package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *RedisViewCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisViewCache(client, time.Minute)
}

func TestRedisViewCacheRoundTrip(t *testing.T) {
	mr, cache := setupTestCache(t)
	ctx := context.Background()
	view := &models.IdentityView{
		PrimaryID:    1,
		Emails:       []string{"a@x.com", "b@x.com"},
		Phones:       []string{},
		SecondaryIDs: []id.ContactID{2, 5},
	}

	require.NoError(t, cache.Put(ctx, view))
	assert.True(t, mr.Exists("identity:view:1"))
	assert.Equal(t, time.Minute, mr.TTL("identity:view:1"))

	got, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, view, got)
}

func TestRedisViewCacheMiss(t *testing.T) {
	_, cache := setupTestCache(t)
	got, ok, err := cache.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedisViewCacheExpiry(t *testing.T) {
	mr, cache := setupTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, &models.IdentityView{PrimaryID: 3, Emails: []string{"c"}}))

	mr.FastForward(2 * time.Minute)
	_, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisViewCacheInvalidate(t *testing.T) {
	mr, cache := setupTestCache(t)
	ctx := context.Background()
	for _, pid := range []id.ContactID{1, 2, 3} {
		require.NoError(t, cache.Put(ctx, &models.IdentityView{PrimaryID: pid}))
	}

	require.NoError(t, cache.Invalidate(ctx, 1, 2))
	assert.False(t, mr.Exists("identity:view:1"))
	assert.False(t, mr.Exists("identity:view:2"))
	assert.True(t, mr.Exists("identity:view:3"))
	require.NoError(t, cache.Invalidate(ctx))
}

func TestRedisViewCacheCorruptEntry(t *testing.T) {
	mr, cache := setupTestCache(t)
	require.NoError(t, mr.Set("identity:view:9", "not json"))
	_, _, err := cache.Get(context.Background(), 9)
	assert.Error(t, err)
}

func TestRedisViewCacheUnavailable(t *testing.T) {
	mr, cache := setupTestCache(t)
	mr.Close()
	_, _, err := cache.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, cache.Ping(context.Background()))
}
