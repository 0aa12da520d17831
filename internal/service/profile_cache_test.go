package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/cache"
)

func TestProfileCacheAside(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	users := newMemUsers()
	ctx := context.Background()
	id, err := users.CreateVerified(ctx, "alice@example.test", "hash")
	require.NoError(t, err)

	pc := NewProfileCache(store, users, time.Minute)

	prof, err := pc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.test", prof.Email)
	assert.True(t, mr.Exists("user:1"), "first read populates the cache")

	// A bumped version is invisible until the entry is invalidated or
	// expires; that staleness is what Invalidate exists to cut short.
	require.NoError(t, users.BumpTokenVersion(ctx, id))
	prof, err = pc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), prof.TokenVersion)

	pc.Invalidate(ctx, id)
	prof, err = pc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prof.TokenVersion)
}

func TestProfileCacheCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	users := newMemUsers()
	ctx := context.Background()
	id, err := users.CreateVerified(ctx, "bob@example.test", "hash")
	require.NoError(t, err)

	require.NoError(t, mr.Set("user:1", "{not json"))

	pc := NewProfileCache(store, users, time.Minute)
	prof, err := pc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.test", prof.Email, "corrupt entries fall through to the store")
}

func TestProfileCacheSafetyNetTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	users := newMemUsers()
	ctx := context.Background()
	id, err := users.CreateVerified(ctx, "carol@example.test", "hash")
	require.NoError(t, err)

	pc := NewProfileCache(store, users, time.Minute)
	_, err = pc.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, users.BumpTokenVersion(ctx, id))
	mr.FastForward(2 * time.Minute)

	prof, err := pc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prof.TokenVersion, "expired entry reloads the live row")
}
