package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/resilientcache/cache"
	"github.com/IvanBrykalov/resilientcache/codec"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "rc:"), mr
}

func TestStore_SaveLoadRemove(t *testing.T) {
	t.Parallel()

	s, mr := newStore(t)
	ctx := context.Background()

	_, found, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("rc:k"), "key must carry the prefix")
	assert.Equal(t, time.Minute, mr.TTL("rc:k"))

	b, found, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), b)

	require.NoError(t, s.Remove(ctx, "k"))
	require.NoError(t, s.Remove(ctx, "k"), "removing a missing key is not an error")
	_, found, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_TTL(t *testing.T) {
	t.Parallel()

	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "zero", []byte("v"), 0))
	assert.False(t, mr.Exists("rc:zero"))
}

func TestStore_ServerDown(t *testing.T) {
	t.Parallel()

	s, mr := newStore(t)
	mr.Close()
	ctx := context.Background()

	_, _, err := s.Load(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Save(ctx, "k", []byte("v"), time.Minute))
	assert.Error(t, s.Ping(ctx))
}

type doc struct {
	ID    string
	Title string
}

// Two caches sharing Redis: one computes, the other reads through.
func TestStore_WithCache(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	opt := cache.Options[doc]{Secondary: s, Codec: codec.Msgpack[doc]{}}
	a, b := cache.New(opt), cache.New(opt)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	ctx := context.Background()

	want := doc{ID: "1", Title: "handbook"}
	got, err := a.GetOrCompute(ctx, "doc:1", func(context.Context, *cache.ComputeContext[doc]) (doc, error) {
		return want, nil
	}, time.Minute, cache.WithTags("hr"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, ok := b.TryGet(ctx, "doc:1")
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.Equal(t, 1, b.RemoveByTag(ctx, "hr"))
	_, found, err := s.Load(ctx, "doc:1")
	require.NoError(t, err)
	assert.False(t, found)
}

// With Redis down the cache keeps serving from memory.
func TestStore_CacheSurvivesOutage(t *testing.T) {
	t.Parallel()

	s, mr := newStore(t)
	mr.Close()

	c := cache.New(cache.Options[string]{Secondary: s, SecondaryTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	v, err := c.GetOrCompute(ctx, "k", func(context.Context, *cache.ComputeContext[string]) (string, error) {
		return "local", nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "local", v)

	v, ok := c.TryGet(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "local", v)
}
