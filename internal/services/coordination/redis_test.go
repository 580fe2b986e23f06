package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SetAndReadDeadline(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	deadline := time.Now().Add(30 * time.Second)
	require.NoError(t, store.SetRateLimit(ctx, "chat", deadline, 35*time.Second))

	got, err := store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.WithinDuration(t, deadline, got, time.Millisecond)
}

func TestRedisStore_NoLimitReturnsZeroTime(t *testing.T) {
	store, _ := newTestRedisStore(t)

	got, err := store.RateLimitDeadline(context.Background(), "email")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRedisStore_LaterDeadlineWins(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	later := time.Now().Add(60 * time.Second)
	earlier := time.Now().Add(10 * time.Second)

	require.NoError(t, store.SetRateLimit(ctx, "chat", later, 65*time.Second))
	// A shorter limit from another worker must not shorten the recorded one
	require.NoError(t, store.SetRateLimit(ctx, "chat", earlier, 15*time.Second))

	got, err := store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.WithinDuration(t, later, got, time.Millisecond)
}

func TestRedisStore_DeadlineExpiresWithTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	deadline := time.Now().Add(10 * time.Second)
	require.NoError(t, store.SetRateLimit(ctx, "chat", deadline, 15*time.Second))

	mr.FastForward(20 * time.Second)

	got, err := store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRedisStore_ChannelsAreIndependent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	deadline := time.Now().Add(30 * time.Second)
	require.NoError(t, store.SetRateLimit(ctx, "chat", deadline, 35*time.Second))

	got, err := store.RateLimitDeadline(ctx, "email")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestMemoryStore_MatchesRedisSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	later := time.Now().Add(60 * time.Second)
	earlier := time.Now().Add(10 * time.Second)
	require.NoError(t, store.SetRateLimit(ctx, "chat", later, 65*time.Second))
	require.NoError(t, store.SetRateLimit(ctx, "chat", earlier, 15*time.Second))

	got, err = store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, later, got)
}

func TestMemoryStore_EntryExpires(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	deadline := time.Now().Add(-time.Second)
	require.NoError(t, store.SetRateLimit(ctx, "chat", deadline, -time.Second))

	got, err := store.RateLimitDeadline(ctx, "chat")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
