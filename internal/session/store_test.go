package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"snapchart-proxy/internal/model"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, ttl), mr
}

func TestStore_CreateAndVerify(t *testing.T) {
	store, mr := newTestStore(t, 24*time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "uid-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	uid, err := store.Verify(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "uid-123", uid)

	// The record carries the configured TTL.
	require.InDelta(t, (24 * time.Hour).Seconds(), mr.TTL(keyPrefix+token).Seconds(), 1)
}

func TestStore_VerifyUnknownToken(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	_, err := store.Verify(context.Background(), "never-issued")
	require.ErrorIs(t, err, model.ErrSessionInvalid)
}

func TestStore_VerifyAfterExpiry(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "uid-123")
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)

	_, err = store.Verify(ctx, token)
	require.ErrorIs(t, err, model.ErrSessionInvalid)
}

func TestStore_VerifyCorruptRecord(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)

	require.NoError(t, mr.Set(keyPrefix+"bad-token", "not json"))
	_, err := store.Verify(context.Background(), "bad-token")
	require.ErrorIs(t, err, model.ErrSessionCorrupt)

	require.NoError(t, mr.Set(keyPrefix+"empty-uid", `{"uid":""}`))
	_, err = store.Verify(context.Background(), "empty-uid")
	require.ErrorIs(t, err, model.ErrSessionCorrupt)
}

func TestStore_TokensAreUnique(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := store.Create(ctx, "uid-123")
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}
