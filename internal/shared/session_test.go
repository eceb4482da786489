package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	store, mr := testSessionStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "morgan", "default")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "default", sess.ActiveContext)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, loaded.UserID)
	assert.Equal(t, sess.Username, loaded.Username)

	ttl := mr.TTL("session:" + sess.ID)
	assert.Equal(t, time.Hour, ttl)
}

func TestSessionStoreGetUnknownID(t *testing.T) {
	store, _ := testSessionStore(t)

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStoreSetActiveContextReturnsPrevious(t *testing.T) {
	store, _ := testSessionStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "morgan", "default")
	require.NoError(t, err)

	previous, err := store.SetActiveContext(ctx, sess.ID, "ops-north")
	require.NoError(t, err)
	assert.Equal(t, "default", previous)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops-north", loaded.ActiveContext)
}

func TestSessionStoreDestroy(t *testing.T) {
	store, _ := testSessionStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "morgan", "default")
	require.NoError(t, err)
	require.NoError(t, store.Destroy(ctx, sess.ID))

	_, err = store.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// Destroying twice stays quiet.
	require.NoError(t, store.Destroy(ctx, sess.ID))
}

func TestSessionStoreUserForToken(t *testing.T) {
	store, _ := testSessionStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "morgan", "default")
	require.NoError(t, err)

	userID, username, err := store.UserForToken(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "morgan", username)
}
