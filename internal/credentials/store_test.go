package credentials

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, "planner:session", zap.NewNop()), mr
}

func testPair() model.TokenPair {
	return model.TokenPair{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
	}
}

// ─── RedisStore ───────────────────────────────────────────────────────────────

func TestRedisStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty store should report no session")

	require.NoError(t, store.Set(ctx, testPair()))

	pair, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-token-1", pair.AccessToken)
	assert.Equal(t, "refresh-token-1", pair.RefreshToken)
}

func TestRedisStore_SetReplacesPairAsUnit(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	require.NoError(t, store.Set(ctx, testPair()))
	require.NoError(t, store.Set(ctx, model.TokenPair{
		AccessToken:  "access-token-2",
		RefreshToken: "refresh-token-2",
	}))

	pair, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-token-2", pair.AccessToken)
	assert.Equal(t, "refresh-token-2", pair.RefreshToken)
}

func TestRedisStore_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, testPair()))

	got, err := mr.Get("planner:session:access_token")
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", got)
}

func TestRedisStore_UserRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	user, err := store.GetUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user, "no cached profile yet")

	require.NoError(t, store.SetUser(ctx, model.UserProfile{
		ID:       "u-1",
		Email:    "ana@example.com",
		FullName: "Ana",
		IsActive: true,
	}))

	user, err = store.GetUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ana@example.com", user.Email)
}

func TestRedisStore_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, testPair()))
	require.NoError(t, store.SetUser(ctx, model.UserProfile{ID: "u-1", Email: "ana@example.com"}))

	require.NoError(t, store.Clear(ctx))

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := store.GetUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	assert.False(t, mr.Exists("planner:session:access_token"))
	assert.False(t, mr.Exists("planner:session:refresh_token"))
	assert.False(t, mr.Exists("planner:session:user"))
}

// ─── MemoryStore ──────────────────────────────────────────────────────────────

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, testPair()))
	require.NoError(t, store.SetUser(ctx, model.UserProfile{ID: "u-2", Email: "bo@example.com"}))

	pair, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refresh-token-1", pair.RefreshToken)

	user, err := store.GetUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "bo@example.com", user.Email)

	require.NoError(t, store.Clear(ctx))
	_, ok, _ = store.Get(ctx)
	assert.False(t, ok)
}

// ─── Manager ──────────────────────────────────────────────────────────────────

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	durable, mr := newRedisStore(t)
	return NewManager(durable, NewMemoryStore(), zap.NewNop()), mr
}

func TestManager_NoSessionBeforeActivation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	_, ok, err := mgr.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_RememberedSessionGoesToRedis(t *testing.T) {
	ctx := context.Background()
	mgr, mr := newManager(t)

	mgr.Activate(true)
	require.NoError(t, mgr.Set(ctx, testPair()))

	assert.True(t, mr.Exists("planner:session:access_token"))

	pair, ok, err := mgr.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-token-1", pair.AccessToken)
}

func TestManager_UnrememberedSessionStaysInMemory(t *testing.T) {
	ctx := context.Background()
	mgr, mr := newManager(t)

	mgr.Activate(false)
	require.NoError(t, mgr.Set(ctx, testPair()))

	assert.False(t, mr.Exists("planner:session:access_token"),
		"nothing should be persisted when remember is off")

	_, ok, err := mgr.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_HydrateRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	durable, mr := newRedisStore(t)
	require.NoError(t, durable.Set(ctx, testPair()))

	mgr := NewManager(durable, NewMemoryStore(), zap.NewNop())
	pair, ok, err := mgr.Hydrate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refresh-token-1", pair.RefreshToken)

	// Writes after hydration land in the durable namespace.
	require.NoError(t, mgr.Set(ctx, model.TokenPair{
		AccessToken:  "rotated-access",
		RefreshToken: "rotated-refresh",
	}))
	got, err := mr.Get("planner:session:access_token")
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", got)
}

func TestManager_HydrateWithNothingPersisted(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	_, ok, err := mgr.Hydrate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_ClearAllWipesBothNamespaces(t *testing.T) {
	ctx := context.Background()
	durable, mr := newRedisStore(t)
	ephemeral := NewMemoryStore()
	require.NoError(t, durable.Set(ctx, testPair()))
	require.NoError(t, ephemeral.Set(ctx, testPair()))

	mgr := NewManager(durable, ephemeral, zap.NewNop())
	require.NoError(t, mgr.ClearAll(ctx))

	assert.False(t, mr.Exists("planner:session:access_token"))
	_, ok, _ := ephemeral.Get(ctx)
	assert.False(t, ok)
}
