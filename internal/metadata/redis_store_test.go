package metadata

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisStoreWithClient(client, "test:"), mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	store, err := NewRedisStore(config)
	require.NoError(t, err)
	defer store.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:99999"

	_, err := NewRedisStore(config)
	assert.Error(t, err)
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{Info: accountInfo()}))
	assert.True(t, mr.Exists("test:object:Account"))

	rec, err := store.Load(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, accountInfo(), rec.Info)
}

func TestRedisStore_KeysByRequestedTypeName(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{TypeName: "account", Info: accountInfo()}))
	assert.True(t, mr.Exists("test:object:account"))
	assert.False(t, mr.Exists("test:object:Account"))

	rec, err := store.Load(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, "account", rec.TypeName)
	assert.Equal(t, "Account", rec.Info.APIName)
}

func TestRedisStore_Miss(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	_, err := store.Load(context.Background(), "Account")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.LoadKnownTypes(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_KnownTypesAndClear(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "untouched"))
	require.NoError(t, store.SaveKnownTypes(ctx, []string{"Account"}))
	require.NoError(t, store.Save(ctx, &Record{Info: accountInfo()}))

	names, err := store.LoadKnownTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Account"}, names)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("test:object:Account"))
	assert.False(t, mr.Exists("test:known-types"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStoreBacksResolver(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()
	ctx := context.Background()

	svc := newFakeService(accountInfo())
	require.NotNil(t, NewResolver(Options{Service: svc, Store: store}).GetObjectInfo(ctx, "Account"))

	second := NewResolver(Options{Service: svc, Store: store})
	require.NotNil(t, second.GetObjectInfo(ctx, "Account"))
	assert.Equal(t, int32(1), svc.fetchCalls.Load())
}
