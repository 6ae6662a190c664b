package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinshu-im/jinshu/pkg/protocol"
)

func TestKeys(t *testing.T) {
	id, err := protocol.ParseUID("936da01f9abd4d9d80c702af85c822a8")
	require.NoError(t, err)

	assert.Equal(t, "user:session:936da01f9abd4d9d80c702af85c822a8", SessionKey(id))
	assert.Equal(t, "user:sign_in:936da01f9abd4d9d80c702af85c822a8", SignInKey(id))
}

func TestStoreSaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryKV())
	user := protocol.NewUID()

	_, ok, err := store.Load(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, user, "jinshu.comet.http://10.0.0.7:9000/"))

	key, ok, err := store.Load(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jinshu.comet.http://10.0.0.7:9000/", key)

	require.NoError(t, store.Remove(ctx, user))
	_, ok, err = store.Load(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignInCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewSignInCache(NewMemoryKV())

	entry := &SignInEntry{
		UserID:    protocol.NewUID(),
		Token:     protocol.NewUID(),
		Extension: json.RawMessage(`{"device":"ios"}`),
		Expire:    uint64(time.Now().Add(TokenValidity).UnixMilli()),
	}
	require.NoError(t, cache.Put(ctx, entry))

	got, ok, err := cache.Get(ctx, entry.UserID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.UserID, got.UserID)
	assert.Equal(t, entry.Token, got.Token)
	assert.JSONEq(t, `{"device":"ios"}`, string(got.Extension))
	assert.Equal(t, entry.Expire, got.Expire)

	require.NoError(t, cache.Remove(ctx, entry.UserID))
	_, ok, err = cache.Get(ctx, entry.UserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignInCacheNoExtension(t *testing.T) {
	ctx := context.Background()
	cache := NewSignInCache(NewMemoryKV())

	entry := &SignInEntry{
		UserID: protocol.NewUID(),
		Token:  protocol.NewUID(),
		Expire: uint64(time.Now().Add(TokenValidity).UnixMilli()),
	}
	require.NoError(t, cache.Put(ctx, entry))

	got, ok, err := cache.Get(ctx, entry.UserID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Extension, "an absent extension must not round-trip as JSON null")
}

func TestSignInCacheMiss(t *testing.T) {
	cache := NewSignInCache(NewMemoryKV())
	_, ok, err := cache.Get(context.Background(), protocol.NewUID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKVTTL(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
