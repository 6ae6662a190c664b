package authorizer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

func newService(t *testing.T) (*Service, *session.SignInCache) {
	t.Helper()
	cache := session.NewSignInCache(session.NewMemoryKV())
	return NewService(cache), cache
}

func cacheEntry(t *testing.T, cache *session.SignInCache, extension json.RawMessage) (protocol.UID, protocol.UID) {
	t.Helper()
	userID, token := protocol.NewUID(), protocol.NewUID()
	require.NoError(t, cache.Put(context.Background(), &session.SignInEntry{
		UserID:    userID,
		Token:     token,
		Extension: extension,
		Expire:    1700000300000,
	}))
	return userID, token
}

func TestSignInAccepted(t *testing.T) {
	svc, cache := newService(t)
	userID, token := cacheEntry(t, cache, json.RawMessage(`{"device":"ios"}`))

	result, err := svc.SignIn(context.Background(), &rpc.Token{
		UserID: userID.String(),
		Token:  token.String(),
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.NotNil(t, result.Extension)
	assert.JSONEq(t, `{"device":"ios"}`, *result.Extension)
}

func TestSignInWithoutExtension(t *testing.T) {
	svc, cache := newService(t)
	userID, token := cacheEntry(t, cache, nil)

	result, err := svc.SignIn(context.Background(), &rpc.Token{
		UserID: userID.String(),
		Token:  token.String(),
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Nil(t, result.Extension)
}

func TestSignInUnknownUser(t *testing.T) {
	svc, _ := newService(t)

	result, err := svc.SignIn(context.Background(), &rpc.Token{
		UserID: protocol.NewUID().String(),
		Token:  protocol.NewUID().String(),
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestSignInWrongToken(t *testing.T) {
	svc, cache := newService(t)
	userID, _ := cacheEntry(t, cache, nil)

	result, err := svc.SignIn(context.Background(), &rpc.Token{
		UserID: userID.String(),
		Token:  protocol.NewUID().String(),
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestSignInMalformedIdentifiers(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SignIn(context.Background(), &rpc.Token{
		UserID: "not-hex",
		Token:  protocol.NewUID().String(),
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.SignIn(context.Background(), &rpc.Token{
		UserID: protocol.NewUID().String(),
		Token:  "not-hex",
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
