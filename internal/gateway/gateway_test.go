package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinshu-im/jinshu/pkg/database"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.SignInCache) {
	t.Helper()

	db, err := database.Open(database.Config{
		Type:   database.TypeSQLite,
		SQLite: database.SQLiteConfig{Path: ":memory:"},
	}, Models()...)
	require.NoError(t, err)

	cache := session.NewSignInCache(session.NewMemoryKV())
	server := httptest.NewServer(NewRouter(NewHandler(NewUserStore(db), cache)))
	t.Cleanup(server.Close)
	return server, cache
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func signUp(t *testing.T, server *httptest.Server, name, password string) protocol.UID {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/sign_up", map[string]any{
		"name":     name,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var result SignUpResponse
	require.NoError(t, json.Unmarshal(body, &result))
	require.False(t, result.UserID.IsNil())
	return result.UserID
}

func TestSignUpAndRetrieve(t *testing.T) {
	server, _ := newTestServer(t)
	userID := signUp(t, server, "alice", "s3cret")

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/user/%s", server.URL, userID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user User
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, userID.String(), user.ID)
	assert.Equal(t, "alice", user.Name)
	assert.NotContains(t, string(body), "password")
}

func TestSignUpDuplicateName(t *testing.T) {
	server, _ := newTestServer(t)
	signUp(t, server, "alice", "s3cret")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sign_up", map[string]any{
		"name":     "alice",
		"password": "other",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSignUpMissingFields(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sign_up", map[string]any{
		"name": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRetrieveUnknownUser(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/user/%s", server.URL, protocol.NewUID()), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/user/not-a-uid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignInIssuesToken(t *testing.T) {
	server, cache := newTestServer(t)
	userID := signUp(t, server, "alice", "s3cret")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/sign_in", map[string]any{
		"user_id":   userID.String(),
		"password":  "s3cret",
		"extension": map[string]string{"device": "ios"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result SignInResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, userID, result.UserID)
	assert.False(t, result.Token.IsNil())
	assert.JSONEq(t, `{"device":"ios"}`, string(result.Extension))
	assert.NotZero(t, result.Expire)

	// The authorizer-facing cache holds the same credential.
	entry, ok, err := cache.Get(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Token, entry.Token)
	assert.JSONEq(t, `{"device":"ios"}`, string(entry.Extension))
}

func TestSignInWrongPassword(t *testing.T) {
	server, _ := newTestServer(t)
	userID := signUp(t, server, "alice", "s3cret")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sign_in", map[string]any{
		"user_id":  userID.String(),
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignInUnknownUser(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sign_in", map[string]any{
		"user_id":  protocol.NewUID().String(),
		"password": "whatever",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignOutRevokesToken(t *testing.T) {
	server, cache := newTestServer(t)
	userID := signUp(t, server, "alice", "s3cret")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/sign_in", map[string]any{
		"user_id":  userID.String(),
		"password": "s3cret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/sign_out", map[string]any{
		"user_id": userID.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok, err := cache.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, ok)
}
