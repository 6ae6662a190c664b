package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinshu-im/jinshu/pkg/protocol"
)

// TokenValidity is how long a sign-in credential stays usable.
const TokenValidity = 300 * time.Second

// SessionKey returns the directory key of a user's live connection.
func SessionKey(userID protocol.UID) string {
	return "user:session:" + userID.String()
}

// SignInKey returns the cache key of a user's sign-in credential.
func SignInKey(userID protocol.UID) string {
	return "user:sign_in:" + userID.String()
}

// Store is the session directory: it maps a user to the registry key of the
// ingress node holding their connection.
type Store struct {
	kv KV
}

// NewStore builds a session directory over kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Save records that userID is connected through the ingress registered under
// serviceKey. The entry has no TTL; the ingress removes it on disconnect.
func (s *Store) Save(ctx context.Context, userID protocol.UID, serviceKey string) error {
	return s.kv.Set(ctx, SessionKey(userID), serviceKey, 0)
}

// Load returns the registry key of the ingress holding userID's connection,
// or ok=false when the user is offline.
func (s *Store) Load(ctx context.Context, userID protocol.UID) (string, bool, error) {
	return s.kv.Get(ctx, SessionKey(userID))
}

// Remove deletes the user's directory entry.
func (s *Store) Remove(ctx context.Context, userID protocol.UID) error {
	return s.kv.Del(ctx, SessionKey(userID))
}

// SignInEntry is the cached credential written by the gateway on sign-in and
// checked by the authorizer when the connection is established.
type SignInEntry struct {
	UserID    protocol.UID    `json:"user_id"`
	Token     protocol.UID    `json:"token"`
	Extension json.RawMessage `json:"extension,omitempty"`

	// Expire is the expiry instant in unix milliseconds. The cache entry
	// also carries a matching TTL; this field lets clients display it.
	Expire uint64 `json:"expire"`
}

// SignInCache stores sign-in credentials with a bounded lifetime.
type SignInCache struct {
	kv KV
}

// NewSignInCache builds a credential cache over kv.
func NewSignInCache(kv KV) *SignInCache {
	return &SignInCache{kv: kv}
}

// Put stores entry under the user's sign-in key with the standard TTL.
func (c *SignInCache) Put(ctx context.Context, entry *SignInEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode sign-in entry: %w", err)
	}
	return c.kv.Set(ctx, SignInKey(entry.UserID), string(value), TokenValidity)
}

// Get returns the cached credential, or ok=false when none is cached or it
// has expired.
func (c *SignInCache) Get(ctx context.Context, userID protocol.UID) (*SignInEntry, bool, error) {
	value, ok, err := c.kv.Get(ctx, SignInKey(userID))
	if err != nil || !ok {
		return nil, false, err
	}
	var entry SignInEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, false, fmt.Errorf("decode sign-in entry: %w", err)
	}
	return &entry, true, nil
}

// Remove drops the cached credential, ending the sign-in.
func (c *SignInCache) Remove(ctx context.Context, userID protocol.UID) error {
	return c.kv.Del(ctx, SignInKey(userID))
}
