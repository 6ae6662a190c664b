// Package authorizer validates sign-in credentials for ingress nodes. The
// gateway caches a short-lived credential when a user signs in over HTTP;
// the authorizer checks the token the client later presents on its TCP
// connection against that cache.
package authorizer

import (
	"context"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
	"github.com/jinshu-im/jinshu/internal/telemetry"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

// Service implements rpc.AuthorizerService over the sign-in cache.
type Service struct {
	cache *session.SignInCache
}

// NewService builds the service over cache.
func NewService(cache *session.SignInCache) *Service {
	return &Service{cache: cache}
}

var _ rpc.AuthorizerService = (*Service)(nil)

// SignIn checks the presented credential against the cached one. A missing
// or mismatched credential is a rejection, not an error; only malformed
// identifiers and cache failures surface as RPC errors.
func (s *Service) SignIn(ctx context.Context, token *rpc.Token) (*rpc.SignInResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "authorizer.SignIn")
	defer span.End()
	span.SetAttributes(telemetry.UserID(token.UserID))

	userID, err := protocol.ParseUID(token.UserID)
	if err != nil {
		metrics.SignInChecked("error")
		return nil, rpc.InvalidArgument(err)
	}
	presented, err := protocol.ParseUID(token.Token)
	if err != nil {
		metrics.SignInChecked("error")
		return nil, rpc.InvalidArgument(err)
	}

	entry, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		logger.Error("Failed to load sign-in entry", "user_id", userID, "error", err)
		metrics.SignInChecked("error")
		return nil, rpc.Internal(err)
	}
	if !ok {
		logger.Info("No sign-in entry", "user_id", userID)
		metrics.SignInChecked("rejected")
		return &rpc.SignInResult{OK: false}, nil
	}

	if entry.UserID != userID || entry.Token != presented {
		logger.Info("Credential mismatch", "user_id", userID)
		metrics.SignInChecked("rejected")
		return &rpc.SignInResult{OK: false}, nil
	}

	result := &rpc.SignInResult{OK: true}
	if len(entry.Extension) > 0 {
		extension := string(entry.Extension)
		result.Extension = &extension
	}

	logger.Debug("Sign-in accepted", "user_id", userID)
	metrics.SignInChecked("ok")
	return result, nil
}
