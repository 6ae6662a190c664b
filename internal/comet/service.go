package comet

import (
	"context"
	"fmt"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

// PushService is the inward-facing delivery endpoint of an ingress node.
// Dispatchers call Push to hand a message to a recipient whose session the
// directory maps to this node.
type PushService struct {
	manager *ConnectionManager
}

// NewPushService builds the service over the node's connection manager.
func NewPushService(manager *ConnectionManager) *PushService {
	return &PushService{manager: manager}
}

var _ rpc.CometService = (*PushService)(nil)

// Push delivers msg to the recipient's live connection. It returns NotFound
// when the recipient has no connection here, so the caller can treat the
// session directory entry as stale.
func (s *PushService) Push(ctx context.Context, msg *rpc.Message) (*rpc.PushResult, error) {
	recipient, err := msg.Recipient()
	if err != nil {
		return nil, rpc.InvalidArgument(err)
	}

	conn := s.manager.Get(recipient)
	if conn == nil {
		return nil, rpc.NotFound(fmt.Sprintf("user %s not found", recipient))
	}

	parsed, err := msg.ToProtocol()
	if err != nil {
		return nil, rpc.InvalidArgument(err)
	}

	if err := conn.PushMessage(ctx, parsed); err != nil {
		logger.Warn("Failed to push message", "user_id", recipient, "message_id", parsed.ID, "error", err)
		return nil, rpc.Internal(err)
	}

	logger.Debug("Message pushed", "user_id", recipient, "message_id", parsed.ID)
	return &rpc.PushResult{OK: true}, nil
}
