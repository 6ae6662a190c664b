// Package receiver implements the ingestion tier. Ingress nodes hand it
// messages over RPC and it appends them to the broker; acknowledgement to
// the sender happens only after the broker accepted the append.
package receiver

import (
	"context"
	"encoding/hex"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
	"github.com/jinshu-im/jinshu/internal/telemetry"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

// Service implements rpc.ReceiverService over a broker producer.
type Service struct {
	producer queue.Producer
}

// NewService builds the service over producer.
func NewService(producer queue.Producer) *Service {
	return &Service{producer: producer}
}

var _ rpc.ReceiverService = (*Service)(nil)

// Enqueue validates the identifiers and appends the message to the broker.
// Malformed messages come back as InvalidArgument; broker failures as
// Internal, so the ingress rejects the send instead of acknowledging it.
func (s *Service) Enqueue(ctx context.Context, msg *rpc.Message) (*rpc.EnqueueResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "receiver.Enqueue")
	defer span.End()
	span.SetAttributes(telemetry.MessageID(hex.EncodeToString(msg.ID)))

	queued := queue.NewQueuedMessage(msg)
	if _, err := queued.Marshal(); err != nil {
		telemetry.RecordError(ctx, err)
		metrics.MessageEnqueued("error")
		return nil, rpc.InvalidArgument(err)
	}

	if err := s.producer.Enqueue(ctx, queued); err != nil {
		logger.Error("Failed to enqueue message", "message_id", msg.ID, "error", err)
		telemetry.RecordError(ctx, err)
		metrics.MessageEnqueued("error")
		return nil, rpc.Internal(err)
	}

	logger.Debug("Message enqueued", "message_id", msg.ID)
	metrics.MessageEnqueued("ok")
	return &rpc.EnqueueResult{OK: true}, nil
}
