package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*queue.QueuedMessage
	err      error
}

func (p *fakeProducer) Enqueue(_ context.Context, msg *queue.QueuedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func wireMessage(t *testing.T) *rpc.Message {
	t.Helper()
	content, err := protocol.DataContent("text/plain", []byte("hello"))
	require.NoError(t, err)
	msg, err := rpc.FromProtocol(&protocol.Message{
		ID:        protocol.NewUID(),
		Timestamp: 1700000000000,
		From:      protocol.NewUID(),
		To:        protocol.NewUID(),
		Content:   content,
	})
	require.NoError(t, err)
	return msg
}

func TestEnqueueAppendsToBroker(t *testing.T) {
	producer := &fakeProducer{}
	svc := NewService(producer)

	msg := wireMessage(t)
	result, err := svc.Enqueue(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, result.OK)

	require.Len(t, producer.messages, 1)
	assert.Equal(t, msg.ID, producer.messages[0].Message.ID)
}

func TestEnqueueRejectsMalformedIdentifiers(t *testing.T) {
	svc := NewService(&fakeProducer{})

	msg := wireMessage(t)
	msg.From = []byte{1, 2, 3}

	_, err := svc.Enqueue(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEnqueueBrokerFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	svc := NewService(producer)

	_, err := svc.Enqueue(context.Background(), wireMessage(t))
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "broker unavailable")
}
