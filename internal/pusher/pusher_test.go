package pusher

import (
	"context"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

type stubComet struct {
	mu     sync.Mutex
	pushed []*rpc.Message
	err    error
}

func (s *stubComet) Push(_ context.Context, msg *rpc.Message) (*rpc.PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.pushed = append(s.pushed, msg)
	return &rpc.PushResult{OK: true}, nil
}

func (s *stubComet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushed)
}

// startComet serves a stub ingress RPC endpoint and registers it, returning
// the stub, its registry key and the registration keeper.
func startComet(t *testing.T, reg *registry.Memory) (*stubComet, string, *registry.Keeper) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stub := &stubComet{}
	server := grpc.NewServer()
	rpc.RegisterCometServer(server, stub)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	uri, err := url.Parse("http://" + lis.Addr().String() + "/")
	require.NoError(t, err)

	keeper, err := reg.Register(context.Background(), "comet", uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keeper.Close() })

	return stub, reg.Key("comet", uri), keeper
}

func queuedMessage(t *testing.T, to protocol.UID) *queue.QueuedMessage {
	t.Helper()
	content, err := protocol.DataContent("text/plain", []byte("hello"))
	require.NoError(t, err)
	msg, err := rpc.FromProtocol(&protocol.Message{
		ID:        protocol.NewUID(),
		Timestamp: uint64(time.Now().UnixMilli()),
		From:      protocol.NewUID(),
		To:        to,
		Content:   content,
	})
	require.NoError(t, err)
	return queue.NewQueuedMessage(msg)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHandleDeliversToIngress(t *testing.T) {
	reg := registry.NewMemory("jinshu")
	stub, key, _ := startComet(t, reg)

	sessions := session.NewStore(session.NewMemoryKV())
	userID := protocol.NewUID()
	require.NoError(t, sessions.Save(context.Background(), userID, key))

	p, err := New(context.Background(), "comet", reg, sessions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	result := p.Handle(context.Background(), "jinshu.dev", queuedMessage(t, userID))
	assert.True(t, result.IsOk(), result.Reason())
	assert.Equal(t, 1, stub.count())
}

func TestHandleOfflineUser(t *testing.T) {
	reg := registry.NewMemory("jinshu")
	startComet(t, reg)

	sessions := session.NewStore(session.NewMemoryKV())
	p, err := New(context.Background(), "comet", reg, sessions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	result := p.Handle(context.Background(), "jinshu.dev", queuedMessage(t, protocol.NewUID()))
	assert.False(t, result.IsOk())
	assert.False(t, result.IsFatal())
	assert.Contains(t, result.Reason(), "offline")
}

func TestHandleOfflineEndpoint(t *testing.T) {
	reg := registry.NewMemory("jinshu")

	sessions := session.NewStore(session.NewMemoryKV())
	userID := protocol.NewUID()
	require.NoError(t, sessions.Save(context.Background(), userID,
		"jinshu.comet.http://10.0.0.9:9400/"))

	p, err := New(context.Background(), "comet", reg, sessions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	result := p.Handle(context.Background(), "jinshu.dev", queuedMessage(t, userID))
	assert.False(t, result.IsOk())
	assert.False(t, result.IsFatal())
	assert.Contains(t, result.Reason(), "offline")
}

func TestHandleDivertsDeadLetters(t *testing.T) {
	reg := registry.NewMemory("jinshu")

	sessions := session.NewStore(session.NewMemoryKV())
	userID := protocol.NewUID()
	require.NoError(t, sessions.Save(context.Background(), userID,
		"jinshu.comet.http://10.0.0.9:9400/"))

	deadLetters, err := queue.OpenDeadLetterStore(queue.DeadLetterConfig{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deadLetters.Close() })

	p, err := New(context.Background(), "comet", reg, sessions, deadLetters)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	msg := queuedMessage(t, userID)
	result := p.Handle(context.Background(), "jinshu.dev", msg)
	assert.False(t, result.IsOk())

	var stored []*queue.QueuedMessage
	require.NoError(t, deadLetters.Each(func(m *queue.QueuedMessage) error {
		stored = append(stored, m)
		return nil
	}))
	require.Len(t, stored, 1)
	assert.Equal(t, msg.Message.ID, stored[0].Message.ID)
}

func TestWatchPicksUpNewIngress(t *testing.T) {
	reg := registry.NewMemory("jinshu")

	sessions := session.NewStore(session.NewMemoryKV())
	p, err := New(context.Background(), "comet", reg, sessions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	// The node joins after the pusher started.
	stub, key, _ := startComet(t, reg)
	waitFor(t, func() bool { return p.lookup(key) != nil })

	userID := protocol.NewUID()
	require.NoError(t, sessions.Save(context.Background(), userID, key))

	result := p.Handle(context.Background(), "jinshu.dev", queuedMessage(t, userID))
	assert.True(t, result.IsOk(), result.Reason())
	assert.Equal(t, 1, stub.count())
}

func TestWatchDropsDepartedIngress(t *testing.T) {
	reg := registry.NewMemory("jinshu")
	_, key, keeper := startComet(t, reg)

	sessions := session.NewStore(session.NewMemoryKV())
	p, err := New(context.Background(), "comet", reg, sessions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NotNil(t, p.lookup(key))
	require.NoError(t, keeper.Close())
	waitFor(t, func() bool { return p.lookup(key) == nil })
}
