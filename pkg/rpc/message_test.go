package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinshu-im/jinshu/pkg/protocol"
)

func TestMessageRoundTrip(t *testing.T) {
	content, err := protocol.DataContent("text/plain", []byte("hello"))
	require.NoError(t, err)

	orig := &protocol.Message{
		ID:        protocol.NewUID(),
		Timestamp: 1700000000123,
		From:      protocol.NewUID(),
		To:        protocol.NewUID(),
		Content:   content,
	}

	wire, err := FromProtocol(orig)
	require.NoError(t, err)
	assert.Len(t, wire.ID, 16)
	assert.Len(t, wire.From, 16)
	assert.Len(t, wire.To, 16)
	assert.NotEmpty(t, wire.Content)

	back, err := wire.ToProtocol()
	require.NoError(t, err)
	assert.Equal(t, orig.ID, back.ID)
	assert.Equal(t, orig.Timestamp, back.Timestamp)
	assert.Equal(t, orig.From, back.From)
	assert.Equal(t, orig.To, back.To)
	assert.Equal(t, orig.Content, back.Content)
}

func TestMessageRecipient(t *testing.T) {
	to := protocol.NewUID()
	m := &Message{To: to.Bytes()}

	got, err := m.Recipient()
	require.NoError(t, err)
	assert.Equal(t, to, got)

	m.To = []byte{1, 2, 3}
	_, err = m.Recipient()
	assert.Error(t, err)
}

func TestMessageInvalidIdentifiers(t *testing.T) {
	m := &Message{
		ID:   []byte{1},
		From: make([]byte, 16),
		To:   make([]byte, 16),
	}
	_, err := m.ToProtocol()
	assert.ErrorContains(t, err, "message id")
}

func TestCBORCodecRoundTrip(t *testing.T) {
	c := cborCodec{}

	in := &PushResult{OK: true}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(PushResult)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, in, out)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("no session")))
	assert.False(t, IsNotFound(Internal(errors.New("broker down"))))
	assert.False(t, IsNotFound(nil))
}

func TestServiceConfigListen(t *testing.T) {
	cfg := &ServiceConfig{
		ServiceName: "receiver",
		PublicHost:  "127.0.0.1",
		ListenIP:    "127.0.0.1",
		ListenPort:  0,
	}

	lis, uri, err := cfg.Listen()
	require.NoError(t, err)
	defer lis.Close()

	assert.Equal(t, "http", uri.Scheme)
	assert.Equal(t, "127.0.0.1", uri.Hostname())
	assert.NotEqual(t, "0", uri.Port())
}
