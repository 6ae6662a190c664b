package rpc

import (
	"fmt"

	"github.com/jinshu-im/jinshu/pkg/protocol"
)

// Message is the inter-service representation of a protocol.Message.
// Identifiers travel as 16 raw bytes and the content as its canonical CBOR
// form, so services that relay messages never need the wire codec.
type Message struct {
	ID        []byte `cbor:"id" json:"id"`
	Timestamp uint64 `cbor:"timestamp" json:"timestamp"`
	From      []byte `cbor:"from" json:"from"`
	To        []byte `cbor:"to" json:"to"`
	Content   []byte `cbor:"content" json:"content"`
}

// FromProtocol converts a protocol message, canonicalizing its content.
func FromProtocol(m *protocol.Message) (*Message, error) {
	content, err := protocol.MarshalContent(&m.Content)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        m.ID.Bytes(),
		Timestamp: m.Timestamp,
		From:      m.From.Bytes(),
		To:        m.To.Bytes(),
		Content:   content,
	}, nil
}

// ToProtocol parses the identifier bytes and the canonical content.
func (m *Message) ToProtocol() (*protocol.Message, error) {
	id, err := protocol.UIDFromBytes(m.ID)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	from, err := protocol.UIDFromBytes(m.From)
	if err != nil {
		return nil, fmt.Errorf("message from: %w", err)
	}
	to, err := protocol.UIDFromBytes(m.To)
	if err != nil {
		return nil, fmt.Errorf("message to: %w", err)
	}
	content, err := protocol.UnmarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return &protocol.Message{
		ID:        id,
		Timestamp: m.Timestamp,
		From:      from,
		To:        to,
		Content:   content,
	}, nil
}

// Recipient returns the parsed To identifier without touching the content.
func (m *Message) Recipient() (protocol.UID, error) {
	return protocol.UIDFromBytes(m.To)
}

// Token is the credential pair presented on sign-in; both fields are
// 32-char hex identifiers.
type Token struct {
	UserID string `cbor:"user_id" json:"user_id"`
	Token  string `cbor:"token" json:"token"`
}

// SignInResult reports whether the credential matched; Extension carries an
// application-defined JSON document verbatim from the credential store.
type SignInResult struct {
	OK        bool    `cbor:"ok" json:"ok"`
	Extension *string `cbor:"extension,omitempty" json:"extension,omitempty"`
}

// PushResult acknowledges a Comet.Push call.
type PushResult struct {
	OK     bool    `cbor:"ok" json:"ok"`
	Result *string `cbor:"result,omitempty" json:"result,omitempty"`
}

// EnqueueResult acknowledges a Receiver.Enqueue call.
type EnqueueResult struct {
	OK     bool    `cbor:"ok" json:"ok"`
	Result *string `cbor:"result,omitempty" json:"result,omitempty"`
}
