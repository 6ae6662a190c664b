package queue

import (
	"encoding/binary"
	"fmt"

	"github.com/jinshu-im/jinshu/pkg/rpc"
)

// Binary layout of a queued message. All integers are big-endian.
//
//	offset  0  id            16 bytes
//	offset 16  timestamp      8 bytes (unix milliseconds)
//	offset 24  from          16 bytes
//	offset 40  to            16 bytes
//	offset 56  content length 8 bytes
//	offset 64  content        variable
const (
	uidLen           = 16
	contentLenOffset = uidLen*3 + 8
	headerLen        = contentLenOffset + 8
)

// InsufficientBufferError reports a payload shorter than the fixed header.
type InsufficientBufferError struct {
	Len int
}

func (e *InsufficientBufferError) Error() string {
	return fmt.Sprintf("insufficient buffer (%d bytes)", e.Len)
}

// InvalidContentLengthError reports a declared content length that does not
// match the remaining payload.
type InvalidContentLengthError struct {
	Declared uint64
	Actual   uint64
}

func (e *InvalidContentLengthError) Error() string {
	return fmt.Sprintf("invalid content length: %d, expected: %d", e.Declared, e.Actual)
}

// QueuedMessage is an rpc.Message in its broker representation.
type QueuedMessage struct {
	Message rpc.Message
}

// NewQueuedMessage wraps m for the broker.
func NewQueuedMessage(m *rpc.Message) *QueuedMessage {
	return &QueuedMessage{Message: *m}
}

// Key returns the partitioning key, the raw message identifier.
func (q *QueuedMessage) Key() []byte {
	return q.Message.ID
}

// Marshal encodes the message into its binary layout. The three identifiers
// must be exactly 16 bytes each.
func (q *QueuedMessage) Marshal() ([]byte, error) {
	m := &q.Message
	for name, id := range map[string][]byte{"id": m.ID, "from": m.From, "to": m.To} {
		if len(id) != uidLen {
			return nil, fmt.Errorf("queued message %s: expected %d bytes, got %d", name, uidLen, len(id))
		}
	}

	buf := make([]byte, headerLen+len(m.Content))
	pos := copy(buf, m.ID)
	binary.BigEndian.PutUint64(buf[pos:], m.Timestamp)
	pos += 8
	pos += copy(buf[pos:], m.From)
	pos += copy(buf[pos:], m.To)
	binary.BigEndian.PutUint64(buf[pos:], uint64(len(m.Content)))
	pos += 8
	copy(buf[pos:], m.Content)
	return buf, nil
}

// UnmarshalQueuedMessage decodes a broker payload.
func UnmarshalQueuedMessage(data []byte) (*QueuedMessage, error) {
	if len(data) < headerLen {
		return nil, &InsufficientBufferError{Len: len(data)}
	}

	declared := binary.BigEndian.Uint64(data[contentLenOffset:headerLen])
	actual := uint64(len(data) - headerLen)
	if declared != actual {
		return nil, &InvalidContentLengthError{Declared: declared, Actual: actual}
	}

	msg := rpc.Message{
		ID:        append([]byte(nil), data[:uidLen]...),
		Timestamp: binary.BigEndian.Uint64(data[uidLen : uidLen+8]),
		From:      append([]byte(nil), data[uidLen+8:uidLen+8+uidLen]...),
		To:        append([]byte(nil), data[uidLen+8+uidLen:contentLenOffset]...),
		Content:   append([]byte(nil), data[headerLen:]...),
	}
	return &QueuedMessage{Message: msg}, nil
}
