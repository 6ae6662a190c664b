// Package queue carries messages between the ingestion and dispatch tiers
// over a broker. Two backends are supported, Kafka and Pulsar, behind the
// same Producer and Consumer contracts, selected by configuration.
//
// Messages travel as a fixed binary layout (see QueuedMessage) keyed by the
// message identifier, so all frames of one conversation land on the same
// partition.
package queue

import (
	"context"
	"fmt"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// resultKind classifies a Handler verdict.
type resultKind uint8

const (
	resultOk resultKind = iota
	resultFailure
	resultFatal
)

// HandleResult is a Handler's verdict on a single message. Ok and Failure
// both acknowledge the message and keep the consumer running; Fatal stops
// the consumer loop.
type HandleResult struct {
	kind   resultKind
	reason string
}

// Ok reports successful processing.
func Ok() HandleResult {
	return HandleResult{kind: resultOk}
}

// Failure reports that this message could not be processed but consumption
// should continue.
func Failure(format string, args ...any) HandleResult {
	return HandleResult{kind: resultFailure, reason: fmt.Sprintf(format, args...)}
}

// Fatal reports an unrecoverable condition; the consumer stops.
func Fatal(format string, args ...any) HandleResult {
	return HandleResult{kind: resultFatal, reason: fmt.Sprintf(format, args...)}
}

// IsOk reports whether the message was processed successfully.
func (r HandleResult) IsOk() bool { return r.kind == resultOk }

// IsFatal reports whether the consumer should stop.
func (r HandleResult) IsFatal() bool { return r.kind == resultFatal }

// Reason returns the failure description, empty for Ok.
func (r HandleResult) Reason() string { return r.reason }

// Handler processes messages delivered by a Consumer.
type Handler interface {
	Handle(ctx context.Context, topic string, msg *QueuedMessage) HandleResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, topic string, msg *QueuedMessage) HandleResult

func (f HandlerFunc) Handle(ctx context.Context, topic string, msg *QueuedMessage) HandleResult {
	return f(ctx, topic, msg)
}

// decodeQueued parses a broker payload. A payload the byte layout rejects
// fails the same way on every redelivery, so it is logged and dropped
// rather than surfaced as a consumer error; the caller still acknowledges
// it to move the stream past the poison record.
func decodeQueued(payload []byte, origin string) (*QueuedMessage, bool) {
	msg, err := UnmarshalQueuedMessage(payload)
	if err != nil {
		logger.Warn("Dropping undecodable message", "origin", origin, "error", err)
		return nil, false
	}
	return msg, true
}

// Producer appends messages to the broker.
type Producer interface {
	// Enqueue durably appends msg, keyed by its message identifier.
	Enqueue(ctx context.Context, msg *QueuedMessage) error

	Close() error
}

// Consumer delivers queued messages to a Handler until the context is
// cancelled, the handler returns Fatal, or the broker stream closes.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error

	Close() error
}

// NewProducer builds the producer selected by cfg.Kind.
func NewProducer(cfg Config) (Producer, error) {
	switch cfg.Kind {
	case KindKafka:
		return NewKafkaProducer(cfg.Kafka)
	case KindPulsar:
		return NewPulsarProducer(cfg.Pulsar)
	default:
		return nil, fmt.Errorf("unknown queue kind %q", cfg.Kind)
	}
}

// NewConsumer builds the consumer selected by cfg.Kind.
func NewConsumer(cfg Config) (Consumer, error) {
	switch cfg.Kind {
	case KindKafka:
		return NewKafkaConsumer(cfg.Kafka)
	case KindPulsar:
		return NewPulsarConsumer(cfg.Pulsar)
	default:
		return nil, fmt.Errorf("unknown queue kind %q", cfg.Kind)
	}
}
