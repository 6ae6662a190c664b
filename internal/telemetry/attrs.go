package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attributes shared by the services.

func UserID(id string) attribute.KeyValue {
	return attribute.String("jinshu.user_id", id)
}

func MessageID(id string) attribute.KeyValue {
	return attribute.String("jinshu.message_id", id)
}

func Topic(topic string) attribute.KeyValue {
	return attribute.String("jinshu.topic", topic)
}

func Endpoint(key string) attribute.KeyValue {
	return attribute.String("jinshu.endpoint", key)
}

func Outcome(outcome string) attribute.KeyValue {
	return attribute.String("jinshu.outcome", outcome)
}
