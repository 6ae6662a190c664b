package queue

import "time"

// Queue backend kinds.
const (
	KindKafka  = "kafka"
	KindPulsar = "pulsar"
)

// Config selects and configures the broker backend.
type Config struct {
	// Kind selects the backend: "kafka" or "pulsar".
	Kind string `mapstructure:"kind" validate:"required,oneof=kafka pulsar"`

	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Pulsar PulsarConfig `mapstructure:"pulsar"`
}

// KafkaConfig covers both the producer and consumer side of one topic.
type KafkaConfig struct {
	// Servers is the comma-separated bootstrap list.
	Servers string `mapstructure:"servers"`

	Topic string `mapstructure:"topic"`

	Producer KafkaProducerConfig `mapstructure:"producer"`
	Consumer KafkaConsumerConfig `mapstructure:"consumer"`
}

// KafkaProducerConfig tunes the producing side.
type KafkaProducerConfig struct {
	// MessageTimeout bounds delivery of a single record.
	MessageTimeout time.Duration `mapstructure:"message_timeout"`
}

// KafkaConsumerConfig tunes the consuming side. Offsets are committed
// manually after the handler has seen each record unless AutoCommit is set.
type KafkaConsumerConfig struct {
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset" validate:"omitempty,oneof=earliest latest"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	AutoCommit      bool          `mapstructure:"auto_commit"`
}

// PulsarConfig covers both the producer and consumer side of one topic.
type PulsarConfig struct {
	// URL is the broker address, e.g. pulsar://localhost:6650.
	URL string `mapstructure:"url" validate:"omitempty,uri"`

	Topic string `mapstructure:"topic"`

	Consumer PulsarConsumerConfig `mapstructure:"consumer"`
}

// PulsarConsumerConfig tunes the subscription.
type PulsarConsumerConfig struct {
	ConsumerName     string `mapstructure:"consumer_name"`
	SubscriptionName string `mapstructure:"subscription_name"`

	// SubscriptionType is one of exclusive, shared, failover, keyshared.
	SubscriptionType string `mapstructure:"subscription_type" validate:"omitempty,oneof=exclusive shared failover keyshared"`
}

// DefaultConfig returns a Kafka-backed queue pointing at a local broker.
func DefaultConfig() Config {
	return Config{
		Kind:   KindKafka,
		Kafka:  DefaultKafkaConfig(),
		Pulsar: DefaultPulsarConfig(),
	}
}

// DefaultKafkaConfig mirrors a local single-broker development setup.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Servers: "localhost:9092",
		Topic:   "jinshu.dev",
		Producer: KafkaProducerConfig{
			MessageTimeout: 3 * time.Second,
		},
		Consumer: KafkaConsumerConfig{
			GroupID:         "jinshu.group",
			AutoOffsetReset: "earliest",
			SessionTimeout:  5 * time.Minute,
			AutoCommit:      false,
		},
	}
}

// DefaultPulsarConfig mirrors a local standalone Pulsar.
func DefaultPulsarConfig() PulsarConfig {
	return PulsarConfig{
		URL:   "pulsar://localhost:6650",
		Topic: "persistent://public/default/jinshu.dev",
		Consumer: PulsarConsumerConfig{
			SubscriptionName: "jinshu",
			SubscriptionType: "keyshared",
		},
	}
}
