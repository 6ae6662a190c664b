package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/jinshu-im/jinshu/internal/logger"
)

func subscriptionType(name string) (pulsar.SubscriptionType, error) {
	switch name {
	case "exclusive", "0":
		return pulsar.Exclusive, nil
	case "shared", "1":
		return pulsar.Shared, nil
	case "failover", "2":
		return pulsar.Failover, nil
	case "keyshared", "3", "":
		return pulsar.KeyShared, nil
	default:
		return 0, fmt.Errorf("invalid subscription type %q", name)
	}
}

// PulsarProducer appends messages to a Pulsar topic, keyed by message id.
type PulsarProducer struct {
	client   pulsar.Client
	producer pulsar.Producer
	topic    string
}

// NewPulsarProducer connects to the configured broker.
func NewPulsarProducer(cfg PulsarConfig) (*PulsarProducer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("create pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{Topic: cfg.Topic})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulsar producer for %s: %w", cfg.Topic, err)
	}
	return &PulsarProducer{client: client, producer: producer, topic: cfg.Topic}, nil
}

func (p *PulsarProducer) Enqueue(ctx context.Context, msg *QueuedMessage) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	id, err := p.producer.Send(ctx, &pulsar.ProducerMessage{
		Payload: payload,
		Key:     string(msg.Key()),
	})
	if err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	logger.Debug("Message enqueued", "topic", p.topic, "message_id", id)
	return nil
}

func (p *PulsarProducer) Close() error {
	p.producer.Close()
	p.client.Close()
	return nil
}

// PulsarConsumer delivers messages of one subscription to a Handler.
// Messages are acknowledged after the handler has seen them.
type PulsarConsumer struct {
	client   pulsar.Client
	consumer pulsar.Consumer
	topic    string
}

// NewPulsarConsumer subscribes to the configured topic.
func NewPulsarConsumer(cfg PulsarConfig) (*PulsarConsumer, error) {
	subType, err := subscriptionType(cfg.Consumer.SubscriptionType)
	if err != nil {
		return nil, err
	}

	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("create pulsar client: %w", err)
	}

	subscription := cfg.Consumer.SubscriptionName
	if subscription == "" {
		subscription = "jinshu"
	}
	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:                       cfg.Topic,
		Name:                        cfg.Consumer.ConsumerName,
		SubscriptionName:            subscription,
		Type:                        subType,
		SubscriptionInitialPosition: pulsar.SubscriptionPositionEarliest,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Topic, err)
	}

	logger.Info("Topic is subscribed", "topic", cfg.Topic, "subscription", subscription)
	return &PulsarConsumer{client: client, consumer: consumer, topic: cfg.Topic}, nil
}

func (c *PulsarConsumer) Run(ctx context.Context, handler Handler) error {
	defer logger.Info("Topic is unsubscribed", "topic", c.topic)

	for {
		received, err := c.consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive from %s: %w", c.topic, err)
		}

		if msg, ok := decodeQueued(received.Payload(), fmt.Sprintf("%v", received.ID())); ok {
			result := handler.Handle(ctx, c.topic, msg)
			switch {
			case result.IsFatal():
				logger.Error("Process message error", "error", result.Reason())
				return fmt.Errorf("handler stopped consumption: %s", result.Reason())
			case !result.IsOk():
				logger.Warn("Failed to process message", "error", result.Reason())
			}
		}

		if err := c.consumer.Ack(received); err != nil {
			return fmt.Errorf("ack message %s: %w", received.ID(), err)
		}
	}
}

func (c *PulsarConsumer) Close() error {
	c.consumer.Close()
	c.client.Close()
	return nil
}
