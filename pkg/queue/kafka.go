package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// KafkaProducer appends messages to a Kafka topic, keyed by message id.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

// NewKafkaProducer connects to the configured bootstrap servers.
func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Servers, ",")...),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
	if cfg.Producer.MessageTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.Producer.MessageTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaProducer{client: client, topic: cfg.Topic}, nil
}

func (p *KafkaProducer) Enqueue(ctx context.Context, msg *QueuedMessage) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   msg.Key(),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	logger.Debug("Message enqueued",
		"topic", p.topic, "partition", record.Partition, "offset", record.Offset)
	return nil
}

func (p *KafkaProducer) Close() error {
	p.client.Close()
	return nil
}

// KafkaConsumer delivers records of one topic to a Handler as part of a
// consumer group. Offsets are committed per record after the handler has
// seen it, unless auto-commit is configured.
type KafkaConsumer struct {
	client     *kgo.Client
	topic      string
	autoCommit bool
}

// NewKafkaConsumer joins the configured consumer group.
func NewKafkaConsumer(cfg KafkaConfig) (*KafkaConsumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Servers, ",")...),
		kgo.ConsumerGroup(cfg.Consumer.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
	}
	if cfg.Consumer.AutoOffsetReset == "latest" {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	if cfg.Consumer.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(cfg.Consumer.SessionTimeout))
	}
	if !cfg.Consumer.AutoCommit {
		opts = append(opts, kgo.DisableAutoCommit())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	logger.Info("Topic is subscribed", "topic", cfg.Topic, "group", cfg.Consumer.GroupID)
	return &KafkaConsumer{
		client:     client,
		topic:      cfg.Topic,
		autoCommit: cfg.Consumer.AutoCommit,
	}, nil
}

func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	defer logger.Info("Topic is unsubscribed", "topic", c.topic)

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			logger.Warn("Consumer stream is closed")
			return nil
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch %s[%d]: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err)
		}

		var fatal error
		fetches.EachRecord(func(record *kgo.Record) {
			if fatal != nil {
				return
			}
			fatal = c.dispatch(ctx, handler, record)
		})
		if fatal != nil {
			return fatal
		}
	}
}

func (c *KafkaConsumer) dispatch(ctx context.Context, handler Handler, record *kgo.Record) error {
	origin := fmt.Sprintf("%s[%d]@%d", record.Topic, record.Partition, record.Offset)
	if msg, ok := decodeQueued(record.Value, origin); ok {
		result := handler.Handle(ctx, c.topic, msg)
		switch {
		case result.IsFatal():
			logger.Error("Process message error", "error", result.Reason())
			return fmt.Errorf("handler stopped consumption: %s", result.Reason())
		case !result.IsOk():
			logger.Warn("Failed to process message", "error", result.Reason())
		}
	}

	if !c.autoCommit {
		if err := c.client.CommitRecords(ctx, record); err != nil {
			return fmt.Errorf("commit offset %s[%d]@%d: %w",
				record.Topic, record.Partition, record.Offset, err)
		}
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.client.Close()
	return nil
}
