package kafka

import (
	"context"
	"errors"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// Consumer subscribes to the order event topic and acknowledges every
// message. It takes no business action; it exists as an observable side
// channel for verifying that delivered orders were published.
type Consumer struct {
	reader *kafkago.Reader
}

// NewConsumer creates a consumer in the configured consumer group.
func NewConsumer() *Consumer {
	brokers := viper.GetStringSlice("kafka.brokers")
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	topic := viper.GetString("kafka.topic")
	if topic == "" {
		topic = "order-topic"
	}

	group := viper.GetString("kafka.group")
	if group == "" {
		group = "test-group"
	}

	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     brokers,
			GroupID:     group,
			Topic:       topic,
			StartOffset: kafkago.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
	}
}

// Run consumes until ctx ends. Offsets are committed asynchronously; a
// failed commit is logged and the message will simply be seen again.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			slog.Error("Failed to close Kafka reader", "error", err)
		}
	}()

	slog.Info("Kafka consumer started",
		"topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID,
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		slog.Info("Order event consumed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"payload", string(msg.Value),
		)

		go func(msg kafkago.Message) {
			if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
				slog.Error("Failed to commit offset", "offset", msg.Offset, "error", err)
			}
		}(msg)
	}
}
