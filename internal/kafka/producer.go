package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// messageKey is a constant placeholder: events are not partitioned by
// order, messages for different orders may land anywhere.
const messageKey = "Test-Key"

// ProducerRequest is the producer worker protocol.
type ProducerRequest interface {
	isProducerRequest()
}

// ProducerHealthRequest asks for a liveness confirmation.
type ProducerHealthRequest struct {
	Reply chan<- ProducerResponse
}

// ProduceOrderRequest publishes one order event. Best-effort: no reply,
// failures are logged and dropped.
type ProduceOrderRequest struct {
	Order order.Order
}

func (ProducerHealthRequest) isProducerRequest() {}
func (ProduceOrderRequest) isProducerRequest()   {}

// ProducerResponse is the reply to a ProducerHealthRequest.
type ProducerResponse int

const ProducerHealthOK ProducerResponse = iota

// ProducerWorker owns the single outbound connection to the event cluster
// and drains its mailbox one request at a time; each publish runs as its
// own goroutine so a slow broker does not stall health probes.
type ProducerWorker struct {
	writer      *kafkago.Writer
	sendTimeout time.Duration
	mb          *mailbox.Mailbox[ProducerRequest]
}

// StartProducer starts the producer worker and returns its mailbox.
func StartProducer(ctx context.Context) *mailbox.Mailbox[ProducerRequest] {
	brokers := viper.GetStringSlice("kafka.brokers")
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	topic := viper.GetString("kafka.topic")
	if topic == "" {
		topic = "order-topic"
	}

	sendTimeoutSeconds := viper.GetInt("kafka.send_timeout_seconds")
	if sendTimeoutSeconds == 0 {
		sendTimeoutSeconds = 2
	}

	w := &ProducerWorker{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		},
		sendTimeout: time.Duration(sendTimeoutSeconds) * time.Second,
		mb:          mailbox.New[ProducerRequest](mailbox.DefaultCapacity),
	}

	slog.Info("Kafka producer worker started", "topic", topic, "brokers", brokers)
	go w.run(ctx)

	return w.mb
}

func (w *ProducerWorker) run(ctx context.Context) {
	defer func() {
		w.mb.Close()
		if err := w.writer.Close(); err != nil {
			slog.Error("Failed to close Kafka writer", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.mb.Chan():
			switch r := req.(type) {
			case ProducerHealthRequest:
				r.Reply <- ProducerHealthOK
			case ProduceOrderRequest:
				go w.produce(ctx, r.Order)
			}
		}
	}
}

func (w *ProducerWorker) produce(ctx context.Context, o order.Order) {
	payload, err := json.Marshal(o)
	if err != nil {
		slog.Error("Failed to encode order event", "order_id", o.ID, "error", err)

		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	err = w.writer.WriteMessages(sendCtx, kafkago.Message{
		Key:   []byte(messageKey),
		Value: payload,
	})
	if err != nil {
		// Best-effort side channel: never retried.
		slog.Error("Failed to publish order event", "order_id", o.ID, "error", err)

		return
	}

	slog.Info("Order event published", "order_id", o.ID)
}
