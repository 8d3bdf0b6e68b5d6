package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/appctx"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/stocktx"
	"github.com/corray333/backend-labs/fulfillment/internal/kafka"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/spf13/viper"
)

// Request is the delivery worker protocol.
type Request interface {
	isRequest()
}

// HealthRequest asks for a liveness confirmation.
type HealthRequest struct {
	Reply chan<- Response
}

// DeliverRequest applies the order's negative inventory delta and marks the
// order delivered. The order is also published to the event topic,
// fire-and-forget.
type DeliverRequest struct {
	Order order.Order
	Reply chan<- Response
}

func (HealthRequest) isRequest()  {}
func (DeliverRequest) isRequest() {}

// ResponseKind discriminates delivery worker replies.
type ResponseKind int

const (
	HealthOK ResponseKind = iota
	Delivered
	Failed
)

// Response is the delivery worker reply. OrderID is set on Failed so the
// caller can resubmit.
type Response struct {
	Kind    ResponseKind
	OrderID int64
}

// ProducerLookup resolves the Kafka producer worker's mailbox through the
// supervisor on every publish, so a restarted producer is picked up
// transparently.
type ProducerLookup func(ctx context.Context) (*mailbox.Mailbox[kafka.ProducerRequest], error)

// Worker applies the Remove side of order fulfillment. Same concurrency
// shape as the storage worker: sequential mailbox, concurrent races.
type Worker struct {
	db       stocktx.Beginner
	apply    applyFunc
	producer ProducerLookup
	timeout  time.Duration
	mb       *mailbox.Mailbox[Request]
}

type applyFunc func(ctx context.Context, db stocktx.Beginner, o order.Order, direction stocktx.Direction, targetStatus order.Status) error

// Start starts the delivery worker and returns its mailbox.
func Start(ctx context.Context, ac *appctx.AppContext, producer ProducerLookup) *mailbox.Mailbox[Request] {
	w := &Worker{
		db:       ac.Pool(),
		apply:    stocktx.Apply,
		producer: producer,
		timeout:  deliverTimeout(),
		mb:       mailbox.New[Request](mailbox.DefaultCapacity),
	}

	slog.Info("Delivery worker started")
	go w.run(ctx)

	return w.mb
}

func deliverTimeout() time.Duration {
	seconds := viper.GetInt("worker.deliver_timeout_seconds")
	if seconds == 0 {
		seconds = 3
	}

	return time.Duration(seconds) * time.Second
}

func (w *Worker) run(ctx context.Context) {
	defer w.mb.Close()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Delivery worker shutting down")

			return
		case req := <-w.mb.Chan():
			switch r := req.(type) {
			case HealthRequest:
				r.Reply <- Response{Kind: HealthOK}
			case DeliverRequest:
				go w.handleDeliver(ctx, r)
			}
		}
	}
}

func (w *Worker) handleDeliver(ctx context.Context, req DeliverRequest) {
	go w.publish(ctx, req.Order)

	done := make(chan error, 1)
	go func() {
		done <- w.apply(ctx, w.db, req.Order, stocktx.Remove, order.StatusDelivered)
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Delivery abandoned", "order_id", req.Order.ID, "error", err)
			req.Reply <- Response{Kind: Failed, OrderID: req.Order.ID}

			return
		}
		req.Reply <- Response{Kind: Delivered}
	case <-timer.C:
		// The adjustment keeps retrying out-of-band; only the wait ends here.
		slog.Warn("Delivery timed out", "order_id", req.Order.ID, "timeout", w.timeout)
		req.Reply <- Response{Kind: Failed, OrderID: req.Order.ID}
	}
}

// publish hands the order to the Kafka producer worker. Fire-and-forget:
// the delivery worker neither blocks on nor retries the publish.
func (w *Worker) publish(ctx context.Context, o order.Order) {
	producerMB, err := w.producer(ctx)
	if err != nil {
		slog.Error("Failed to resolve Kafka producer worker", "order_id", o.ID, "error", err)

		return
	}

	if err := producerMB.Send(ctx, kafka.ProduceOrderRequest{Order: o}); err != nil {
		slog.Error("Failed to hand order to Kafka producer worker", "order_id", o.ID, "error", err)
	}
}
