package orderworker

import (
	"context"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/delivery"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/storage"
)

// Request is the order worker protocol.
type Request interface {
	isRequest()
}

// HealthRequest asks for a liveness confirmation.
type HealthRequest struct {
	Reply chan<- Response
}

// ProcessOrderRequest runs one order through storage then delivery.
type ProcessOrderRequest struct {
	Order order.Order
	Reply chan<- Response
}

func (HealthRequest) isRequest()       {}
func (ProcessOrderRequest) isRequest() {}

// ResponseKind discriminates order worker replies.
type ResponseKind int

const (
	HealthOK ResponseKind = iota
	Processed
	FailedToProcess
)

// Response is the order worker reply. OrderID is set on FailedToProcess.
type Response struct {
	Kind    ResponseKind
	OrderID int64
}

// Lookups resolve downstream worker mailboxes through the supervisor. The
// order worker fetches each address once per lifetime, at startup.
type Lookups struct {
	Storage  func(ctx context.Context) (*mailbox.Mailbox[storage.Request], error)
	Delivery func(ctx context.Context) (*mailbox.Mailbox[delivery.Request], error)
}

// Worker orchestrates one order at a time through the two fulfillment
// steps. Orders are strictly sequential relative to each other.
type Worker struct {
	lookups Lookups
	mb      *mailbox.Mailbox[Request]
}

// Start starts the order worker and returns its mailbox.
func Start(ctx context.Context, lookups Lookups) *mailbox.Mailbox[Request] {
	w := &Worker{
		lookups: lookups,
		mb:      mailbox.New[Request](mailbox.DefaultCapacity),
	}

	go w.run(ctx)

	return w.mb
}

func (w *Worker) run(ctx context.Context) {
	defer w.mb.Close()

	storageMB, err := w.lookups.Storage(ctx)
	if err != nil {
		slog.Error("Order worker failed to resolve storage worker", "error", err)

		return
	}

	deliveryMB, err := w.lookups.Delivery(ctx)
	if err != nil {
		slog.Error("Order worker failed to resolve delivery worker", "error", err)

		return
	}

	slog.Info("Order worker started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Order worker shutting down")

			return
		case req := <-w.mb.Chan():
			switch r := req.(type) {
			case HealthRequest:
				r.Reply <- Response{Kind: HealthOK}
			case ProcessOrderRequest:
				w.process(ctx, storageMB, deliveryMB, r)
			}
		}
	}
}

func (w *Worker) process(
	ctx context.Context,
	storageMB *mailbox.Mailbox[storage.Request],
	deliveryMB *mailbox.Mailbox[delivery.Request],
	req ProcessOrderRequest,
) {
	o := req.Order

	storageReply := mailbox.NewReply[storage.Response]()
	if err := storageMB.Send(ctx, storage.UpdateStorageRequest{Order: o, Reply: storageReply}); err != nil {
		slog.Error("Failed to send order to storage worker", "order_id", o.ID, "error", err)
		req.Reply <- Response{Kind: FailedToProcess, OrderID: o.ID}

		return
	}

	storageResp, err := mailbox.Await(ctx, storageReply, storageMB.Done())
	if err != nil {
		slog.Error("Lost storage worker reply", "order_id", o.ID, "error", err)
		req.Reply <- Response{Kind: FailedToProcess, OrderID: o.ID}

		return
	}

	// A Failed storage reply does not stop delivery; the order proceeds
	// regardless and simply stays at its last committed status if both
	// steps stall.
	if storageResp.Kind == storage.Failed {
		slog.Warn("Storage step failed, proceeding to delivery", "order_id", o.ID)
	}

	deliveryReply := mailbox.NewReply[delivery.Response]()
	if err := deliveryMB.Send(ctx, delivery.DeliverRequest{Order: o, Reply: deliveryReply}); err != nil {
		slog.Error("Failed to send order to delivery worker", "order_id", o.ID, "error", err)
		req.Reply <- Response{Kind: FailedToProcess, OrderID: o.ID}

		return
	}

	if _, err := mailbox.Await(ctx, deliveryReply, deliveryMB.Done()); err != nil {
		slog.Error("Lost delivery worker reply", "order_id", o.ID, "error", err)
		req.Reply <- Response{Kind: FailedToProcess, OrderID: o.ID}

		return
	}

	req.Reply <- Response{Kind: Processed}
}
