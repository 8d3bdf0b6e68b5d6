package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/appctx"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/stocktx"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/spf13/viper"
)

// Request is the storage worker protocol.
type Request interface {
	isRequest()
}

// HealthRequest asks for a liveness confirmation.
type HealthRequest struct {
	Reply chan<- Response
}

// UpdateStorageRequest applies the order's positive inventory delta and
// marks the order ready to deliver.
type UpdateStorageRequest struct {
	Order order.Order
	Reply chan<- Response
}

func (HealthRequest) isRequest()        {}
func (UpdateStorageRequest) isRequest() {}

// ResponseKind discriminates storage worker replies.
type ResponseKind int

const (
	HealthOK ResponseKind = iota
	Updated
	Failed
)

// Response is the storage worker reply. OrderID is set on Failed so the
// caller can resubmit.
type Response struct {
	Kind    ResponseKind
	OrderID int64
}

// Worker applies the Add side of order fulfillment. Its mailbox is drained
// one message at a time, but each adjustment races its timer on a separate
// goroutine, so several orders can be in flight at once.
type Worker struct {
	db      stocktx.Beginner
	apply   applyFunc
	timeout time.Duration
	mb      *mailbox.Mailbox[Request]
}

type applyFunc func(ctx context.Context, db stocktx.Beginner, o order.Order, direction stocktx.Direction, targetStatus order.Status) error

// Start starts the storage worker and returns its mailbox.
func Start(ctx context.Context, ac *appctx.AppContext) *mailbox.Mailbox[Request] {
	w := &Worker{
		db:      ac.Pool(),
		apply:   stocktx.Apply,
		timeout: updateTimeout(),
		mb:      mailbox.New[Request](mailbox.DefaultCapacity),
	}

	slog.Info("Storage worker started")
	go w.run(ctx)

	return w.mb
}

func updateTimeout() time.Duration {
	seconds := viper.GetInt("worker.update_timeout_seconds")
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
			slog.Info("Storage worker shutting down")

			return
		case req := <-w.mb.Chan():
			switch r := req.(type) {
			case HealthRequest:
				r.Reply <- Response{Kind: HealthOK}
			case UpdateStorageRequest:
				go w.handleUpdate(ctx, r)
			}
		}
	}
}

func (w *Worker) handleUpdate(ctx context.Context, req UpdateStorageRequest) {
	done := make(chan error, 1)
	go func() {
		done <- w.apply(ctx, w.db, req.Order, stocktx.Add, order.StatusReadyToDeliver)
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Storage update abandoned", "order_id", req.Order.ID, "error", err)
			req.Reply <- Response{Kind: Failed, OrderID: req.Order.ID}

			return
		}
		req.Reply <- Response{Kind: Updated}
	case <-timer.C:
		// The adjustment keeps retrying out-of-band; only the wait ends here.
		slog.Warn("Storage update timed out", "order_id", req.Order.ID, "timeout", w.timeout)
		req.Reply <- Response{Kind: Failed, OrderID: req.Order.ID}
	}
}
