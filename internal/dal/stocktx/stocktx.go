// Package stocktx applies an order's inventory delta and its status
// transition as one serializable database transaction, retried until it
// commits. It is the only writer of book_storage outside of tests.
package stocktx

import (
	"context"
	"log/slog"

	inventoryrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/inventory/postgres"
	orderrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/order/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
)

// Direction is the sign of the inventory adjustment.
type Direction int

const (
	// Add increases stock by each line item's quantity.
	Add Direction = iota
	// Remove decreases stock by each line item's quantity. Stock is not
	// floor-clamped; removing past zero goes negative.
	Remove
)

func (d Direction) String() string {
	if d == Add {
		return "add"
	}

	return "remove"
}

// Beginner is the transaction source, satisfied by *pgxpool.Pool.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Apply adjusts stock for every line item of the order and moves the order
// to targetStatus in a single serializable transaction. Any failure rolls
// the whole transaction back and the sequence restarts from a fresh one,
// with no attempt cap and no backoff; callers bound total wall-clock time
// through their own timers. Returns nil only after a commit, or the context
// error once ctx ends.
func Apply(ctx context.Context, db Beginner, o order.Order, direction Direction, targetStatus order.Status) error {
	tracer := otel.Tracer("fulfillment")
	ctx, span := tracer.Start(ctx, "stocktx.Apply")
	defer span.End()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := applyOnce(ctx, db, o, direction, targetStatus)
		if err == nil {
			return nil
		}

		slog.Warn("inventory adjustment failed, retrying",
			"order_id", o.ID,
			"direction", direction.String(),
			"attempt", attempt,
			"error", err,
		)
	}
}

func applyOnce(ctx context.Context, db Beginner, o order.Order, direction Direction, targetStatus order.Status) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inventoryRepo := inventoryrepo.NewPostgresInventoryRepository(tx)
	orderRepo := orderrepo.NewPostgresOrderRepository(tx)

	quantities, err := inventoryRepo.Quantities(ctx, o.Content.BookIDs())
	if err != nil {
		return err
	}

	for _, item := range o.Content.Items {
		current := quantities[item.BookID] // missing row reads as 0

		var updated int64
		switch direction {
		case Add:
			updated = current + item.Quantity
		case Remove:
			updated = current - item.Quantity
		}

		if err := inventoryRepo.Upsert(ctx, order.Item{BookID: item.BookID, Quantity: updated}); err != nil {
			return err
		}
	}

	if err := orderRepo.UpdateStatus(ctx, o.ID, targetStatus); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
