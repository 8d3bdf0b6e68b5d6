package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/orderworker"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/supervisor"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/viper"
)

// ActionType is the row-change kind reported by the database trigger.
type ActionType string

const (
	ActionInsert ActionType = "INSERT"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// Payload is the change-notification document: the table, the change kind,
// and the full order row, flattened.
type Payload struct {
	Table      string     `json:"table"`
	ActionType ActionType `json:"action_type"`
	order.Order
}

// listener abstracts the notification source for tests.
type listener interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// processOrderFunc abstracts the supervisor round trip for tests.
type processOrderFunc func(ctx context.Context, o order.Order) (orderworker.Response, error)

// Run subscribes to the order change channel and feeds freshly inserted
// orders into the order worker, one at a time: the next notification is not
// received until the previous order's reply arrives. Run returns only on
// context end or an unrecoverable listener failure; a malformed payload is
// such a failure.
func Run(ctx context.Context, sup *mailbox.Mailbox[supervisor.Request]) error {
	ac, err := supervisor.AppContext(ctx, sup)
	if err != nil {
		return fmt.Errorf("failed to fetch app context: %w", err)
	}

	channel := viper.GetString("notify.channel")
	if channel == "" {
		channel = "table_update"
	}

	conn, err := ac.Pool().Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
	}

	slog.Info("Notify worker started", "channel", channel)

	process := func(ctx context.Context, o order.Order) (orderworker.Response, error) {
		return supervisor.ProcessOrder(ctx, sup, o)
	}

	return run(ctx, conn.Conn(), process)
}

func run(ctx context.Context, l listener, process processOrderFunc) error {
	for {
		notification, err := l.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Notify worker shutting down")

				return nil
			}

			return fmt.Errorf("failed to receive notification: %w", err)
		}

		var payload Payload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			return fmt.Errorf("malformed notification payload %q: %w", notification.Payload, err)
		}

		switch payload.ActionType {
		case ActionInsert:
			slog.Info("New order observed", "order_id", payload.Order.ID)

			resp, err := process(ctx, payload.Order)
			if err != nil {
				slog.Error("Failed to process order", "order_id", payload.Order.ID, "error", err)

				continue
			}
			slog.Info("Order processed", "order_id", payload.Order.ID, "response", resp.Kind)
		default:
			slog.Debug("Ignoring notification", "action", payload.ActionType, "order_id", payload.Order.ID)
		}
	}
}
