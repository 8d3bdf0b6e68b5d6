package notify

import (
	"context"
	"testing"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/orderworker"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedListener replays a fixed sequence of payloads, then blocks until
// the context ends.
type scriptedListener struct {
	payloads []string
}

func (l *scriptedListener) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if len(l.payloads) == 0 {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	payload := l.payloads[0]
	l.payloads = l.payloads[1:]

	return &pgconn.Notification{Channel: "table_update", Payload: payload}, nil
}

func TestRunDispatchesInsertedOrders(t *testing.T) {
	l := &scriptedListener{payloads: []string{
		`{"table":"order_info","action_type":"INSERT","order_id":7,"user_id":3,"content":{"content":[{"book_id":1,"quantity":2}]},"status":"new"}`,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var processed []order.Order
	err := run(ctx, l, func(_ context.Context, o order.Order) (orderworker.Response, error) {
		processed = append(processed, o)
		cancel()

		return orderworker.Response{Kind: orderworker.Processed}, nil
	})

	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, int64(7), processed[0].ID)
	assert.Equal(t, int64(3), processed[0].UserID)
	assert.Equal(t, order.StatusNew, processed[0].Status)
	require.Len(t, processed[0].Content.Items, 1)
	assert.Equal(t, int64(1), processed[0].Content.Items[0].BookID)
	assert.Equal(t, int64(2), processed[0].Content.Items[0].Quantity)
}

func TestRunIgnoresNonInsertActions(t *testing.T) {
	l := &scriptedListener{payloads: []string{
		`{"table":"order_info","action_type":"UPDATE","order_id":7}`,
		`{"table":"order_info","action_type":"DELETE","order_id":7}`,
		`{"table":"order_info","action_type":"INSERT","order_id":8}`,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var processed []int64
	err := run(ctx, l, func(_ context.Context, o order.Order) (orderworker.Response, error) {
		processed = append(processed, o.ID)
		cancel()

		return orderworker.Response{Kind: orderworker.Processed}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{8}, processed)
}

func TestRunMalformedPayloadIsFatal(t *testing.T) {
	l := &scriptedListener{payloads: []string{`{not json`}}

	err := run(context.Background(), l, func(context.Context, order.Order) (orderworker.Response, error) {
		t.Fatal("process must not be called for a malformed payload")

		return orderworker.Response{}, nil
	})

	assert.ErrorContains(t, err, "malformed notification payload")
}

func TestRunContinuesWhenProcessingFails(t *testing.T) {
	l := &scriptedListener{payloads: []string{
		`{"table":"order_info","action_type":"INSERT","order_id":1}`,
		`{"table":"order_info","action_type":"INSERT","order_id":2}`,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var processed []int64
	err := run(ctx, l, func(_ context.Context, o order.Order) (orderworker.Response, error) {
		processed = append(processed, o.ID)
		if o.ID == 1 {
			return orderworker.Response{}, context.DeadlineExceeded
		}
		cancel()

		return orderworker.Response{Kind: orderworker.Processed}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, processed)
}

func TestRunStopsCleanlyOnContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, &scriptedListener{}, func(context.Context, order.Order) (orderworker.Response, error) {
		return orderworker.Response{}, nil
	})

	assert.NoError(t, err)
}
