package storage

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/stocktx"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWorker(t *testing.T, apply applyFunc, timeout time.Duration) *mailbox.Mailbox[Request] {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w := &Worker{
		apply:   apply,
		timeout: timeout,
		mb:      mailbox.New[Request](mailbox.DefaultCapacity),
	}
	go w.run(ctx)

	return w.mb
}

func testOrder(id int64) order.Order {
	return order.Order{
		ID:     id,
		UserID: 10,
		Status: order.StatusNew,
		Content: order.Content{Items: []order.Item{
			{BookID: 1, Quantity: 2},
		}},
	}
}

func TestHealth(t *testing.T) {
	mb := startTestWorker(t, func(context.Context, stocktx.Beginner, order.Order, stocktx.Direction, order.Status) error {
		return nil
	}, time.Second)

	reply := mailbox.NewReply[Response]()
	require.NoError(t, mb.Send(context.Background(), HealthRequest{Reply: reply}))

	resp, err := mailbox.Await(context.Background(), reply, mb.Done())
	require.NoError(t, err)
	assert.Equal(t, HealthOK, resp.Kind)
}

func TestUpdateStorageSuccess(t *testing.T) {
	var (
		gotDirection stocktx.Direction
		gotStatus    order.Status
	)
	mb := startTestWorker(t, func(_ context.Context, _ stocktx.Beginner, _ order.Order, d stocktx.Direction, s order.Status) error {
		gotDirection = d
		gotStatus = s

		return nil
	}, time.Second)

	reply := mailbox.NewReply[Response]()
	require.NoError(t, mb.Send(context.Background(), UpdateStorageRequest{Order: testOrder(1), Reply: reply}))

	resp, err := mailbox.Await(context.Background(), reply, mb.Done())
	require.NoError(t, err)
	assert.Equal(t, Updated, resp.Kind)
	assert.Equal(t, stocktx.Add, gotDirection)
	assert.Equal(t, order.StatusReadyToDeliver, gotStatus)
}

func TestUpdateStorageTimeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	mb := startTestWorker(t, func(ctx context.Context, _ stocktx.Beginner, _ order.Order, _ stocktx.Direction, _ order.Status) error {
		select {
		case <-block:
		case <-ctx.Done():
		}

		return ctx.Err()
	}, 50*time.Millisecond)

	reply := mailbox.NewReply[Response]()
	require.NoError(t, mb.Send(context.Background(), UpdateStorageRequest{Order: testOrder(77), Reply: reply}))

	resp, err := mailbox.Await(context.Background(), reply, mb.Done())
	require.NoError(t, err)
	assert.Equal(t, Failed, resp.Kind)
	assert.Equal(t, int64(77), resp.OrderID)
}

// Orders are dequeued one at a time but their adjustment races run
// concurrently: a stuck order must not delay the next one.
func TestUpdatesRunConcurrently(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	mb := startTestWorker(t, func(ctx context.Context, _ stocktx.Beginner, o order.Order, _ stocktx.Direction, _ order.Status) error {
		if o.ID == 1 {
			select {
			case <-block:
			case <-ctx.Done():
			}
		}

		return nil
	}, time.Second)

	slowReply := mailbox.NewReply[Response]()
	require.NoError(t, mb.Send(context.Background(), UpdateStorageRequest{Order: testOrder(1), Reply: slowReply}))

	fastReply := mailbox.NewReply[Response]()
	require.NoError(t, mb.Send(context.Background(), UpdateStorageRequest{Order: testOrder(2), Reply: fastReply}))

	resp, err := mailbox.Await(context.Background(), fastReply, mb.Done())
	require.NoError(t, err)
	assert.Equal(t, Updated, resp.Kind)
}
