package stocktx

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	inventoryrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/inventory/postgres"
	orderrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/order/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBeginner struct {
	attempts int
}

func (b *failingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	b.attempts++

	return nil, errors.New("connection refused")
}

func testOrder() order.Order {
	return order.Order{
		ID:     1,
		UserID: 10,
		Status: order.StatusNew,
		Content: order.Content{Items: []order.Item{
			{BookID: 1, Quantity: 3},
			{BookID: 2, Quantity: 5},
		}},
	}
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "add", Add.String())
	assert.Equal(t, "remove", Remove.String())
}

func TestApplyRetriesUntilContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	db := &failingBeginner{}
	err := Apply(ctx, db, testOrder(), Add, order.StatusReadyToDeliver)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, db.attempts, 1, "a failed transaction must be retried, not surfaced")
}

func TestApplyStopsBeforeFirstAttemptOnDeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := &failingBeginner{}
	err := Apply(ctx, db, testOrder(), Remove, order.StatusDelivered)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, db.attempts)
}

// TestApplyAgainstPostgres exercises the full transaction against a real,
// migrated database. Set FULFILLMENT_TEST_PG_DSN to run it.
func TestApplyAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("FULFILLMENT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("FULFILLMENT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	orderRepo := orderrepo.NewPostgresOrderRepository(pool)
	inventoryRepo := inventoryrepo.NewPostgresInventoryRepository(pool)
	t.Cleanup(func() {
		require.NoError(t, orderRepo.Cleanup(ctx))
		require.NoError(t, inventoryRepo.Cleanup(ctx))
	})

	o := testOrder()
	o.ID, err = orderRepo.Create(ctx, o.UserID, o.Content)
	require.NoError(t, err)

	require.NoError(t, Apply(ctx, pool, o, Add, order.StatusReadyToDeliver))

	quantities, err := inventoryRepo.Quantities(ctx, o.Content.BookIDs())
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 3, 2: 5}, quantities)

	stored, err := orderRepo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyToDeliver, stored.Status)

	require.NoError(t, Apply(ctx, pool, o, Remove, order.StatusDelivered))

	quantities, err = inventoryRepo.Quantities(ctx, o.Content.BookIDs())
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 0, 2: 0}, quantities)

	stored, err = orderRepo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, stored.Status)
}
