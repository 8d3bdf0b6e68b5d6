package ordersvc

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	orderrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/order/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"go.opentelemetry.io/otel"
)

// OrderService is the thin upstream surface consumed by the HTTP layer:
// creating an order (which the database trigger turns into a notification
// for the fulfillment workers) and checking its current state.
type OrderService struct {
	pgClient *postgres.Client
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
	}
}

// CreateOrder inserts a new order at status new and returns its id.
// Fulfillment kicks off through the insert notification, not through this
// call path.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, content order.Content) (int64, error) {
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "ordersvc.CreateOrder")
	defer span.End()

	repo := orderrepo.NewPostgresOrderRepository(s.pgClient.Pool())

	return repo.Create(ctx, userID, content)
}

// CheckOrder reads the order's current row.
func (s *OrderService) CheckOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "ordersvc.CheckOrder")
	defer span.End()

	repo := orderrepo.NewPostgresOrderRepository(s.pgClient.Pool())

	return repo.GetByID(ctx, orderID)
}
