package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same repository works inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OrderDal represents the order_info data access layer model.
type OrderDal struct {
	OrderID   int64
	UserID    int64
	Content   []byte
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	var content order.Content
	if err := json.Unmarshal(o.Content, &content); err != nil {
		return nil, fmt.Errorf("failed to decode order content: %w", err)
	}

	return &order.Order{
		ID:        o.OrderID,
		UserID:    o.UserID,
		Content:   content,
		Status:    status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}, nil
}

// PostgresOrderRepository persists orders in the order_info table.
type PostgresOrderRepository struct {
	conn Querier
}

func NewPostgresOrderRepository(conn Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

// Create inserts a new order with status new and returns the assigned id.
func (r *PostgresOrderRepository) Create(ctx context.Context, userID int64, content order.Content) (int64, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return 0, fmt.Errorf("failed to encode order content: %w", err)
	}

	now := time.Now().UTC()
	query, args, err := psql.
		Insert("order_info").
		Columns("user_id", "content", "status", "created_at", "updated_at").
		Values(userID, raw, order.StatusNew, now, now).
		Suffix("RETURNING order_id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var orderID int64
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&orderID); err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	return orderID, nil
}

// GetByID returns the current row for one order.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, orderID int64) (*order.Order, error) {
	query, args, err := psql.
		Select("order_id", "user_id", "content", "status", "created_at", "updated_at").
		From("order_info").
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var dal OrderDal
	err = r.conn.QueryRow(ctx, query, args...).
		Scan(&dal.OrderID, &dal.UserID, &dal.Content, &dal.Status, &dal.CreatedAt, &dal.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to select order %d: %w", orderID, err)
	}

	return dal.ToModel()
}

// UpdateStatus moves the order to a new status. Runs against whatever
// Querier the repository was built with, so the engine can call it inside
// its transaction.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, orderID int64, status order.Status) error {
	query, args, err := psql.
		Update("order_info").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update status of order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", orderID)
	}

	return nil
}

// Cleanup truncates the order table. Test teardown only.
func (r *PostgresOrderRepository) Cleanup(ctx context.Context) error {
	_, err := r.conn.Exec(ctx, `TRUNCATE order_info CASCADE`)

	return err
}
