package postgresrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresInventoryRepository persists per-book stock in the book_storage
// table. Rows appear on first adjustment; a missing row reads as zero.
type PostgresInventoryRepository struct {
	conn Querier
}

func NewPostgresInventoryRepository(conn Querier) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{
		conn: conn,
	}
}

// Quantities returns current stock for the given book ids. Books without a
// row yet are absent from the result; a NULL quantity also reads as absent.
func (r *PostgresInventoryRepository) Quantities(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	query, args, err := psql.
		Select("book_id", "quantity").
		From("book_storage").
		Where(sq.Eq{"book_id": bookIDs}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select stock quantities: %w", err)
	}
	defer rows.Close()

	quantities := make(map[int64]int64, len(bookIDs))
	for rows.Next() {
		var (
			bookID   int64
			quantity *int64
		)
		if err := rows.Scan(&bookID, &quantity); err != nil {
			return nil, err
		}
		if quantity != nil {
			quantities[bookID] = *quantity
		}
	}

	return quantities, rows.Err()
}

// Upsert sets the stock of one book to the given absolute quantity,
// creating the row if it does not exist yet.
func (r *PostgresInventoryRepository) Upsert(ctx context.Context, item order.Item) error {
	query, args, err := psql.
		Insert("book_storage").
		Columns("book_id", "quantity").
		Values(item.BookID, item.Quantity).
		Suffix("ON CONFLICT (book_id) DO UPDATE SET quantity = EXCLUDED.quantity").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert stock for book %d: %w", item.BookID, err)
	}

	return nil
}

// Cleanup truncates the stock table. Test teardown only.
func (r *PostgresInventoryRepository) Cleanup(ctx context.Context) error {
	_, err := r.conn.Exec(ctx, `TRUNCATE book_storage CASCADE`)

	return err
}
