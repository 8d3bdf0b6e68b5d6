package order

import (
	"time"
)

// Order represents a stored customer order. Copies handed between workers
// are value snapshots; the database row stays the source of truth.
type Order struct {
	ID        int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Content   Content   `json:"content"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a single order line: a book and the ordered quantity.
type Item struct {
	BookID   int64 `json:"book_id"`
	Quantity int64 `json:"quantity"`
}

// Content is the ordered list of line items stored in the order's JSON
// content column.
type Content struct {
	Items []Item `json:"content"`
}

// BookIDs returns the book ids referenced by the order's line items,
// in line-item order.
func (c Content) BookIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.BookID)
	}

	return ids
}
