package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/go-playground/validator/v10"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, userID int64, content order.Content) (int64, error)
}

// itemInCreateOrderRequest represents a line item in a create order request.
type itemInCreateOrderRequest struct {
	BookID   int64 `json:"book_id"  validate:"gt=0"`
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	UserID  int64                      `json:"user_id" validate:"gt=0"`
	Content []itemInCreateOrderRequest `json:"content" validate:"required,min=1,dive"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

// toModel converts createOrderRequest content to the order content model.
func (r *createOrderRequest) toModel() order.Content {
	items := make([]order.Item, len(r.Content))
	for i, item := range r.Content {
		items[i] = order.Item{BookID: item.BookID, Quantity: item.Quantity}
	}

	return order.Content{Items: items}
}

// createOrderResponse represents a create order response.
type createOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for create order", "error", err)

		return
	}

	orderID, err := service.CreateOrder(r.Context(), req.UserID, req.toModel())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(createOrderResponse{OrderID: orderID}); err != nil {
		slog.Error("Error writing response for create order", "error", err)
	}
}
