package checkorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// service is an interface for the service layer.
type service interface {
	CheckOrder(ctx context.Context, orderID int64) (*order.Order, error)
}

// CheckOrder handles the check order request.
func CheckOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)

		return
	}

	found, err := service.CheckOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "order not found", http.StatusNotFound)

			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error checking order", "order_id", orderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(found); err != nil {
		slog.Error("Error writing response for check order", "order_id", orderID, "error", err)
	}
}
