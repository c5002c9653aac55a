package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shoestopper/checkout/internal/cart"
	"github.com/shoestopper/checkout/internal/catalog"
	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain taxonomy onto status codes. Stock conflicts are
// 409 so the client can say "just sold out" instead of a generic failure.
func writeError(w http.ResponseWriter, err error) {
	var stockErr *catalog.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"variant_id": stockErr.VariantID,
			"size":       stockErr.Size,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
		return
	}
	var transErr *orders.IllegalTransitionError
	if errors.As(err, &transErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": transErr.Error(),
			"from":  transErr.From,
			"to":    transErr.To,
		})
		return
	}

	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, orders.ErrIncompleteAddress),
		errors.Is(err, payment.ErrInvalidCode),
		errors.Is(err, payment.ErrNoPaymentRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, cart.ErrProductUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, catalog.ErrSizeNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage timeout, retry"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
