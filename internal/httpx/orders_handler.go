package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shoestopper/checkout/internal/auth"
	"github.com/shoestopper/checkout/internal/checkout"
	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/redisx"
)

type OrdersHandler struct {
	Repo     *orders.Repo
	Checkout *checkout.Service
	Redis    *redis.Client
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func (h *OrdersHandler) RegisterAdmin(r chi.Router) {
	r.Post("/orders/{id}/status", h.transitionOrder)
}

type placeOrderReq struct {
	DeliveryAddress orders.Address       `json:"delivery_address"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing payment_method"})
		return
	}

	placed, err := h.Checkout.PlaceOrder(r.Context(), auth.UserID(r.Context()), req.DeliveryAddress, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	// status cache so GET right after checkout skips the DB
	key := fmt.Sprintf(redisx.KeyOrderStatus, placed.OrderID)
	_ = h.Redis.Set(r.Context(), key, fmt.Sprintf(`{"status":%q}`, placed.Status), redisx.TTLStatusCache).Err()

	writeJSON(w, http.StatusCreated, placed)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	out, err := h.Repo.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	o, err := h.Repo.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if o.UserID != auth.UserID(r.Context()) {
		writeError(w, orders.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.Repo.Cancel(r.Context(), orderID, auth.UserID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusOK, o)
}

type transitionReq struct {
	Status orders.Status `json:"status"`
	Note   string        `json:"note"`
}

func (h *OrdersHandler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !orders.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	o, err := h.Repo.Transition(r.Context(), orderID, req.Status, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(r *http.Request, o orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(r.Context(), key, fmt.Sprintf(`{"status":%q}`, o.Status), redisx.TTLStatusCache).Err()
}
