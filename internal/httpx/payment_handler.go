package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/payment"
)

type PaymentHandler struct {
	Gate *payment.Gate
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Post("/payments/initiate", h.initiate)
	r.Post("/payments/confirm", h.confirm)
}

type initiateReq struct {
	OrderID string               `json:"order_id"`
	Method  orders.PaymentMethod `json:"method"`
}

func (h *PaymentHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Method == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	txID, err := h.Gate.Initiate(r.Context(), req.OrderID, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": txID})
}

type confirmReq struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Code          string `json:"code"`
}

func (h *PaymentHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.TransactionID == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	if err := h.Gate.Confirm(r.Context(), req.OrderID, req.TransactionID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
