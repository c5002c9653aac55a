package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoestopper/checkout/internal/auth"
	"github.com/shoestopper/checkout/internal/cart"
)

type CartHandler struct {
	Repo *cart.Repo
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Post("/cart/items/remove", h.removeItem)
}

type addItemReq struct {
	VariantID string `json:"variant_id"`
	Size      string `json:"size"`
	Qty       int    `json:"qty"`
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.Repo.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []cart.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VariantID == "" || req.Size == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	if err := h.Repo.Add(r.Context(), auth.UserID(r.Context()), req.VariantID, req.Size, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VariantID == "" || req.Size == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	if err := h.Repo.Remove(r.Context(), auth.UserID(r.Context()), req.VariantID, req.Size); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
