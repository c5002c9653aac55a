package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoestopper/checkout/internal/catalog"
)

type CatalogHandler struct {
	Repo *catalog.VariantRepo
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/variants/{id}", h.getVariant)
}

func (h *CatalogHandler) RegisterAdmin(r chi.Router) {
	r.Put("/variants/{id}/sizes/{size}/stock", h.setStock)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Repo.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}

func (h *CatalogHandler) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.Repo.GetVariant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type setStockReq struct {
	Stock int `json:"stock"`
}

// setStock is the administrative overwrite; it bypasses reserve/release on
// purpose and must stay off the checkout path.
func (h *CatalogHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock must not be negative"})
		return
	}
	if err := h.Repo.SetStock(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "size"), req.Stock); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
