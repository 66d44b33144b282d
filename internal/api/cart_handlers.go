package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"portal.health/patient-portal/internal/core"
	"portal.health/patient-portal/internal/store"
)

func (h *APIHandler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		products []store.Product
		err      error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		products, err = h.cartService.GetProductsByCategory(r.Context(), store.Category(category))
	} else {
		products, err = h.cartService.GetAllProducts(r.Context())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *APIHandler) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cartService.CartSummary(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type AddToCartRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

func (h *APIHandler) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	line, err := h.cartService.AddToCart(r.Context(), userIDFrom(r.Context()), req.ProductID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

type UpdateQuantityRequest struct {
	Quantity *int64 `json:"quantity" validate:"required"`
}

func (h *APIHandler) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.ownedCartItem(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	line, err := h.cartService.UpdateQuantity(r.Context(), itemID, *req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if line == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *APIHandler) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.ownedCartItem(w, r)
	if !ok {
		return
	}
	if err := h.cartService.RemoveFromCart(r.Context(), itemID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.cartService.ClearCart(r.Context(), userIDFrom(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedCartItem parses {itemID} and checks it belongs to the caller. Lines owned by
// other users are reported as missing.
func (h *APIHandler) ownedCartItem(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart item id")
		return 0, false
	}
	line, err := h.cartService.GetCartLine(r.Context(), itemID)
	if err == nil && line.UserID != userIDFrom(r.Context()) {
		err = core.ErrCartItemNotFound
	}
	if err != nil {
		respondError(w, r, err)
		return 0, false
	}
	return itemID, true
}
