package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// QuoteProduct previews the discounted price of ?quantity= units.
func (h *Handler) QuoteProduct(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("quantity")
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		fail(w, r, badRequest("quantity must be an integer, got %q", raw))
		return
	}
	q, err := h.products.Quote(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productInput
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), req.CreateRequest)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// UpdateProduct applies a partial update. Absent fields keep their values.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPatch
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), req.UpdateRequest)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// AddDiscountTier adds a quantity discount to a product.
func (h *Handler) AddDiscountTier(w http.ResponseWriter, r *http.Request) {
	var req tierInput
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.AddDiscountTier(r.Context(), chi.URLParam(r, "id"), req.Tier)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// RemoveDiscountTier drops the tier with the given threshold.
func (h *Handler) RemoveDiscountTier(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "minQuantity")
	minQuantity, err := strconv.Atoi(raw)
	if err != nil {
		fail(w, r, badRequest("minQuantity must be an integer, got %q", raw))
		return
	}
	p, err := h.products.RemoveDiscountTier(r.Context(), chi.URLParam(r, "id"), minQuantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}
