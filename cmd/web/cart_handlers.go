package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"finitefield.org/hanko-storefront/internal/cart"
	"finitefield.org/hanko-storefront/internal/format"
	"finitefield.org/hanko-storefront/internal/platform/httpx"
)

type cartResponse struct {
	Items           []cart.Item     `json:"items"`
	Count           int             `json:"count"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	SubtotalDisplay string          `json:"subtotalDisplay"`
}

type quantityRequest struct {
	Quantity int    `json:"quantity"`
	Size     string `json:"size"`
}

func (sf *storefront) writeCart(w http.ResponseWriter, status int, c *cart.Cart) {
	items := c.Items()
	subtotal := cart.Subtotal(items)
	httpx.WriteJSON(w, status, cartResponse{
		Items:           items,
		Count:           c.Count(),
		Subtotal:        subtotal,
		SubtotalDisplay: format.Currency(subtotal, sf.cfg.Checkout.Currency),
	})
}

func (sf *storefront) listCart(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	sf.writeCart(w, http.StatusOK, sh.cart)
}

func (sf *storefront) addCartItem(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	var item cart.Item
	if !decodeBody(w, r, &item) {
		return
	}
	if err := sh.cart.Add(r.Context(), item); err != nil {
		writeCartError(w, r, err)
		return
	}
	sf.writeCart(w, http.StatusCreated, sh.cart)
}

func (sf *storefront) updateCartItem(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sh.cart.SetQuantity(r.Context(), productID, req.Size, req.Quantity); err != nil {
		writeCartError(w, r, err)
		return
	}
	sf.writeCart(w, http.StatusOK, sh.cart)
}

func (sf *storefront) removeCartItem(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	if err := sh.cart.Remove(r.Context(), productID, r.URL.Query().Get("size")); err != nil {
		writeCartError(w, r, err)
		return
	}
	sf.writeCart(w, http.StatusOK, sh.cart)
}

func (sf *storefront) clearCart(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	if err := sh.cart.Clear(r.Context()); err != nil {
		writeCartError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "productID"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_product_id", "product id must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, cart.ErrInvalidItem):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_item", err.Error(), http.StatusBadRequest))
	case errors.Is(err, cart.ErrItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", err.Error(), http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("sync_unavailable", "cart update could not be shared", http.StatusServiceUnavailable))
	}
}
