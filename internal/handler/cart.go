package handler

import (
	"net/http"

	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/wire"
)

// cartResult writes a successful cart mutation.
func cartResult(w http.ResponseWriter, r *http.Request, code int, message string, c *cart.DetailedCart, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, code, wire.Success(message, wire.CartPayload(c)))
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Create(r.Context())
	cartResult(w, r, http.StatusCreated, "cart created", c, err)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), r.PathValue("cid"))
	cartResult(w, r, http.StatusOK, "", c, err)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.AddItem(r.Context(), r.PathValue("cid"), r.PathValue("pid"))
	cartResult(w, r, http.StatusOK, "product added to cart", c, err)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), r.PathValue("cid"), r.PathValue("pid"))
	cartResult(w, r, http.StatusOK, "product removed from cart", c, err)
}

func (h *Handler) replaceCartItems(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	items, err := wire.DecodeLineItems(body)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.ReplaceItems(r.Context(), r.PathValue("cid"), items)
	cartResult(w, r, http.StatusOK, "cart updated", c, err)
}

func (h *Handler) setCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	qty, err := wire.DecodeQuantity(body)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.SetQuantity(r.Context(), r.PathValue("cid"), r.PathValue("pid"), qty)
	cartResult(w, r, http.StatusOK, "quantity updated", c, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), r.PathValue("cid"))
	cartResult(w, r, http.StatusOK, "cart emptied", c, err)
}
