package handler

import (
	"net/http"

	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/wire"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.products.List(r.Context(), product.ParseListRequest(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, http.StatusOK, wire.ProductPage(page, h.baseURL(r)))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), r.PathValue("pid"))
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, http.StatusOK, wire.Success("", wire.ProductPayload(p)))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	in, err := wire.DecodeCreateInput(body)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, http.StatusCreated, wire.Success("product created", wire.ProductPayload(p)))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	patch, err := wire.DecodePatch(body)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), r.PathValue("pid"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, http.StatusOK, wire.Success("product updated", wire.ProductPayload(p)))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Delete(r.Context(), r.PathValue("pid"))
	if err != nil {
		fail(w, r, err)
		return
	}
	write(w, http.StatusOK, wire.Success("product deleted", wire.ProductPayload(p)))
}
