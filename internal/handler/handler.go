// Package handler exposes the catalog and cart services over HTTP.
package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/wire"
)

// DefaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// PublicURL is the externally visible origin used for pagination links,
	// e.g. https://shop.example.com. When empty, links are built from the
	// request scheme and host.
	PublicURL    string
	MaxBodyBytes int64
}

// Handler serves the /api routes.
type Handler struct {
	products  *product.Service
	carts     *cart.Service
	publicURL string
	maxBody   int64
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, products *product.Service, carts *cart.Service) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		products:  products,
		carts:     carts,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		maxBody:   cfg.MaxBodyBytes,
	}
}

// Register adds the API routes to mux. Requests under /api/ that match no
// route get a 404 envelope.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("GET /api/products/{pid}", h.getProduct)
	mux.HandleFunc("PUT /api/products/{pid}", h.updateProduct)
	mux.HandleFunc("DELETE /api/products/{pid}", h.deleteProduct)

	mux.HandleFunc("POST /api/carts", h.createCart)
	mux.HandleFunc("GET /api/carts/{cid}", h.getCart)
	mux.HandleFunc("PUT /api/carts/{cid}", h.replaceCartItems)
	mux.HandleFunc("DELETE /api/carts/{cid}", h.clearCart)
	mux.HandleFunc("POST /api/carts/{cid}/product/{pid}", h.addCartItem)
	mux.HandleFunc("PUT /api/carts/{cid}/products/{pid}", h.setCartItemQuantity)
	mux.HandleFunc("DELETE /api/carts/{cid}/products/{pid}", h.removeCartItem)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusNotFound, wire.Error("route not found"))
	})
}

func write(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// fail maps err to a status code and writes the error envelope. Errors that
// do not classify as a client error are logged and reported generically.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch domain.KindOf(err) {
	case domain.ErrInvalidIdentity, domain.ErrInvalidInput, domain.ErrConflict:
		code = http.StatusBadRequest
	case domain.ErrNotFound:
		code = http.StatusNotFound
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		write(w, http.StatusInternalServerError, wire.Error("internal server error"))
		return
	}
	write(w, code, wire.Error(err.Error()))
}

// readBody reads the request body up to the configured limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			write(w, http.StatusRequestEntityTooLarge, wire.Error("request body too large"))
			return nil, false
		}
		write(w, http.StatusBadRequest, wire.Error("failed to read request body"))
		return nil, false
	}
	return data, true
}

// baseURL is the absolute URL of the current path without its query.
func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL + r.URL.Path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}
