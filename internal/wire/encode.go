// Package wire converts domain values to and from their JSON representation
// using go-faster/jx.
package wire

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Timestamps are rendered as UTC ISO 8601 with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload writes a single JSON value.
type Payload func(e *jx.Encoder)

// ProductPayload encodes p.
func ProductPayload(p *product.Product) Payload {
	return func(e *jx.Encoder) { encodeProduct(e, p) }
}

// ProductsPayload encodes ps as an array.
func ProductsPayload(ps []product.Product) Payload {
	return func(e *jx.Encoder) { encodeProducts(e, ps) }
}

// CartPayload encodes a cart with its lines resolved to products.
func CartPayload(c *cart.DetailedCart) Payload {
	return func(e *jx.Encoder) { encodeCart(e, c) }
}

// MessagePayload encodes {"message": msg}.
func MessagePayload(msg string) Payload {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	}
}

// Success renders a success envelope. Empty message and nil payload are
// omitted.
func Success(message string, payload Payload) []byte {
	return envelope(StatusSuccess, message, payload)
}

// Error renders an error envelope carrying message.
func Error(message string) []byte {
	return envelope(StatusError, message, nil)
}

func envelope(status, message string, payload Payload) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if message != "" {
		e.FieldStart("message")
		e.Str(message)
	}
	if payload != nil {
		e.FieldStart("payload")
		payload(&e)
	}
	e.ObjEnd()
	return e.Bytes()
}

// ProductPage renders a listing page with pagination metadata. Navigation
// links are built under base, the absolute URL of the listing endpoint.
func ProductPage(p *product.Page, base string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(StatusSuccess)
	e.FieldStart("payload")
	encodeProducts(&e, p.Products)
	e.FieldStart("totalPages")
	e.Int(p.TotalPages)
	e.FieldStart("prevPage")
	optInt(&e, p.PrevPage())
	e.FieldStart("nextPage")
	optInt(&e, p.NextPage())
	e.FieldStart("page")
	e.Int(p.Page)
	e.FieldStart("hasPrevPage")
	e.Bool(p.HasPrevPage)
	e.FieldStart("hasNextPage")
	e.Bool(p.HasNextPage)
	e.FieldStart("prevLink")
	optStr(&e, p.PrevLink(base))
	e.FieldStart("nextLink")
	optStr(&e, p.NextLink(base))
	e.ObjEnd()
	return e.Bytes()
}

// Event renders a realtime message {"event": name, "payload": ...}.
func Event(name string, payload Payload) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(name)
	e.FieldStart("payload")
	if payload == nil {
		e.Null()
	} else {
		payload(&e)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("price")
	e.RawStr(p.Price.String())
	e.FieldStart("status")
	e.Bool(p.Status)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("thumbnails")
	e.ArrStart()
	for _, t := range p.Thumbnails {
		e.Str(t)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, ps []product.Product) {
	e.ArrStart()
	for i := range ps {
		encodeProduct(e, &ps[i])
	}
	e.ArrEnd()
}

func encodeCart(e *jx.Encoder, c *cart.DetailedCart) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(c.ID)
	e.FieldStart("products")
	e.ArrStart()
	for _, line := range c.Lines {
		e.ObjStart()
		e.FieldStart("product")
		if line.Product == nil {
			e.Null()
		} else {
			encodeProduct(e, line.Product)
		}
		e.FieldStart("productId")
		e.Str(line.ProductID)
		e.FieldStart("quantity")
		e.Int(line.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.RawStr(c.Total.String())
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(timeLayout))
}

func optInt(e *jx.Encoder, v *int) {
	if v == nil {
		e.Null()
		return
	}
	e.Int(*v)
}

func optStr(e *jx.Encoder, v *string) {
	if v == nil {
		e.Null()
		return
	}
	e.Str(*v)
}
