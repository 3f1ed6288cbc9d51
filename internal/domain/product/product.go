package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
)

// Errors returned by repositories and the Service.
var (
	ErrNotFound  = domain.NewError(domain.ErrNotFound, "product not found")
	ErrCodeTaken = domain.NewError(domain.ErrConflict, "product code already exists")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Title       string
	Description string
	Code        string
	Price       decimal.Decimal
	Status      bool
	Stock       int
	Category    string
	Thumbnails  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortOrder selects the price ordering of a listing.
type SortOrder int

const (
	SortNone SortOrder = iota
	SortPriceAsc
	SortPriceDesc
)

// Filter restricts a listing. Nil fields match everything.
type Filter struct {
	// Category matches products whose category contains the value, ignoring
	// case.
	Category *string
	Status   *bool
}

// Match reports whether p passes the filter.
func (f Filter) Match(p *Product) bool {
	if f.Category != nil && !containsFold(p.Category, *f.Category) {
		return false
	}
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	return true
}

// Query is one page of a filtered, sorted listing. Results are ordered by
// price (when sorted) and then by ID, so repeated queries page identically.
type Query struct {
	Filter Filter
	Sort   SortOrder
	Skip   int
	Limit  int
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	Find(ctx context.Context, q Query) ([]Product, error)
	Count(ctx context.Context, f Filter) (int, error)
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Missing ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	// Create assigns p.ID and the timestamps, then stores p.
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	Delete(ctx context.Context, id string) (*Product, error)
}

// Publisher receives the full catalog after every catalog mutation.
type Publisher interface {
	Publish(ctx context.Context, products []Product) error
}
