package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// Errors returned by repositories and the Service.
var (
	ErrNotFound     = domain.NewError(domain.ErrNotFound, "cart not found")
	ErrItemNotFound = domain.NewError(domain.ErrNotFound, "product not found in cart")
)

// ProductNotFoundError indicates a referenced product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is reports ProductNotFoundError as domain.ErrNotFound.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == domain.ErrNotFound
}

// Cart is a customer's shopping cart.
type Cart struct {
	ID        string
	Items     []LineItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem references a product with a quantity of at least 1. A cart holds
// at most one line item per product.
type LineItem struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

// MutateFunc computes a cart's new line items from its current ones.
type MutateFunc func(items []LineItem) ([]LineItem, error)

// Repository defines persistence operations for carts.
type Repository interface {
	// Create stores a new empty cart.
	Create(ctx context.Context) (*Cart, error)
	GetByID(ctx context.Context, id string) (*Cart, error)
	// Update runs fn against the cart's current items and stores the result
	// as one atomic step. Concurrent updates of the same cart are serialized.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, id string, fn MutateFunc) (*Cart, error)
}

// DetailedCart is a cart with each line item resolved to its product.
type DetailedCart struct {
	Cart
	Lines []DetailedLine
	// Total is the sum of price × quantity over lines whose product exists.
	Total decimal.Decimal
}

// DetailedLine is a line item with its product. Product is nil when the
// referenced product was deleted after being added.
type DetailedLine struct {
	ProductID string
	Product   *product.Product
	Quantity  int
}
