package cart

import (
	"context"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// Service encapsulates cart mutation logic. Every operation returns the cart
// with its products resolved.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
	}
}

// Create stores a new empty cart.
func (s *Service) Create(ctx context.Context) (*DetailedCart, error) {
	c, err := s.carts.Create(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return &DetailedCart{Cart: *c, Lines: []DetailedLine{}, Total: decimal.Zero}, nil
}

// Get returns a cart with its products resolved.
func (s *Service) Get(ctx context.Context, cartID string) (*DetailedCart, error) {
	cartID, err := domain.ParseID(cartID)
	if err != nil {
		return nil, err
	}
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// AddItem adds one unit of a product. A product already in the cart has its
// quantity incremented instead of getting a second line item.
func (s *Service) AddItem(ctx context.Context, cartID, productID string) (*DetailedCart, error) {
	cartID, productID, err := parseIDs(cartID, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.carts.GetByID(ctx, cartID); err != nil {
		return nil, err
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}

	c, err := s.carts.Update(ctx, cartID, func(items []LineItem) ([]LineItem, error) {
		if i := indexOf(items, productID); i >= 0 {
			items[i].Quantity++
			return items, nil
		}
		return append(items, LineItem{ProductID: productID, Quantity: 1}), nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// RemoveItem deletes the line item of a product. Removing a product that is
// not in the cart fails with ErrItemNotFound.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (*DetailedCart, error) {
	cartID, productID, err := parseIDs(cartID, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.Update(ctx, cartID, func(items []LineItem) ([]LineItem, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return nil, ErrItemNotFound
		}
		return slices.Delete(items, i, i+1), nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// ReplaceItems swaps the cart's line items for items. Every item must
// reference an existing product with a quantity of at least 1, and no product
// may appear twice.
func (s *Service) ReplaceItems(ctx context.Context, cartID string, items []LineItem) (*DetailedCart, error) {
	cartID, err := domain.ParseID(cartID)
	if err != nil {
		return nil, err
	}

	replacement := make([]LineItem, len(items))
	ids := make([]string, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		field := "products[" + strconv.Itoa(i) + "]"
		id, err := domain.ParseID(item.ProductID)
		if err != nil {
			return nil, domain.Invalid(field+".product", "must be a valid product id")
		}
		if item.Quantity < 1 {
			return nil, domain.Invalid(field+".quantity", "must be at least 1")
		}
		if _, dup := seen[id]; dup {
			return nil, domain.Invalid(field+".product", "is listed more than once")
		}
		seen[id] = struct{}{}
		ids[i] = id
		replacement[i] = LineItem{ProductID: id, Quantity: item.Quantity}
	}

	if _, err := s.carts.GetByID(ctx, cartID); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		found, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get products")
		}
		exists := make(map[string]struct{}, len(found))
		for _, p := range found {
			exists[p.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := exists[id]; !ok {
				return nil, &ProductNotFoundError{ProductID: id}
			}
		}
	}

	c, err := s.carts.Update(ctx, cartID, func([]LineItem) ([]LineItem, error) {
		return replacement, nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// SetQuantity sets the quantity of a product already in the cart. Quantities
// below 1 are rejected without touching the cart.
func (s *Service) SetQuantity(ctx context.Context, cartID, productID string, quantity int) (*DetailedCart, error) {
	cartID, productID, err := parseIDs(cartID, productID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, domain.Invalid("quantity", "must be at least 1")
	}

	c, err := s.carts.Update(ctx, cartID, func(items []LineItem) ([]LineItem, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return nil, ErrItemNotFound
		}
		items[i].Quantity = quantity
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// Clear empties the cart. Clearing an empty cart succeeds.
func (s *Service) Clear(ctx context.Context, cartID string) (*DetailedCart, error) {
	cartID, err := domain.ParseID(cartID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.Update(ctx, cartID, func([]LineItem) ([]LineItem, error) {
		return []LineItem{}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// detail resolves every line item's product in a single batch and computes
// the cart total.
func (s *Service) detail(ctx context.Context, c *Cart) (*DetailedCart, error) {
	dc := &DetailedCart{
		Cart:  *c,
		Lines: make([]DetailedLine, len(c.Items)),
		Total: decimal.Zero,
	}
	if len(c.Items) == 0 {
		return dc, nil
	}

	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	for i, item := range c.Items {
		p := byID[item.ProductID]
		dc.Lines[i] = DetailedLine{
			ProductID: item.ProductID,
			Product:   p,
			Quantity:  item.Quantity,
		}
		if p != nil {
			dc.Total = dc.Total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	return dc, nil
}

func (s *Service) requireProduct(ctx context.Context, productID string) error {
	_, err := s.products.GetByID(ctx, productID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, product.ErrNotFound):
		return &ProductNotFoundError{ProductID: productID}
	default:
		return errors.Wrap(err, "get product")
	}
}

func parseIDs(cartID, productID string) (string, string, error) {
	cartID, err := domain.ParseID(cartID)
	if err != nil {
		return "", "", err
	}
	productID, err = domain.ParseID(productID)
	if err != nil {
		return "", "", err
	}
	return cartID, productID, nil
}

func indexOf(items []LineItem, productID string) int {
	return slices.IndexFunc(items, func(item LineItem) bool {
		return item.ProductID == productID
	})
}
