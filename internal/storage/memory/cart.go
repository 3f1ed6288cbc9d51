package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-shop/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository on a map. A single mutex
// serializes every update.
type CartRepository struct {
	mu    sync.Mutex
	seq   uint64
	carts map[string]*cart.Cart
	now   func() time.Time
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts: make(map[string]*cart.Cart),
		now:   time.Now,
	}
}

// Create stores a new empty cart.
func (r *CartRepository) Create(_ context.Context) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := r.now().UTC()
	c := &cart.Cart{
		ID:        fmt.Sprintf("%024x", r.seq),
		Items:     []cart.LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.carts[c.ID] = c
	return cloneCart(c), nil
}

// GetByID returns a cart or cart.ErrNotFound.
func (r *CartRepository) GetByID(_ context.Context, id string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(c), nil
}

// Update runs fn on a copy of the cart's items under the lock and stores the
// result.
func (r *CartRepository) Update(_ context.Context, id string, fn cart.MutateFunc) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	items, err := fn(slices.Clone(c.Items))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []cart.LineItem{}
	}
	c.Items = slices.Clone(items)
	c.UpdatedAt = r.now().UTC()
	return cloneCart(c), nil
}

func cloneCart(c *cart.Cart) *cart.Cart {
	out := *c
	out.Items = slices.Clone(c.Items)
	if out.Items == nil {
		out.Items = []cart.LineItem{}
	}
	return &out
}
