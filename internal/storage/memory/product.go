// Package memory provides in-process repositories with the same semantics as
// the PostgreSQL ones. Identities are sequential 24-digit hex strings.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-shop/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository on a slice kept in creation
// order.
type ProductRepository struct {
	mu       sync.RWMutex
	seq      uint64
	products []product.Product
	now      func() time.Time
}

// NewProductRepository returns an empty ProductRepository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{now: time.Now}
}

// Find returns one page of matching products ordered by price (when sorted)
// and then by ID.
func (r *ProductRepository) Find(_ context.Context, q product.Query) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]product.Product, 0, len(r.products))
	for i := range r.products {
		if q.Filter.Match(&r.products[i]) {
			matched = append(matched, r.products[i])
		}
	}

	switch q.Sort {
	case product.SortPriceAsc:
		slices.SortStableFunc(matched, func(a, b product.Product) int {
			return cmp.Or(a.Price.Cmp(b.Price), cmp.Compare(a.ID, b.ID))
		})
	case product.SortPriceDesc:
		slices.SortStableFunc(matched, func(a, b product.Product) int {
			return cmp.Or(b.Price.Cmp(a.Price), cmp.Compare(a.ID, b.ID))
		})
	}

	if q.Skip >= len(matched) {
		return []product.Product{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Skip+q.Limit < end {
		end = q.Skip + q.Limit
	}
	return cloneProducts(matched[q.Skip:end]), nil
}

// Count returns the number of products matching f.
func (r *ProductRepository) Count(_ context.Context, f product.Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for i := range r.products {
		if f.Match(&r.products[i]) {
			n++
		}
	}
	return n, nil
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneProducts(r.products), nil
}

// GetByID returns a single product or product.ErrNotFound.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, product.ErrNotFound
	}
	p := cloneProduct(r.products[i])
	return &p, nil
}

// GetByIDs returns the products that exist among ids.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []product.Product
	for _, p := range r.products {
		if _, ok := want[p.ID]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

// GetByCode returns the product holding code or product.ErrNotFound.
func (r *ProductRepository) GetByCode(_ context.Context, code string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.Code == code {
			out := cloneProduct(p)
			return &out, nil
		}
	}
	return nil, product.ErrNotFound
}

// Create assigns the next sequential ID and stores p. A duplicate code fails
// with product.ErrCodeTaken.
func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.codeTaken(p.Code, "") {
		return product.ErrCodeTaken
	}

	r.seq++
	now := r.now().UTC()
	p.ID = fmt.Sprintf("%024x", r.seq)
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	r.products = append(r.products, cloneProduct(*p))
	return nil
}

// Update applies patch to the product with the given id.
func (r *ProductRepository) Update(_ context.Context, id string, patch product.Patch) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, product.ErrNotFound
	}
	if patch.Code != nil && r.codeTaken(*patch.Code, id) {
		return nil, product.ErrCodeTaken
	}

	p := cloneProduct(r.products[i])
	patch.Apply(&p)
	p.UpdatedAt = r.now().UTC()
	r.products[i] = p

	out := cloneProduct(p)
	return &out, nil
}

// Delete removes the product with the given id and returns it.
func (r *ProductRepository) Delete(_ context.Context, id string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, product.ErrNotFound
	}
	p := r.products[i]
	r.products = slices.Delete(r.products, i, i+1)
	return &p, nil
}

func (r *ProductRepository) indexOf(id string) int {
	return slices.IndexFunc(r.products, func(p product.Product) bool {
		return p.ID == id
	})
}

func (r *ProductRepository) codeTaken(code, exceptID string) bool {
	return slices.ContainsFunc(r.products, func(p product.Product) bool {
		return p.Code == code && p.ID != exceptID
	})
}

func cloneProduct(p product.Product) product.Product {
	p.Thumbnails = slices.Clone(p.Thumbnails)
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	return p
}

func cloneProducts(ps []product.Product) []product.Product {
	out := make([]product.Product, len(ps))
	for i, p := range ps {
		out[i] = cloneProduct(p)
	}
	return out
}
