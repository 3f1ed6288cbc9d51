package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-shop/internal/domain"
)

// Service implements catalog queries and mutations. Every successful
// mutation is followed by a broadcast of the full catalog.
type Service struct {
	products  Repository
	publisher Publisher
}

// NewService creates a product Service. A nil publisher disables broadcasts.
func NewService(products Repository, publisher Publisher) *Service {
	return &Service{
		products:  products,
		publisher: publisher,
	}
}

// List returns one page of the catalog. The page contents and the total count
// are fetched concurrently.
func (s *Service) List(ctx context.Context, req ListRequest) (*Page, error) {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	if req.Limit < 1 {
		req.Limit = DefaultLimit
	}
	q := Query{
		Filter: ParseFilter(req.Query),
		Sort:   ParseSort(req.Sort),
		Skip:   (req.Page - 1) * req.Limit,
		Limit:  req.Limit,
	}

	var (
		found []Product
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if found, err = s.products.Find(gctx, q); err != nil {
			return errors.Wrap(err, "find products")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if total, err = s.products.Count(gctx, q.Filter); err != nil {
			return errors.Wrap(err, "count products")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewPage(req, found, total), nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	id, err := domain.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.products.GetByID(ctx, id)
}

// Snapshot returns the full catalog.
func (s *Service) Snapshot(ctx context.Context) ([]Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Create validates and stores a new product. The code must not be in use.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	switch _, err := s.products.GetByCode(ctx, in.Code); {
	case err == nil:
		return nil, ErrCodeTaken
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "check code")
	}

	p := in.Product()
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}

	s.broadcast(ctx)
	return p, nil
}

// Update applies a partial update. Changing the code to one held by another
// product fails with ErrCodeTaken.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	id, err := domain.ParseID(id)
	if err != nil {
		return nil, err
	}
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	if patch.Code != nil {
		switch other, err := s.products.GetByCode(ctx, *patch.Code); {
		case err == nil && other.ID != id:
			return nil, ErrCodeTaken
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "check code")
		}
	}

	p, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx)
	return p, nil
}

// Delete removes a product and returns it.
func (s *Service) Delete(ctx context.Context, id string) (*Product, error) {
	id, err := domain.ParseID(id)
	if err != nil {
		return nil, err
	}
	p, err := s.products.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx)
	return p, nil
}

// broadcast hands the current catalog to the publisher. Failures are logged
// and never reach the caller.
func (s *Service) broadcast(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	lg := zctx.From(ctx)

	products, err := s.products.List(ctx)
	if err != nil {
		lg.Warn("Catalog broadcast skipped", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, products); err != nil {
		lg.Warn("Catalog broadcast failed", zap.Error(err))
		return
	}
	lg.Debug("Catalog broadcast", zap.Int("products", len(products)))
}
