package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/db"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/wire"
)

// SeedCatalog stores the embedded catalog when products holds no products.
// A populated catalog is left alone.
func SeedCatalog(ctx context.Context, products product.Repository) error {
	lg := zctx.From(ctx)

	n, err := products.Count(ctx, product.Filter{})
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	if n > 0 {
		lg.Debug("Catalog already populated", zap.Int("products", n))
		return nil
	}

	inputs, err := wire.DecodeCatalog(db.SeedProducts)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		in.Normalize()
		if err := in.Validate(); err != nil {
			return errors.Wrapf(err, "seed product %q", in.Code)
		}
		if err := products.Create(ctx, in.Product()); err != nil {
			return errors.Wrapf(err, "create %q", in.Code)
		}
	}
	lg.Info("Seeded catalog", zap.Int("products", len(inputs)))
	return nil
}
