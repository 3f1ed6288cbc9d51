package memory

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
)

func TestCartRepository_UpdateIsolation(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	c, err := repo.Create(ctx)
	require.NoError(t, err)
	assert.NotNil(t, c.Items)

	_, err = repo.Update(ctx, c.ID, func(items []cart.LineItem) ([]cart.LineItem, error) {
		return append(items, cart.LineItem{ProductID: "p", Quantity: 1}), nil
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestCartRepository_UpdateAbort(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()
	c, err := repo.Create(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, c.ID, func(items []cart.LineItem) ([]cart.LineItem, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Update(ctx, "000000000000000000000abc", func(items []cart.LineItem) ([]cart.LineItem, error) {
		return items, nil
	})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func newShop(t *testing.T) (*cart.Service, *product.Product) {
	t.Helper()
	products := NewProductRepository()
	p := &product.Product{
		Title:    "Mouse Inalámbrico",
		Code:     "MOUSE001",
		Price:    decimal.NewFromInt(50000),
		Status:   true,
		Stock:    50,
		Category: "Accesorios",
	}
	require.NoError(t, products.Create(context.Background(), p))
	return cart.NewService(NewCartRepository(), products), p
}

func TestShop_AddTwiceThenFetch(t *testing.T) {
	svc, p := newShop(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.ID, p.ID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, p.ID)
	require.NoError(t, err)

	detailed, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, detailed.Lines, 1)
	assert.Equal(t, 2, detailed.Lines[0].Quantity)
	require.NotNil(t, detailed.Lines[0].Product)
	assert.Equal(t, "Mouse Inalámbrico", detailed.Lines[0].Product.Title)
	assert.True(t, decimal.NewFromInt(100000).Equal(detailed.Total))
}

func TestShop_ConcurrentAdds(t *testing.T) {
	svc, p := newShop(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)

	const adds = 64
	var g errgroup.Group
	for range adds {
		g.Go(func() error {
			_, err := svc.AddItem(ctx, c.ID, p.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	detailed, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, detailed.Items, 1)
	assert.Equal(t, adds, detailed.Items[0].Quantity)
}
