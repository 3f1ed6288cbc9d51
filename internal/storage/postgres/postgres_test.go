//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE products, carts`)
	require.NoError(t, err)
}

func createProduct(t *testing.T, repo *ProductRepository, code, category string, price int64, status bool) *product.Product {
	t.Helper()
	p := &product.Product{
		Title:       "Product " + code,
		Description: "integration",
		Code:        code,
		Price:       decimal.NewFromInt(price),
		Status:      status,
		Stock:       3,
		Category:    category,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestProductRepository_CRUD(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	p := createProduct(t, repo, "LAPTOP001", "Electrónicos", 2000000, true)
	require.NoError(t, domain.ValidateID(p.ID))
	assert.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "LAPTOP001", got.Code)
	assert.True(t, decimal.NewFromInt(2000000).Equal(got.Price))
	assert.Equal(t, []string{}, got.Thumbnails)

	byCode, err := repo.GetByCode(ctx, "LAPTOP001")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byCode.ID)

	price := decimal.RequireFromString("1999999.99")
	thumbs := []string{"/images/laptop1.jpg"}
	updated, err := repo.Update(ctx, p.ID, product.Patch{Price: &price, Thumbnails: &thumbs})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.Price))
	assert.Equal(t, thumbs, updated.Thumbnails)
	assert.Equal(t, "Electrónicos", updated.Category)

	_, err = repo.Update(ctx, "65a1b2c3d4e5f60718293aff", product.Patch{Price: &price})
	require.ErrorIs(t, err, product.ErrNotFound)

	deleted, err := repo.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, deleted.ID)

	_, err = repo.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductRepository_UniqueCode(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	createProduct(t, repo, "X1", "General", 10, true)
	other := createProduct(t, repo, "X2", "General", 10, true)

	err := repo.Create(ctx, &product.Product{Title: "dup", Description: "dup", Code: "X1", Category: "General"})
	require.ErrorIs(t, err, product.ErrCodeTaken)

	code := "X1"
	_, err = repo.Update(ctx, other.ID, product.Patch{Code: &code})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestProductRepository_FindAndCount(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	a := createProduct(t, repo, "A", "Electrónicos", 100, true)
	b := createProduct(t, repo, "B", "Accesorios", 50, true)
	c := createProduct(t, repo, "C", "Accesorios", 75, false)
	d := createProduct(t, repo, "D", "100%_off", 50, true)

	asc, err := repo.Find(ctx, product.Query{Sort: product.SortPriceAsc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, []string{b.ID, d.ID}, []string{asc[0].ID, asc[1].ID})

	rest, err := repo.Find(ctx, product.Query{Sort: product.SortPriceAsc, Skip: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, []string{c.ID, a.ID}, []string{rest[0].ID, rest[1].ID})

	n, err := repo.Count(ctx, product.ParseFilter("category=ACCES"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Count(ctx, product.ParseFilter("category=%_"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Count(ctx, product.ParseFilter("status=false"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := repo.GetByIDs(ctx, []string{a.ID, c.ID, "65a1b2c3d4e5f60718293aff"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestProductRepository_UpsertByCode(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testPool)
	ctx := context.Background()

	first := &product.Product{Title: "Old", Description: "d", Code: "SEED1", Price: decimal.NewFromInt(1), Category: "General", Status: true}
	require.NoError(t, repo.UpsertByCode(ctx, first))

	second := &product.Product{Title: "New", Description: "d", Code: "SEED1", Price: decimal.NewFromInt(2), Category: "General", Status: true}
	require.NoError(t, repo.UpsertByCode(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "New", all[0].Title)
}

func TestCartRepository_ConcurrentUpdates(t *testing.T) {
	resetTables(t)
	repo := NewCartRepository(testPool)
	ctx := context.Background()

	c, err := repo.Create(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	const adds = 20
	var g errgroup.Group
	for range adds {
		g.Go(func() error {
			_, err := repo.Update(ctx, c.ID, func(items []cart.LineItem) ([]cart.LineItem, error) {
				if len(items) == 0 {
					return []cart.LineItem{{ProductID: "65a1b2c3d4e5f60718293a01", Quantity: 1}}, nil
				}
				items[0].Quantity++
				return items, nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, adds, got.Items[0].Quantity)
}

func TestCartRepository_Errors(t *testing.T) {
	resetTables(t)
	repo := NewCartRepository(testPool)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "65a1b2c3d4e5f60718293aff")
	require.ErrorIs(t, err, cart.ErrNotFound)

	c, err := repo.Create(ctx)
	require.NoError(t, err)

	_, err = repo.Update(ctx, c.ID, func([]cart.LineItem) ([]cart.LineItem, error) {
		return nil, cart.ErrItemNotFound
	})
	require.ErrorIs(t, err, cart.ErrItemNotFound)
	assert.NotErrorIs(t, err, domain.ErrPersistence)
}
