package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Line items
// are stored as a JSONB array.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Create inserts an empty cart.
func (r *CartRepository) Create(ctx context.Context) (*cart.Cart, error) {
	c := &cart.Cart{ID: domain.NewID(), Items: []cart.LineItem{}}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO carts (id) VALUES ($1) RETURNING created_at, updated_at`, c.ID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, storageError("creating cart", err)
	}
	return c, nil
}

// GetByID returns a cart or cart.ErrNotFound.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, items, created_at, updated_at FROM carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, storageError(fmt.Sprintf("getting cart %q", id), err)
	}
	return c, nil
}

// Update locks the cart row, applies fn and writes the items back in the same
// transaction.
func (r *CartRepository) Update(ctx context.Context, id string, fn cart.MutateFunc) (*cart.Cart, error) {
	var (
		out   *cart.Cart
		fnErr error
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT id, items, created_at, updated_at FROM carts WHERE id = $1 FOR UPDATE`, id)
		c, err := scanCart(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return cart.ErrNotFound
			}
			return storageError(fmt.Sprintf("locking cart %q", id), err)
		}

		items, err := fn(c.Items)
		if err != nil {
			fnErr = err
			return err
		}
		if items == nil {
			items = []cart.LineItem{}
		}
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshaling cart items: %w", err)
		}

		var updatedAt time.Time
		if err := tx.QueryRow(ctx,
			`UPDATE carts SET items = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
			id, string(itemsJSON),
		).Scan(&updatedAt); err != nil {
			return storageError(fmt.Sprintf("writing cart %q", id), err)
		}

		c.Items = items
		c.UpdatedAt = updatedAt
		out = c
		return nil
	})
	switch {
	case err == nil:
		return out, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, cart.ErrNotFound):
		return nil, err
	default:
		return nil, storageError(fmt.Sprintf("updating cart %q", id), err)
	}
}

func scanCart(row pgx.Row) (*cart.Cart, error) {
	var (
		c         cart.Cart
		itemsJSON []byte
	)
	if err := row.Scan(&c.ID, &itemsJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	if c.Items == nil {
		c.Items = []cart.LineItem{}
	}
	return &c, nil
}
