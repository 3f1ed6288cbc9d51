package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `id, title, description, code, price, status, stock, category, thumbnails, created_at, updated_at`

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Find returns one page of matching products ordered by price (when sorted)
// and then by ID.
func (r *ProductRepository) Find(ctx context.Context, q product.Query) ([]product.Product, error) {
	where, args := filterClause(q.Filter)
	sql := `SELECT ` + productColumns + ` FROM products` + where + orderClause(q.Sort) +
		` OFFSET $` + strconv.Itoa(len(args)+1) + ` LIMIT $` + strconv.Itoa(len(args)+2)
	args = append(args, q.Skip, q.Limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError("finding products", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storageError("finding products", err)
	}
	return products, nil
}

// Count returns the number of products matching f.
func (r *ProductRepository) Count(ctx context.Context, f product.Filter) (int, error) {
	where, args := filterClause(f)

	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&n); err != nil {
		return 0, storageError("counting products", err)
	}
	return int(n), nil
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, storageError("listing products", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storageError("listing products", err)
	}
	return products, nil
}

// GetByID returns a single product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, "getting product "+strconv.Quote(id),
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// GetByIDs returns the products that exist among ids in a single query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, storageError("getting products by ids", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storageError("getting products by ids", err)
	}
	return products, nil
}

// GetByCode returns the product holding code or product.ErrNotFound.
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	return r.getOne(ctx, "getting product by code "+strconv.Quote(code),
		`SELECT `+productColumns+` FROM products WHERE code = $1`, code)
}

// Create inserts p with a fresh identity. A duplicate code fails with
// product.ErrCodeTaken.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	p.ID = domain.NewID()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, title, description, code, price, status, stock, category, thumbnails)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.Title, p.Description, p.Code, p.Price, p.Status, p.Stock, p.Category, p.Thumbnails,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrCodeTaken
		}
		return storageError("creating product", err)
	}
	return nil
}

// Update applies the non-nil fields of patch in a single statement.
func (r *ProductRepository) Update(ctx context.Context, id string, patch product.Patch) (*product.Product, error) {
	var thumbnails []string
	if patch.Thumbnails != nil {
		thumbnails = *patch.Thumbnails
		if thumbnails == nil {
			thumbnails = []string{}
		}
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE products SET
			title       = COALESCE($2, title),
			description = COALESCE($3, description),
			code        = COALESCE($4, code),
			price       = COALESCE($5, price),
			status      = COALESCE($6, status),
			stock       = COALESCE($7, stock),
			category    = COALESCE($8, category),
			thumbnails  = COALESCE($9, thumbnails),
			updated_at  = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Title, patch.Description, patch.Code, patch.Price,
		patch.Status, patch.Stock, patch.Category, thumbnails,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, product.ErrCodeTaken
		}
		return nil, storageError("updating product "+strconv.Quote(id), err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, product.ErrNotFound
	case isUniqueViolation(err):
		return nil, product.ErrCodeTaken
	default:
		return nil, storageError("updating product "+strconv.Quote(id), err)
	}
}

// Delete removes the product with the given id and returns it.
func (r *ProductRepository) Delete(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, "deleting product "+strconv.Quote(id),
		`DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id)
}

// UpsertByCode inserts p, or overwrites the product holding the same code.
// p.ID is set to the stored identity.
func (r *ProductRepository) UpsertByCode(ctx context.Context, p *product.Product) error {
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, title, description, code, price, status, stock, category, thumbnails)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			price       = EXCLUDED.price,
			status      = EXCLUDED.status,
			stock       = EXCLUDED.stock,
			category    = EXCLUDED.category,
			thumbnails  = EXCLUDED.thumbnails,
			updated_at  = now()
		RETURNING id, created_at, updated_at`,
		domain.NewID(), p.Title, p.Description, p.Code, p.Price, p.Status, p.Stock, p.Category, p.Thumbnails,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return storageError("upserting product "+strconv.Quote(p.Code), err)
	}
	return nil
}

func (r *ProductRepository) getOne(ctx context.Context, op, sql string, args ...any) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError(op, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, storageError(op, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Code,
		&p.Price,
		&p.Status,
		&p.Stock,
		&p.Category,
		&p.Thumbnails,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// filterClause renders f as a WHERE clause with positional arguments.
func filterClause(f product.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Category != nil {
		args = append(args, escapeLike(*f.Category))
		conds = append(conds, `category ILIKE '%' || $`+strconv.Itoa(len(args))+` || '%' ESCAPE '\'`)
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func orderClause(s product.SortOrder) string {
	switch s {
	case product.SortPriceAsc:
		return ` ORDER BY price ASC, id ASC`
	case product.SortPriceDesc:
		return ` ORDER BY price DESC, id ASC`
	default:
		return ` ORDER BY id ASC`
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
