package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, description, category, image, price, stock, discount_tiers, created_at, updated_at, version`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, category = $4, image = $5, price = $6, stock = $7,
			discount_tiers = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $10
		RETURNING version`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Category, p.Image, p.Price, p.Stock,
		encodeTiers(p.DiscountTiers), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	p.Version = 1
	return nil
}

// Update performs a compare-and-swap on the product version.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	var version int64
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Category, p.Image, p.Price, p.Stock,
		encodeTiers(p.DiscountTiers), p.UpdatedAt, p.Version,
	).Scan(&version)
	if err == nil {
		p.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", p.ID, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrConcurrentUpdate
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		tiers []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Image, &p.Price, &p.Stock,
		&tiers, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	); err != nil {
		return p, err
	}
	var err error
	p.DiscountTiers, err = decodeTiers(tiers)
	return p, err
}
