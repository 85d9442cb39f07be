package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidProduct is returned when product fields fail validation.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrConcurrentUpdate is returned when a product changed between read and
	// write.
	ErrConcurrentUpdate = errors.New("product was modified concurrently")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Image         string
	Price         decimal.Decimal
	Stock         int
	DiscountTiers []discount.Tier
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Version is set to 1 on Create and incremented by every Update.
	Version int64
}

// UnitPrice resolves the effective unit price for quantity units.
func (p *Product) UnitPrice(quantity int) decimal.Decimal {
	return discount.ResolveUnitPrice(p.Price, p.DiscountTiers, quantity)
}

// Validate checks the product fields and its tier set.
func (p *Product) Validate() error {
	if p.Name == "" {
		return errors.Wrap(ErrInvalidProduct, "name is required")
	}
	if p.Price.IsNegative() {
		return errors.Wrap(ErrInvalidProduct, "price must not be negative")
	}
	// Order lines and totals are kept in whole cents.
	if !p.Price.Equal(p.Price.Round(2)) {
		return errors.Wrapf(ErrInvalidProduct, "price %s has more than two decimal places", p.Price)
	}
	if p.Stock < 0 {
		return errors.Wrap(ErrInvalidProduct, "stock must not be negative")
	}
	return discount.ValidateTiers(p.DiscountTiers)
}

// Repository defines storage operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// Create stores p and sets p.Version to 1.
	Create(ctx context.Context, p *Product) error
	// Update overwrites every mutable field, tiers included, if the stored
	// version equals p.Version, then increments p.Version. A version mismatch
	// yields ErrConcurrentUpdate, a missing product ErrNotFound.
	Update(ctx context.Context, p *Product) error
}
