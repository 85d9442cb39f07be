package product

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/discount"
)

// ErrInvalidQuantity is returned by Quote for non-positive quantities.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// maxMutateAttempts bounds how often an edit is replayed after losing a
// version race.
const maxMutateAttempts = 3

// CreateRequest holds the fields of a new catalog product.
type CreateRequest struct {
	Name          string
	Description   string
	Category      string
	Image         string
	Price         decimal.Decimal
	Stock         int
	DiscountTiers []discount.Tier
}

// UpdateRequest holds optional field changes; nil fields are left as-is.
type UpdateRequest struct {
	Name        *string
	Description *string
	Category    *string
	Image       *string
	Price       *decimal.Decimal
	Stock       *int
}

// Quote is a price preview for a prospective order line.
type Quote struct {
	ProductID string
	Quantity  int
	BasePrice decimal.Decimal
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	// Tier is nil when no discount tier applies.
	Tier *discount.Tier
}

// Service encapsulates catalog editing. Order placement only reads products;
// every write goes through here so tier sets are validated once, at edit time.
type Service struct {
	repo   Repository
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

// NewService creates a product Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		tracer: otel.Tracer("storefront/product"),
	}
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.Create")
	defer span.End()

	now := s.now()
	p := &Product{
		ID:            s.newID(),
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Image:         req.Image,
		Price:         req.Price,
		Stock:         req.Stock,
		DiscountTiers: discount.Sorted(req.DiscountTiers),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update applies the non-nil fields of req. Orders placed earlier keep the
// unit prices they were placed with.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Product, error) {
	return s.mutate(ctx, "product.Update", id, func(p *Product) error {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.Image != nil {
			p.Image = *req.Image
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		return nil
	})
}

// AddDiscountTier adds a tier to the product. The resulting set must still be
// valid as a whole.
func (s *Service) AddDiscountTier(ctx context.Context, id string, t discount.Tier) (*Product, error) {
	return s.mutate(ctx, "product.AddDiscountTier", id, func(p *Product) error {
		if err := t.Validate(); err != nil {
			return err
		}
		p.DiscountTiers = discount.Sorted(append(slices.Clone(p.DiscountTiers), t))
		return nil
	})
}

// RemoveDiscountTier drops the tier with the given threshold. Removing a
// threshold that does not exist is reported as ErrNotFound.
func (s *Service) RemoveDiscountTier(ctx context.Context, id string, minQuantity int) (*Product, error) {
	return s.mutate(ctx, "product.RemoveDiscountTier", id, func(p *Product) error {
		idx := slices.IndexFunc(p.DiscountTiers, func(t discount.Tier) bool {
			return t.MinQuantity == minQuantity
		})
		if idx < 0 {
			return errors.Wrapf(ErrNotFound, "discount tier with min quantity %d", minQuantity)
		}
		p.DiscountTiers = slices.Delete(slices.Clone(p.DiscountTiers), idx, idx+1)
		return nil
	})
}

// Quote previews the price of quantity units of a product.
func (s *Service) Quote(ctx context.Context, id string, quantity int) (*Quote, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		ProductID: p.ID,
		Quantity:  quantity,
		BasePrice: p.Price,
		UnitPrice: p.Price,
	}
	if t, ok := discount.Select(p.DiscountTiers, quantity); ok {
		q.Tier = &t
		q.UnitPrice = discount.Apply(p.Price, t)
	}
	q.Subtotal = q.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return q, nil
}

// mutate applies fn to a fresh copy of the product and stores it. When another
// edit wins the version race, fn is replayed on the newer copy.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(p *Product) error) (*Product, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	var err error
	for range maxMutateAttempts {
		var p *Product
		p, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		p.UpdatedAt = s.now()
		err = s.repo.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
	}
	return nil, errors.Wrapf(err, "update product %s", id)
}
