package product

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/discount"
)

type mockRepo struct {
	products  map[string]Product
	updateErr error
	updates   int
	// beforeUpdate runs inside Update before the version check.
	beforeUpdate func(m *mockRepo)
}

func newMockRepo(products ...Product) *mockRepo {
	m := &mockRepo{products: make(map[string]Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	p.Version = 1
	m.products[p.ID] = *p
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Product) error {
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(m)
	}
	stored, ok := m.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != p.Version {
		return ErrConcurrentUpdate
	}
	p.Version++
	p.DiscountTiers = append([]discount.Tier(nil), p.DiscountTiers...)
	m.products[p.ID] = *p
	return nil
}

// bumpTiers simulates an edit from another writer landing first.
func bumpTiers(id string, t discount.Tier) func(m *mockRepo) {
	return func(m *mockRepo) {
		p := m.products[id]
		p.DiscountTiers = discount.Sorted(append(append([]discount.Tier(nil), p.DiscountTiers...), t))
		p.Version++
		m.products[id] = p
	}
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string { return "prod-1" }
	return svc
}

func seeded() Product {
	return Product{
		ID:       "p1",
		Name:     "Espresso Beans",
		Category: "coffee",
		Price:    d("100"),
		Stock:    40,
		DiscountTiers: []discount.Tier{
			{MinQuantity: 5, Percentage: d("5")},
			{MinQuantity: 10, Percentage: d("10")},
		},
	}
}

func TestService_Create(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	p, err := svc.Create(context.Background(), CreateRequest{
		Name:  "Grinder",
		Price: d("49.90"),
		Stock: 3,
		DiscountTiers: []discount.Tier{
			{MinQuantity: 10, Percentage: d("10")},
			{MinQuantity: 2, Percentage: d("2")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "prod-1", p.ID)
	assert.Equal(t, fixedNow, p.CreatedAt)
	require.Len(t, p.DiscountTiers, 2)
	assert.Equal(t, 2, p.DiscountTiers[0].MinQuantity, "tiers are stored sorted")
	assert.Contains(t, repo.products, "prod-1")
}

func TestService_CreateRejectsSubCentPrice(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateRequest{Name: "Beans", Price: d("10.005")})
	require.ErrorIs(t, err, ErrInvalidProduct)
	assert.Contains(t, err.Error(), "two decimal places")
	assert.Empty(t, repo.products)

	// Trailing zeros are still whole cents.
	p, err := svc.Create(context.Background(), CreateRequest{Name: "Beans", Price: d("10.500")})
	require.NoError(t, err)
	assert.True(t, d("10.5").Equal(p.Price))
	assert.Equal(t, int64(1), p.Version)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{name: "missing name", req: CreateRequest{Price: d("1")}, wantErr: ErrInvalidProduct},
		{name: "negative price", req: CreateRequest{Name: "x", Price: d("-1")}, wantErr: ErrInvalidProduct},
		{name: "negative stock", req: CreateRequest{Name: "x", Price: d("1"), Stock: -1}, wantErr: ErrInvalidProduct},
		{
			name: "tier over 100 percent",
			req: CreateRequest{Name: "x", Price: d("1"), DiscountTiers: []discount.Tier{
				{MinQuantity: 2, Percentage: d("150")},
			}},
			wantErr: discount.ErrInvalidDiscountTier,
		},
		{
			name: "duplicate thresholds",
			req: CreateRequest{Name: "x", Price: d("1"), DiscountTiers: []discount.Tier{
				{MinQuantity: 2, Percentage: d("5")},
				{MinQuantity: 2, Percentage: d("7")},
			}},
			wantErr: discount.ErrInvalidDiscountTier,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			_, err := newTestService(repo).Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.products)
		})
	}
}

func TestService_Update(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)

	price := d("120")
	stock := 0
	p, err := svc.Update(context.Background(), "p1", UpdateRequest{Price: &price, Stock: &stock})
	require.NoError(t, err)
	assert.True(t, price.Equal(p.Price))
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, "Espresso Beans", p.Name)
	assert.Equal(t, fixedNow, repo.products["p1"].UpdatedAt)

	_, err = svc.Update(context.Background(), "missing", UpdateRequest{Price: &price})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateRejectsInvalid(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)

	for _, raw := range []string{"-5", "99.999"} {
		price := d(raw)
		_, err := svc.Update(context.Background(), "p1", UpdateRequest{Price: &price})
		require.ErrorIs(t, err, ErrInvalidProduct, "price %s", raw)
	}
	assert.Zero(t, repo.updates)
	assert.True(t, d("100").Equal(repo.products["p1"].Price))
}

func TestService_AddDiscountTierReplaysAfterConflict(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)

	concurrent := bumpTiers("p1", discount.Tier{MinQuantity: 20, Percentage: d("15")})
	repo.beforeUpdate = func(m *mockRepo) {
		m.beforeUpdate = nil
		concurrent(m)
	}

	p, err := svc.AddDiscountTier(context.Background(), "p1", discount.Tier{MinQuantity: 30, Percentage: d("20")})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.updates)

	stored := repo.products["p1"]
	require.Len(t, stored.DiscountTiers, 4, "neither edit is lost")
	assert.Equal(t, 20, stored.DiscountTiers[2].MinQuantity)
	assert.Equal(t, 30, stored.DiscountTiers[3].MinQuantity)
	assert.Equal(t, stored.Version, p.Version)
}

func TestService_MutateGivesUpOnPersistentConflict(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)
	repo.beforeUpdate = func(m *mockRepo) {
		p := m.products["p1"]
		p.Version++
		m.products["p1"] = p
	}

	name := "Decaf"
	_, err := svc.Update(context.Background(), "p1", UpdateRequest{Name: &name})
	require.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, maxMutateAttempts, repo.updates)
	assert.Equal(t, "Espresso Beans", repo.products["p1"].Name)
}

func TestService_UpdateRepoError(t *testing.T) {
	repo := newMockRepo(seeded())
	repo.updateErr = errors.New("connection reset")
	svc := newTestService(repo)

	name := "Decaf"
	_, err := svc.Update(context.Background(), "p1", UpdateRequest{Name: &name})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update product p1")
}

func TestService_AddDiscountTier(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)

	p, err := svc.AddDiscountTier(context.Background(), "p1", discount.Tier{MinQuantity: 20, Percentage: d("15")})
	require.NoError(t, err)
	require.Len(t, p.DiscountTiers, 3)
	assert.Equal(t, 20, p.DiscountTiers[2].MinQuantity)

	// A threshold already present is rejected and the stored set stays intact.
	_, err = svc.AddDiscountTier(context.Background(), "p1", discount.Tier{MinQuantity: 5, Percentage: d("6")})
	require.ErrorIs(t, err, discount.ErrInvalidDiscountTier)
	assert.Len(t, repo.products["p1"].DiscountTiers, 3)

	_, err = svc.AddDiscountTier(context.Background(), "p1", discount.Tier{MinQuantity: 0, Percentage: d("1")})
	require.ErrorIs(t, err, discount.ErrInvalidDiscountTier)

	// Larger threshold with a smaller discount would make bulk orders pricier.
	_, err = svc.AddDiscountTier(context.Background(), "p1", discount.Tier{MinQuantity: 50, Percentage: d("1")})
	require.ErrorIs(t, err, discount.ErrInvalidDiscountTier)
}

func TestService_RemoveDiscountTier(t *testing.T) {
	repo := newMockRepo(seeded())
	svc := newTestService(repo)

	p, err := svc.RemoveDiscountTier(context.Background(), "p1", 5)
	require.NoError(t, err)
	require.Len(t, p.DiscountTiers, 1)
	assert.Equal(t, 10, p.DiscountTiers[0].MinQuantity)

	_, err = svc.RemoveDiscountTier(context.Background(), "p1", 5)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, repo.products["p1"].DiscountTiers, 1)
}

func TestService_Quote(t *testing.T) {
	svc := newTestService(newMockRepo(seeded()))

	tests := []struct {
		quantity     int
		wantUnit     string
		wantSubtotal string
		wantTier     int
	}{
		{quantity: 3, wantUnit: "100", wantSubtotal: "300"},
		{quantity: 7, wantUnit: "95", wantSubtotal: "665", wantTier: 5},
		{quantity: 10, wantUnit: "90", wantSubtotal: "900", wantTier: 10},
	}
	for _, tt := range tests {
		q, err := svc.Quote(context.Background(), "p1", tt.quantity)
		require.NoError(t, err)
		assert.True(t, d(tt.wantUnit).Equal(q.UnitPrice), "qty %d unit %s", tt.quantity, q.UnitPrice)
		assert.True(t, d(tt.wantSubtotal).Equal(q.Subtotal), "qty %d subtotal %s", tt.quantity, q.Subtotal)
		assert.True(t, d("100").Equal(q.BasePrice))
		if tt.wantTier == 0 {
			assert.Nil(t, q.Tier)
		} else {
			require.NotNil(t, q.Tier)
			assert.Equal(t, tt.wantTier, q.Tier.MinQuantity)
		}
	}

	_, err := svc.Quote(context.Background(), "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Quote(context.Background(), "nope", 1)
	require.ErrorIs(t, err, ErrNotFound)
}
