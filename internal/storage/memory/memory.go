// Package memory provides in-process repositories used by tests and by
// local runs with the memory storage driver. Every read returns a copy, so
// callers never share state with the store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ order.Repository   = (*OrderRepository)(nil)
	_ user.Repository    = (*UserRepository)(nil)
)

// ProductRepository stores products in a map with optimistic versioning.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewProductRepository creates an empty product store.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]product.Product)}
}

func cloneProduct(p product.Product) product.Product {
	p.DiscountTiers = slices.Clone(p.DiscountTiers)
	return p
}

// List returns all products ordered by name.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := cloneProduct(p)
	return &cp, nil
}

// GetByIDs returns the products that exist, skipping unknown ids.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.Version = 1
	r.products[p.ID] = cloneProduct(*p)
	return nil
}

func (r *ProductRepository) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if stored.Version != p.Version {
		return product.ErrConcurrentUpdate
	}
	updated := cloneProduct(*p)
	updated.CreatedAt = stored.CreatedAt
	updated.Version++
	r.products[p.ID] = updated
	p.Version = updated.Version
	return nil
}

// OrderRepository stores orders in a map with optimistic versioning.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]order.Order
}

// NewOrderRepository creates an empty order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]order.Order)}
}

func cloneOrder(o order.Order) order.Order {
	o.Lines = slices.Clone(o.Lines)
	if o.ExpectedDeliveryTime != nil {
		t := *o.ExpectedDeliveryTime
		o.ExpectedDeliveryTime = &t
	}
	return o
}

// Create stores o with version 1.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.Version = 1
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

// List returns matching orders, newest first.
func (r *OrderRepository) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, o := range r.orders {
		if f.Match(&o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Update stores the mutable fields of o. Lines and Total are never rewritten.
func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Version != o.Version {
		return order.ErrConcurrentUpdate
	}

	updated := cloneOrder(*o)
	updated.Lines = stored.Lines
	updated.Total = stored.Total
	updated.CreatedAt = stored.CreatedAt
	updated.UserID = stored.UserID
	updated.Version++
	r.orders[o.ID] = updated
	o.Version = updated.Version
	return nil
}

func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

// UserRepository stores accounts in a map indexed by id and email.
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]user.User
	byEmail map[string]string
}

// NewUserRepository creates an empty account store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := user.NormalizeEmail(u.Email)
	if _, taken := r.byEmail[email]; taken {
		return user.ErrEmailTaken
	}
	cp := *u
	cp.Email = email
	r.users[u.ID] = cp
	r.byEmail[email] = u.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := r.users[id]
	return &u, nil
}

func (r *UserRepository) SetTelegramChatID(_ context.Context, id, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.TelegramChatID = chatID
	r.users[id] = u
	return nil
}
