package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentUpdate is returned when an order changed between read and
	// write. The caller may reload and retry.
	ErrConcurrentUpdate = errors.New("order was modified concurrently")
)

// Order is a placed customer order. Lines and Total are frozen at placement;
// only Status, ExpectedDeliveryTime, UpdatedAt and Version change afterwards.
type Order struct {
	ID                   string
	UserID               string
	Status               Status
	Lines                []Line
	Total                decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ExpectedDeliveryTime *time.Time
	// Version is incremented by the repository on every successful write.
	Version int64
}

// Line is a single product entry of an order with its purchase-time unit price.
type Line struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SumLines returns the sum of line subtotals.
func SumLines(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// CartLine is a requested product and quantity.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID string
	Status Status
}

// Match reports whether o satisfies the filter.
func (f Filter) Match(o *Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
	// Update stores the mutable fields of o if the stored version still equals
	// o.Version, then increments o.Version. A version mismatch yields
	// ErrConcurrentUpdate, a missing order ErrNotFound.
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}

// Notifier delivers a human-readable message to a user. delivered is false
// when the user has no reachable channel.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) (delivered bool, err error)
}
