// Package notify delivers order status messages to customers.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/xenking/storefront/internal/domain/order"
)

var (
	_ order.Notifier = Nop{}
	_ order.Notifier = Multi(nil)
	_ order.Notifier = (*Telegram)(nil)
	_ order.Notifier = (*Kafka)(nil)
)

// Nop drops every message and reports it as not delivered.
type Nop struct{}

// Notify implements order.Notifier.
func (Nop) Notify(context.Context, string, string) (bool, error) {
	return false, nil
}

// Multi sends a message through every channel. It reports delivery if any
// channel delivered and combines the errors of the ones that failed.
type Multi []order.Notifier

// Notify implements order.Notifier.
func (m Multi) Notify(ctx context.Context, userID, message string) (bool, error) {
	var (
		delivered bool
		errs      error
	)
	for _, n := range m {
		ok, err := n.Notify(ctx, userID, message)
		delivered = delivered || ok
		errs = multierr.Append(errs, err)
	}
	return delivered, errs
}
