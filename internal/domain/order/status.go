package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrInvalidTransition is matched by *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned for status values outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrDeliveryTimeNotAllowed is returned when an expected delivery time is
	// supplied with a status other than approved or shipping.
	ErrDeliveryTimeNotAllowed = errors.New("expected delivery time can only be set when approving or shipping")
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusShipping, StatusCancelled},
	StatusShipping:  {StatusDelivered, StatusCancelled},
	StatusDelivered: nil,
	StatusCancelled: nil,
}

var labels = map[Status]string{
	StatusPending:   "awaiting review",
	StatusApproved:  "approved",
	StatusShipping:  "out for delivery",
	StatusDelivered: "delivered",
	StatusCancelled: "cancelled",
}

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// Valid reports whether s is a lifecycle status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// AcceptsDeliveryTime reports whether an expected delivery time may be set
// while moving into s.
func (s Status) AcceptsDeliveryTime() bool {
	return s == StatusApproved || s == StatusShipping
}

// Label returns the customer-facing name of the status.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// InvalidTransitionError indicates a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is %s and can no longer change status (requested %s)", e.From, e.To)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Is reports ErrInvalidTransition as the sentinel for this error.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
