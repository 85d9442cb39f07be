// Package discount implements quantity-based price breaks for catalog products.
//
// A product carries a set of tiers. For an order line only one tier applies:
// the one with the highest threshold the line quantity reaches. Tiers never
// stack.
package discount

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidDiscountTier is matched by every tier validation failure.
var ErrInvalidDiscountTier = errors.New("invalid discount tier")

var hundred = decimal.NewFromInt(100)

// Tier is a price break: lines with at least MinQuantity units get
// Percentage off the base unit price.
type Tier struct {
	MinQuantity int             `json:"min_quantity"`
	Percentage  decimal.Decimal `json:"discount_percentage"`
}

// InvalidTierError describes why a tier (or tier set) was rejected.
type InvalidTierError struct {
	MinQuantity int
	Reason      string
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid discount tier (min quantity %d): %s", e.MinQuantity, e.Reason)
}

// Is reports ErrInvalidDiscountTier as the sentinel for this error.
func (e *InvalidTierError) Is(target error) bool {
	return target == ErrInvalidDiscountTier
}

// Validate checks a single tier in isolation.
func (t Tier) Validate() error {
	if t.MinQuantity < 1 {
		return &InvalidTierError{MinQuantity: t.MinQuantity, Reason: "min quantity must be at least 1"}
	}
	if t.Percentage.IsNegative() || t.Percentage.GreaterThan(hundred) {
		return &InvalidTierError{MinQuantity: t.MinQuantity, Reason: "percentage must be within [0, 100]"}
	}
	return nil
}

// ValidateTiers checks a full tier set as stored on a product. Thresholds must
// be unique, and a larger threshold may not carry a smaller percentage, so
// the resolved unit price never grows with quantity.
func ValidateTiers(tiers []Tier) error {
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	sorted := Sorted(tiers)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.MinQuantity == cur.MinQuantity {
			return &InvalidTierError{MinQuantity: cur.MinQuantity, Reason: "duplicate min quantity"}
		}
		if cur.Percentage.LessThan(prev.Percentage) {
			return &InvalidTierError{
				MinQuantity: cur.MinQuantity,
				Reason: fmt.Sprintf("percentage %s is lower than %s at min quantity %d",
					cur.Percentage, prev.Percentage, prev.MinQuantity),
			}
		}
	}
	return nil
}
