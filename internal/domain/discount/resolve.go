package discount

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Select returns the tier that applies to quantity: the highest MinQuantity
// that quantity reaches. ok is false when no tier qualifies.
func Select(tiers []Tier, quantity int) (best Tier, ok bool) {
	for _, t := range tiers {
		if t.MinQuantity > quantity {
			continue
		}
		if !ok || t.MinQuantity > best.MinQuantity {
			best, ok = t, true
		}
	}
	return best, ok
}

// ResolveUnitPrice returns the effective unit price for a line of quantity
// units. Without a qualifying tier the base price is returned unchanged;
// otherwise the tier percentage is taken off and the result is rounded to
// two decimal places.
//
// Quantity must be positive; callers reject anything else beforehand.
func ResolveUnitPrice(base decimal.Decimal, tiers []Tier, quantity int) decimal.Decimal {
	t, ok := Select(tiers, quantity)
	if !ok {
		return base
	}
	return Apply(base, t)
}

// Apply takes the tier percentage off base, rounded to cents.
func Apply(base decimal.Decimal, t Tier) decimal.Decimal {
	factor := hundred.Sub(t.Percentage).Div(hundred)
	price := base.Mul(factor).Round(2)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// Sorted returns a copy of tiers ordered by ascending MinQuantity.
func Sorted(tiers []Tier) []Tier {
	out := slices.Clone(tiers)
	slices.SortFunc(out, func(a, b Tier) int {
		return a.MinQuantity - b.MinQuantity
	})
	return out
}
