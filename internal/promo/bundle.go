package promo

import (
	"time"

	"github.com/google/uuid"
)

// BundleComponent is one product requirement inside a bundle.
type BundleComponent struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Bundle is a fixed multi-product combination eligible for a combo
// discount. It fires once per complete multiple of its component
// multiset found in the cart.
type Bundle struct {
	ID         uuid.UUID
	Name       string
	Components []BundleComponent
	Discount   Discount
	StartsAt   time.Time
	EndsAt     *time.Time
	Active     bool
}

// ActiveAt reports whether the bundle may fire at the given instant.
func (b Bundle) ActiveAt(now time.Time) bool {
	if !b.Active || len(b.Components) == 0 {
		return false
	}
	if now.Before(b.StartsAt) {
		return false
	}
	return b.EndsAt == nil || !now.After(*b.EndsAt)
}

// applyBundle matches the bundle greedily against remaining quantity and
// consumes every complete set it finds. Nominal price is the sum of the
// consumed units' cart prices, taken from lines in cart order.
func applyBundle(b Bundle, w *workingSet) *DiscountApplication {
	if !b.Discount.valid() {
		return nil
	}
	sets := -1
	for _, comp := range b.Components {
		if comp.Quantity < 1 {
			return nil
		}
		possible := w.remainingOfProduct(comp.ProductID) / comp.Quantity
		if sets < 0 || possible < sets {
			sets = possible
		}
	}
	if sets < 1 {
		return nil
	}

	var affected []AffectedLine
	var nominal int64
	for _, comp := range b.Components {
		consumed := w.consumeProduct(comp.ProductID, comp.Quantity*sets)
		for _, c := range consumed {
			nominal += int64(c.wl.line.UnitPrice) * int64(c.qty)
			affected = append(affected, AffectedLine{
				ProductID: c.wl.line.ProductID,
				VariantID: c.wl.line.VariantID,
				Quantity:  c.qty,
			})
		}
	}

	amount := discountOn(b.Discount, nominal, sets)
	if amount <= 0 {
		return nil
	}
	return &DiscountApplication{
		SourceID:    b.ID,
		SourceKind:  SourceBundle,
		Description: b.Name,
		Affected:    affected,
		Amount:      amount,
	}
}
