package promo

import (
	"sort"
	"time"

	"github.com/dapurnia/backend-pos/internal/money"
)

// evaluate for QuantityDiscount: once the threshold is met the discount
// applies to the entire matching remaining quantity, which is then
// consumed in full.
func (k QuantityDiscount) evaluate(r PriceRule, w *workingSet, _ time.Time) *DiscountApplication {
	if k.MinQuantity < 1 {
		// A quantity rule without a threshold is a configuration error;
		// skip rather than fail the whole cart.
		return nil
	}
	return thresholdDiscount(r, w, k.MinQuantity)
}

// evaluate for TimeBased: the catalog already filtered on the window but
// the evaluator re-checks it so the family can be unit tested alone.
func (k TimeBased) evaluate(r PriceRule, w *workingSet, now time.Time) *DiscountApplication {
	if !r.withinWindow(now) {
		return nil
	}
	minQty := k.MinQuantity
	if minQty < 1 {
		minQty = 1
	}
	return thresholdDiscount(r, w, minQty)
}

// evaluate for CategoryDiscount: identical mechanics to a quantity
// discount, but the scope must be category based.
func (k CategoryDiscount) evaluate(r PriceRule, w *workingSet, _ time.Time) *DiscountApplication {
	if r.Scope.Kind != ScopeCategories {
		return nil
	}
	minQty := k.MinQuantity
	if minQty < 1 {
		minQty = 1
	}
	return thresholdDiscount(r, w, minQty)
}

// thresholdDiscount implements the shared "reach minQty, discount
// everything in scope" algorithm and consumes all matching quantity.
func thresholdDiscount(r PriceRule, w *workingSet, minQty int) *DiscountApplication {
	lines := w.matching(r.Scope)
	totalQty := 0
	var eligibleMinor int64
	for _, wl := range lines {
		totalQty += wl.remaining
		eligibleMinor += int64(wl.line.UnitPrice) * int64(wl.remaining)
	}
	if totalQty == 0 || totalQty < minQty {
		return nil
	}

	amount := discountOn(r.Discount, eligibleMinor, totalQty)
	if amount <= 0 {
		return nil
	}

	affected := make([]AffectedLine, 0, len(lines))
	for _, wl := range lines {
		affected = append(affected, AffectedLine{
			ProductID: wl.line.ProductID,
			VariantID: wl.line.VariantID,
			Quantity:  wl.remaining,
		})
		wl.remaining = 0
	}
	return &DiscountApplication{
		SourceID:    r.ID,
		SourceKind:  SourceRule,
		Description: r.Name,
		Affected:    affected,
		Amount:      amount,
	}
}

// evaluate for BuyXGetY: every completed buy+get set discounts the
// cheapest GetQuantity units among the matching lines, and the whole set
// (buy and get units alike) leaves further eligibility.
func (k BuyXGetY) evaluate(r PriceRule, w *workingSet, _ time.Time) *DiscountApplication {
	if k.BuyQuantity < 1 || k.GetQuantity < 1 {
		return nil
	}
	if r.Discount.Type != Percentage {
		// "Get" discounts are inherently percentage based; a fixed value
		// here is a malformed row, not an evaluation error.
		return nil
	}

	lines := w.matching(r.Scope)
	totalQty := 0
	for _, wl := range lines {
		totalQty += wl.remaining
	}
	setSize := k.BuyQuantity + k.GetQuantity
	repetitions := totalQty / setSize
	if repetitions < 1 {
		return nil
	}

	// Cheapest units first; stable sort keeps cart order for equal
	// prices so allocation is reproducible.
	byPrice := make([]*workingLine, len(lines))
	copy(byPrice, lines)
	sort.SliceStable(byPrice, func(i, j int) bool {
		return byPrice[i].line.UnitPrice < byPrice[j].line.UnitPrice
	})

	freeNeeded := repetitions * k.GetQuantity
	freeTaken := make(map[*workingLine]int, len(lines))
	var freeMinor int64
	for _, wl := range byPrice {
		if freeNeeded <= 0 {
			break
		}
		take := wl.remaining
		if take > freeNeeded {
			take = freeNeeded
		}
		freeTaken[wl] = take
		freeMinor += int64(wl.line.UnitPrice) * int64(take)
		freeNeeded -= take
	}

	amount := money.PercentageOf(money.Amount(freeMinor), r.Discount.Value)
	if amount <= 0 {
		return nil
	}

	// Consume the full sets: free units first, then buy units from the
	// matching lines in cart order.
	affected := make([]AffectedLine, 0, len(freeTaken))
	for _, wl := range lines {
		take, ok := freeTaken[wl]
		if !ok || take == 0 {
			continue
		}
		wl.remaining -= take
		affected = append(affected, AffectedLine{
			ProductID: wl.line.ProductID,
			VariantID: wl.line.VariantID,
			Quantity:  take,
		})
	}
	buyNeeded := repetitions * k.BuyQuantity
	for _, wl := range lines {
		if buyNeeded <= 0 {
			break
		}
		take := wl.remaining
		if take > buyNeeded {
			take = buyNeeded
		}
		wl.remaining -= take
		buyNeeded -= take
	}

	return &DiscountApplication{
		SourceID:    r.ID,
		SourceKind:  SourceRule,
		Description: r.Name,
		Affected:    affected,
		Amount:      amount,
	}
}
