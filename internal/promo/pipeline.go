package promo

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/dapurnia/backend-pos/internal/money"
)

// workingLine tracks how much of one cart line is still eligible for a
// discount during a single evaluation pass.
type workingLine struct {
	line      CartLine
	remaining int
}

// workingSet is the pipeline's private, mutable view of the cart. Lines
// keep their cart order, which makes consumption deterministic.
type workingSet struct {
	lines []*workingLine
}

func newWorkingSet(cart []CartLine) *workingSet {
	w := &workingSet{lines: make([]*workingLine, 0, len(cart))}
	for _, line := range cart {
		if line.Quantity <= 0 {
			continue
		}
		w.lines = append(w.lines, &workingLine{line: line, remaining: line.Quantity})
	}
	return w
}

// matching returns lines with remaining quantity inside the scope,
// preserving cart order.
func (w *workingSet) matching(s Scope) []*workingLine {
	var out []*workingLine
	for _, wl := range w.lines {
		if wl.remaining > 0 && s.Matches(wl.line) {
			out = append(out, wl)
		}
	}
	return out
}

func (w *workingSet) remainingOfProduct(productID uuid.UUID) int {
	total := 0
	for _, wl := range w.lines {
		if wl.line.ProductID == productID {
			total += wl.remaining
		}
	}
	return total
}

// consumption records units taken from one working line.
type consumption struct {
	wl  *workingLine
	qty int
}

// consumeProduct removes up to qty units of the product across lines in
// cart order and reports what was taken from where.
func (w *workingSet) consumeProduct(productID uuid.UUID, qty int) []consumption {
	var out []consumption
	for _, wl := range w.lines {
		if qty <= 0 {
			break
		}
		if wl.line.ProductID != productID || wl.remaining <= 0 {
			continue
		}
		take := wl.remaining
		if take > qty {
			take = qty
		}
		wl.remaining -= take
		qty -= take
		out = append(out, consumption{wl: wl, qty: take})
	}
	return out
}

// discountOn converts a Discount into a concrete amount for the given
// nominal price (minor units) and multiplier (units or sets for fixed
// discounts). A discount never exceeds what the affected units cost.
func discountOn(d Discount, nominalMinor int64, multiplier int) money.Amount {
	nominal := money.Amount(nominalMinor)
	var amount money.Amount
	switch d.Type {
	case Percentage:
		amount = money.PercentageOf(nominal, d.Value)
	case Fixed:
		amount = money.FromDecimal(d.Value).MulInt(multiplier)
	default:
		return 0
	}
	if amount > nominal {
		amount = nominal
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Resolve runs the full resolution pipeline: bundles first (bundleId
// ascending), then rules in priority order, each seeing only quantity
// left over from earlier applications. The caller's cart is untouched.
func Resolve(cart []CartLine, cat Catalog, now time.Time) DiscountResult {
	w := newWorkingSet(cart)
	applications := make([]DiscountApplication, 0)

	for _, b := range cat.ActiveBundlesAt(now) {
		if app := applyBundle(b, w); app != nil {
			applications = append(applications, *app)
		}
	}
	for _, r := range cat.ActiveRulesAt(now) {
		if r.Kind == nil || !r.Discount.valid() {
			continue
		}
		if app := r.Kind.evaluate(r, w, now); app != nil {
			applications = append(applications, *app)
		}
	}

	var total money.Amount
	for _, app := range applications {
		total = total.Add(app.Amount)
	}
	return DiscountResult{Applications: applications, TotalDiscount: total}
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
