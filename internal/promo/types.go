package promo

import (
	"github.com/google/uuid"

	"github.com/dapurnia/backend-pos/internal/money"
)

// CartLine is one line of the cart under evaluation. Lines are supplied
// by the caller on every evaluation and are never mutated: the pipeline
// clones quantities into a private working set.
type CartLine struct {
	ProductID  uuid.UUID    `json:"productId"`
	VariantID  *uuid.UUID   `json:"variantId,omitempty"`
	CategoryID uuid.UUID    `json:"categoryId"`
	Quantity   int          `json:"quantity"`
	UnitPrice  money.Amount `json:"unitPrice"`
}

// SourceKind distinguishes where a discount application came from.
type SourceKind string

const (
	// SourceRule marks an application produced by a price rule.
	SourceRule SourceKind = "rule"
	// SourceBundle marks an application produced by a bundle match.
	SourceBundle SourceKind = "bundle"
)

// AffectedLine records how many units of a cart line an application
// consumed. Summed per (productId, variantId) across all applications it
// never exceeds the line's original quantity.
type AffectedLine struct {
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Quantity  int        `json:"quantityAffected"`
}

// DiscountApplication is the engine's output unit: one promotion applied
// to a concrete set of units, with the amount rounded exactly once.
type DiscountApplication struct {
	SourceID    uuid.UUID      `json:"sourceId"`
	SourceKind  SourceKind     `json:"sourceKind"`
	Description string         `json:"description"`
	Affected    []AffectedLine `json:"affectedLines"`
	Amount      money.Amount   `json:"discountAmount"`
}

// DiscountResult aggregates all applications of one evaluation pass.
type DiscountResult struct {
	Applications  []DiscountApplication `json:"applications"`
	TotalDiscount money.Amount          `json:"totalDiscount"`
}
