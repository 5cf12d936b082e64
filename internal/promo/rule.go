package promo

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	// Percentage interprets the value as a percent in [0,100].
	Percentage DiscountType = "percentage"
	// Fixed interprets the value as a flat amount in major units.
	Fixed DiscountType = "fixed"
)

// Discount pairs a discount type with its value.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

func (d Discount) valid() bool {
	switch d.Type {
	case Percentage:
		return d.Value.Sign() >= 0 && d.Value.LessThanOrEqual(decimal.NewFromInt(100))
	case Fixed:
		return d.Value.Sign() >= 0
	default:
		return false
	}
}

// RuleFamily names the evaluation algorithm of a price rule.
type RuleFamily string

const (
	FamilyBuyXGetY         RuleFamily = "buy_x_get_y"
	FamilyQuantityDiscount RuleFamily = "quantity_discount"
	FamilyTimeBased        RuleFamily = "time_based"
	FamilyCategoryDiscount RuleFamily = "category_discount"
)

// RuleKind is the closed variant of rule families. Each variant carries
// exactly the parameters its evaluator needs, so malformed combinations
// are unrepresentable instead of nullable fields checked at runtime.
type RuleKind interface {
	Family() RuleFamily
	evaluate(r PriceRule, w *workingSet, now time.Time) *DiscountApplication
}

// BuyXGetY discounts the cheapest GetQuantity units of every completed
// buy+get set. Only percentage discounts are meaningful here; anything
// else is skipped defensively.
type BuyXGetY struct {
	BuyQuantity int
	GetQuantity int
}

// QuantityDiscount unlocks a discount on the entire matching remaining
// quantity once MinQuantity is reached.
type QuantityDiscount struct {
	MinQuantity int
}

// TimeBased is a blanket scoped discount during the rule's date window,
// optionally gated on a minimum quantity (defaults to 1).
type TimeBased struct {
	MinQuantity int
}

// CategoryDiscount mirrors QuantityDiscount with a category scope and
// MinQuantity defaulting to 1.
type CategoryDiscount struct {
	MinQuantity int
}

func (BuyXGetY) Family() RuleFamily         { return FamilyBuyXGetY }
func (QuantityDiscount) Family() RuleFamily { return FamilyQuantityDiscount }
func (TimeBased) Family() RuleFamily        { return FamilyTimeBased }
func (CategoryDiscount) Family() RuleFamily { return FamilyCategoryDiscount }

// Status is the derived lifecycle state of a rule at an instant. It is
// computed from stored fields and wall clock, never stored itself.
type Status string

const (
	StatusActive    Status = "active"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusDisabled  Status = "disabled"
	StatusExhausted Status = "exhausted"
)

// PriceRule is one configured discount condition-and-effect pair.
type PriceRule struct {
	ID        uuid.UUID
	Name      string
	Kind      RuleKind
	Priority  int
	Discount  Discount
	Scope     Scope
	StartsAt  time.Time
	EndsAt    *time.Time
	MaxUses   *int32
	UsedCount int32
	Active    bool
}

// StatusAt derives the rule status for the given instant.
func (r PriceRule) StatusAt(now time.Time) Status {
	if !r.Active {
		return StatusDisabled
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return StatusExpired
	}
	if now.Before(r.StartsAt) {
		return StatusScheduled
	}
	if r.MaxUses != nil && r.UsedCount >= *r.MaxUses {
		return StatusExhausted
	}
	return StatusActive
}

// withinWindow reports whether now falls inside [StartsAt, EndsAt].
func (r PriceRule) withinWindow(now time.Time) bool {
	if now.Before(r.StartsAt) {
		return false
	}
	return r.EndsAt == nil || !now.After(*r.EndsAt)
}
