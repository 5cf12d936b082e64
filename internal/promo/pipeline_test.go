package promo_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dapurnia/backend-pos/internal/money"
	"github.com/dapurnia/backend-pos/internal/promo"
)

var evalTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func uuidMust(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}

func activeWindow() time.Time {
	return evalTime.Add(-24 * time.Hour)
}

func percentRule(id string, priority int, scope promo.Scope, kind promo.RuleKind, percent int64) promo.PriceRule {
	return promo.PriceRule{
		ID:       uuidMust(id),
		Name:     "rule-" + id[:8],
		Kind:     kind,
		Priority: priority,
		Discount: promo.Discount{Type: promo.Percentage, Value: decimal.NewFromInt(percent)},
		Scope:    scope,
		StartsAt: activeWindow(),
		Active:   true,
	}
}

func TestResolveNoUnitDiscountedTwice(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cat := uuidMust("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	cart := []promo.CartLine{
		{ProductID: prod, CategoryID: cat, Quantity: 6, UnitPrice: 1000},
	}
	catalog := promo.Catalog{Rules: []promo.PriceRule{
		percentRule("22222222-2222-2222-2222-222222222222", 1, promo.ScopeOfProducts(prod), promo.QuantityDiscount{MinQuantity: 3}, 10),
		percentRule("33333333-3333-3333-3333-333333333333", 2, promo.ScopeOfProducts(prod), promo.QuantityDiscount{MinQuantity: 1}, 50),
	}}

	result := promo.Resolve(cart, catalog, evalTime)
	if len(result.Applications) != 1 {
		t.Fatalf("expected 1 application, second rule must see no remaining quantity, got %d", len(result.Applications))
	}

	consumed := 0
	for _, app := range result.Applications {
		for _, a := range app.Affected {
			consumed += a.Quantity
		}
	}
	if consumed > 6 {
		t.Fatalf("consumed %d units from a 6-unit cart", consumed)
	}
	// 10% of 6 * 10.00
	if result.TotalDiscount != 600 {
		t.Fatalf("expected total 600 minor units, got %d", result.TotalDiscount)
	}
}

func TestResolvePriorityOrdering(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cat := uuidMust("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	cart := []promo.CartLine{
		{ProductID: prod, CategoryID: cat, Quantity: 2, UnitPrice: 5000},
	}
	low := percentRule("99999999-9999-9999-9999-999999999999", 1, promo.ScopeOfCategories(cat), promo.CategoryDiscount{}, 20)
	high := percentRule("11111111-0000-0000-0000-000000000000", 5, promo.ScopeOfCategories(cat), promo.CategoryDiscount{}, 50)
	catalog := promo.Catalog{Rules: []promo.PriceRule{high, low}}

	result := promo.Resolve(cart, catalog, evalTime)
	if len(result.Applications) != 1 {
		t.Fatalf("expected exactly 1 application, got %d", len(result.Applications))
	}
	if result.Applications[0].SourceID != low.ID {
		t.Fatalf("lower priority value must win, got %s", result.Applications[0].SourceID)
	}
	if result.TotalDiscount != 2000 {
		t.Fatalf("expected 20%% of 100.00, got %d", result.TotalDiscount)
	}
}

func TestResolvePriorityTieBreaksOnID(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cat := uuidMust("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	cart := []promo.CartLine{
		{ProductID: prod, CategoryID: cat, Quantity: 1, UnitPrice: 10000},
	}
	first := percentRule("00000000-0000-0000-0000-000000000001", 3, promo.ScopeOfCategories(cat), promo.CategoryDiscount{}, 10)
	second := percentRule("00000000-0000-0000-0000-000000000002", 3, promo.ScopeOfCategories(cat), promo.CategoryDiscount{}, 90)
	catalog := promo.Catalog{Rules: []promo.PriceRule{second, first}}

	result := promo.Resolve(cart, catalog, evalTime)
	if len(result.Applications) != 1 || result.Applications[0].SourceID != first.ID {
		t.Fatalf("tie must break on ascending rule ID")
	}
}

func TestResolveDeterministic(t *testing.T) {
	prodA := uuidMust("11111111-1111-1111-1111-111111111111")
	prodB := uuidMust("22222222-2222-2222-2222-222222222222")
	cat := uuidMust("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	cart := []promo.CartLine{
		{ProductID: prodA, CategoryID: cat, Quantity: 4, UnitPrice: 1999},
		{ProductID: prodB, CategoryID: cat, Quantity: 3, UnitPrice: 2599},
	}
	catalog := promo.Catalog{
		Rules: []promo.PriceRule{
			percentRule("33333333-3333-3333-3333-333333333333", 1, promo.ScopeOfProducts(prodA), promo.BuyXGetY{BuyQuantity: 2, GetQuantity: 1}, 100),
			percentRule("44444444-4444-4444-4444-444444444444", 2, promo.ScopeOfCategories(cat), promo.CategoryDiscount{}, 15),
		},
		Bundles: []promo.Bundle{{
			ID:   uuidMust("55555555-5555-5555-5555-555555555555"),
			Name: "pair",
			Components: []promo.BundleComponent{
				{ProductID: prodA, Quantity: 1},
				{ProductID: prodB, Quantity: 1},
			},
			Discount: promo.Discount{Type: promo.Fixed, Value: decimal.NewFromInt(5)},
			StartsAt: activeWindow(),
			Active:   true,
		}},
	}

	first := promo.Resolve(cart, catalog, evalTime)
	for i := 0; i < 10; i++ {
		again := promo.Resolve(cart, catalog, evalTime)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different result", i)
		}
	}
}

func TestResolveLeavesCartUntouched(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cart := []promo.CartLine{
		{ProductID: prod, Quantity: 5, UnitPrice: 1000},
	}
	catalog := promo.Catalog{Rules: []promo.PriceRule{
		percentRule("22222222-2222-2222-2222-222222222222", 1, promo.ScopeEverything(), promo.QuantityDiscount{MinQuantity: 1}, 10),
	}}

	promo.Resolve(cart, catalog, evalTime)
	if cart[0].Quantity != 5 {
		t.Fatalf("cart mutated: quantity now %d", cart[0].Quantity)
	}
}

func TestResolveSkipsNonPositiveQuantity(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cart := []promo.CartLine{
		{ProductID: prod, Quantity: 0, UnitPrice: 1000},
		{ProductID: prod, Quantity: -2, UnitPrice: 1000},
	}
	catalog := promo.Catalog{Rules: []promo.PriceRule{
		percentRule("22222222-2222-2222-2222-222222222222", 1, promo.ScopeEverything(), promo.QuantityDiscount{MinQuantity: 1}, 10),
	}}

	result := promo.Resolve(cart, catalog, evalTime)
	if len(result.Applications) != 0 || result.TotalDiscount != 0 {
		t.Fatalf("expected empty result for empty effective cart, got %+v", result)
	}
}

func TestResolveEmptyCatalog(t *testing.T) {
	prod := uuidMust("11111111-1111-1111-1111-111111111111")
	cart := []promo.CartLine{{ProductID: prod, Quantity: 2, UnitPrice: 1500}}

	result := promo.Resolve(cart, promo.Catalog{}, evalTime)
	if len(result.Applications) != 0 {
		t.Fatalf("expected no applications, got %d", len(result.Applications))
	}
	if !result.TotalDiscount.IsZero() {
		t.Fatalf("expected zero total, got %s", result.TotalDiscount)
	}
}

func TestResolveBundleBeforeRules(t *testing.T) {
	prodA := uuidMust("11111111-1111-1111-1111-111111111111")
	prodB := uuidMust("22222222-2222-2222-2222-222222222222")
	cart := []promo.CartLine{
		{ProductID: prodA, Quantity: 1, UnitPrice: 3000},
		{ProductID: prodB, Quantity: 1, UnitPrice: 2000},
	}
	bundle := promo.Bundle{
		ID:   uuidMust("55555555-5555-5555-5555-555555555555"),
		Name: "combo",
		Components: []promo.BundleComponent{
			{ProductID: prodA, Quantity: 1},
			{ProductID: prodB, Quantity: 1},
		},
		// 50.00 nominal, 10.00 off
		Discount: promo.Discount{Type: promo.Fixed, Value: decimal.NewFromInt(10)},
		StartsAt: activeWindow(),
		Active:   true,
	}
	rule := percentRule("66666666-6666-6666-6666-666666666666", 0, promo.ScopeEverything(), promo.QuantityDiscount{MinQuantity: 1}, 50)
	catalog := promo.Catalog{Rules: []promo.PriceRule{rule}, Bundles: []promo.Bundle{bundle}}

	result := promo.Resolve(cart, catalog, evalTime)
	if len(result.Applications) != 1 {
		t.Fatalf("bundle must consume both units before the rule runs, got %d applications", len(result.Applications))
	}
	app := result.Applications[0]
	if app.SourceKind != promo.SourceBundle || app.SourceID != bundle.ID {
		t.Fatalf("expected the bundle application, got %+v", app)
	}
	if app.Amount != money.Amount(1000) {
		t.Fatalf("expected 10.00 off, got %s", app.Amount)
	}
}
