package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dapurnia/backend-pos/internal/common"
	"github.com/dapurnia/backend-pos/internal/repo"
)

type fakeRuleStore struct {
	created *repo.CreateRuleParams
	rules   map[uuid.UUID]repo.RuleRow
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: make(map[uuid.UUID]repo.RuleRow)}
}

func (f *fakeRuleStore) CreateRule(_ context.Context, p repo.CreateRuleParams) (repo.RuleRow, error) {
	f.created = &p
	row := rowFromParams(uuid.New(), p)
	f.rules[row.ID] = row
	return row, nil
}

func (f *fakeRuleStore) UpdateRule(_ context.Context, id uuid.UUID, p repo.CreateRuleParams) (repo.RuleRow, error) {
	if _, ok := f.rules[id]; !ok {
		return repo.RuleRow{}, repo.ErrNotFound
	}
	row := rowFromParams(id, p)
	f.rules[id] = row
	return row, nil
}

func (f *fakeRuleStore) GetRule(_ context.Context, id uuid.UUID) (repo.RuleRow, error) {
	row, ok := f.rules[id]
	if !ok {
		return repo.RuleRow{}, repo.ErrNotFound
	}
	return row, nil
}

func (f *fakeRuleStore) ListRules(context.Context) ([]repo.RuleRow, error) {
	out := make([]repo.RuleRow, 0, len(f.rules))
	for _, row := range f.rules {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRuleStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	if _, ok := f.rules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.rules, id)
	return nil
}

func rowFromParams(id uuid.UUID, p repo.CreateRuleParams) repo.RuleRow {
	return repo.RuleRow{
		ID:            id,
		Name:          p.Name,
		RuleType:      p.RuleType,
		Priority:      p.Priority,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue.String(),
		MinQuantity:   p.MinQuantity,
		BuyQuantity:   p.BuyQuantity,
		GetQuantity:   p.GetQuantity,
		AppliesTo:     p.AppliesTo,
		ScopeIDs:      p.ScopeIDs,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		MaxUses:       p.MaxUses,
		IsActive:      p.IsActive,
	}
}

type recordingCache struct {
	invalidations int
}

func (r *recordingCache) Invalidate(context.Context, string) error {
	r.invalidations++
	return nil
}

func newTestHandler() (*Handler, *fakeRuleStore, *recordingCache) {
	store := newFakeRuleStore()
	cache := &recordingCache{}
	return &Handler{
		Store:    store,
		Cache:    cache,
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}, store, cache
}

func validPayload() map[string]any {
	return map[string]any{
		"name":          "bulk discount",
		"ruleType":      "quantity_discount",
		"priority":      1,
		"discountType":  "percentage",
		"discountValue": "10",
		"minQuantity":   5,
		"appliesTo":     "all",
		"startsAt":      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateRule(t *testing.T) {
	h, store, cache := newTestHandler()
	rec := doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", validPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, store.created)
	require.Equal(t, "quantity_discount", store.created.RuleType)
	require.True(t, store.created.IsActive, "isActive defaults to true")
	require.Equal(t, 1, cache.invalidations, "catalog cache must be dropped after a write")
}

func TestCreateRuleValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing name", func(p map[string]any) { delete(p, "name") }},
		{"unknown rule type", func(p map[string]any) { p["ruleType"] = "mystery" }},
		{"bad discount value", func(p map[string]any) { p["discountValue"] = "lots" }},
		{"negative discount", func(p map[string]any) { p["discountValue"] = "-5" }},
		{"percent over 100", func(p map[string]any) { p["discountValue"] = "150" }},
		{"quantity rule without threshold", func(p map[string]any) { delete(p, "minQuantity") }},
		{"zero threshold", func(p map[string]any) { p["minQuantity"] = 0 }},
		{"scoped without ids", func(p map[string]any) { p["appliesTo"] = "product" }},
		{"window inverted", func(p map[string]any) {
			p["endsAt"] = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		}},
		{"zero max uses", func(p map[string]any) { p["maxUses"] = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newTestHandler()
			payload := validPayload()
			tc.mutate(payload)
			rec := doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", payload)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestBuildRuleParamsCrossFieldErrors(t *testing.T) {
	payload := rulePayload{
		Name:          "Weekend promo",
		RuleType:      "quantity_discount",
		DiscountType:  "percentage",
		DiscountValue: "150",
		AppliesTo:     "all",
		StartsAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := buildRuleParams(payload)
	require.Error(t, err)
	require.True(t, common.IsAppError(err), "cross-field violations carry an HTTP status")
}

func TestCreateBuyXGetYConstraints(t *testing.T) {
	h, _, _ := newTestHandler()
	payload := validPayload()
	payload["ruleType"] = "buy_x_get_y"
	payload["buyQuantity"] = 2
	payload["getQuantity"] = 1
	delete(payload, "minQuantity")

	rec := doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	payload["discountType"] = "fixed"
	rec = doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code, "buy_x_get_y must reject fixed discounts")
}

func TestCreateCategoryDiscountNeedsCategoryScope(t *testing.T) {
	h, _, _ := newTestHandler()
	payload := validPayload()
	payload["ruleType"] = "category_discount"
	delete(payload, "minQuantity")

	rec := doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload["appliesTo"] = "category"
	payload["scopeIds"] = []string{uuid.NewString()}
	rec = doJSON(t, h.Create, http.MethodPost, "/admin/price-rules", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUpdateRuleNotFound(t *testing.T) {
	h, _, _ := newTestHandler()

	router := chi.NewRouter()
	router.Put("/admin/price-rules/{id}", h.Update)

	data, err := json.Marshal(validPayload())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/admin/price-rules/"+uuid.NewString(), bytes.NewReader(data))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRule(t *testing.T) {
	h, store, cache := newTestHandler()
	row, err := store.CreateRule(context.Background(), repo.CreateRuleParams{Name: "x", RuleType: "time_based", DiscountType: "percentage", AppliesTo: "all"})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Delete("/admin/price-rules/{id}", h.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/admin/price-rules/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, cache.invalidations)
	require.Empty(t, store.rules)
}
