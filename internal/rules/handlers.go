package rules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dapurnia/backend-pos/internal/common"
	"github.com/dapurnia/backend-pos/internal/promo"
	"github.com/dapurnia/backend-pos/internal/repo"
)

// RuleStore is the persistence surface the admin handlers need.
type RuleStore interface {
	CreateRule(ctx context.Context, p repo.CreateRuleParams) (repo.RuleRow, error)
	UpdateRule(ctx context.Context, id uuid.UUID, p repo.CreateRuleParams) (repo.RuleRow, error)
	GetRule(ctx context.Context, id uuid.UUID) (repo.RuleRow, error)
	ListRules(ctx context.Context) ([]repo.RuleRow, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// CacheInvalidator drops the cached catalog after admin writes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Handler exposes administrative price rule management endpoints.
type Handler struct {
	Store    RuleStore
	Cache    CacheInvalidator
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type rulePayload struct {
	Name          string      `json:"name" validate:"required,max=200"`
	RuleType      string      `json:"ruleType" validate:"required,oneof=buy_x_get_y quantity_discount time_based category_discount"`
	Priority      int32       `json:"priority"`
	DiscountType  string      `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue string      `json:"discountValue" validate:"required"`
	MinQuantity   *int32      `json:"minQuantity"`
	BuyQuantity   *int32      `json:"buyQuantity"`
	GetQuantity   *int32      `json:"getQuantity"`
	AppliesTo     string      `json:"appliesTo" validate:"required,oneof=all product category"`
	ScopeIDs      []uuid.UUID `json:"scopeIds"`
	StartsAt      time.Time   `json:"startsAt" validate:"required"`
	EndsAt        *time.Time  `json:"endsAt"`
	MaxUses       *int32      `json:"maxUses"`
	IsActive      *bool       `json:"isActive"`
}

// Create inserts a new price rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.CreateRule(r.Context(), params)
	if err != nil {
		if isUniqueViolation(err) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "rule name already exists", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("create rule")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create rule", nil)
		return
	}
	h.invalidate(r.Context())
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// Update replaces a rule's mutable fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.UpdateRule(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("rule_id", id).Msg("update rule")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update rule", nil)
		return
	}
	h.invalidate(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Get fetches one rule with its derived status.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("rule_id", id).Msg("get rule")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to fetch rule", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule, "status": derivedStatus(rule, time.Now())})
}

// List returns every rule ordered by priority, annotated with status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.ListRules(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list rules")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list rules", nil)
		return
	}
	now := time.Now()
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{"data": row, "status": derivedStatus(row, now)})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Delete removes a rule.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("rule_id", id).Msg("delete rule")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete rule", nil)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeParams(w http.ResponseWriter, r *http.Request) (repo.CreateRuleParams, bool) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return repo.CreateRuleParams{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return repo.CreateRuleParams{}, false
		}
	}
	params, err := buildRuleParams(payload)
	if err != nil {
		common.RenderError(w, err)
		return repo.CreateRuleParams{}, false
	}
	return params, true
}

// buildRuleParams applies the cross-field constraints the struct tags
// cannot express and normalizes the payload into storage params.
func buildRuleParams(p rulePayload) (repo.CreateRuleParams, error) {
	value, err := decimal.NewFromString(p.DiscountValue)
	if err != nil {
		return repo.CreateRuleParams{}, validationError("discountValue must be a decimal number")
	}
	if value.IsNegative() {
		return repo.CreateRuleParams{}, validationError("discountValue must not be negative")
	}
	if p.DiscountType == string(promo.Percentage) && value.GreaterThan(decimal.NewFromInt(100)) {
		return repo.CreateRuleParams{}, validationError("percentage discount must be between 0 and 100")
	}
	switch p.RuleType {
	case string(promo.FamilyBuyXGetY):
		if p.BuyQuantity == nil || *p.BuyQuantity < 1 || p.GetQuantity == nil || *p.GetQuantity < 1 {
			return repo.CreateRuleParams{}, validationError("buy_x_get_y requires buyQuantity and getQuantity of at least 1")
		}
		if p.DiscountType != string(promo.Percentage) {
			return repo.CreateRuleParams{}, validationError("buy_x_get_y supports only percentage discounts")
		}
	case string(promo.FamilyQuantityDiscount):
		if p.MinQuantity == nil || *p.MinQuantity < 1 {
			return repo.CreateRuleParams{}, validationError("quantity_discount requires minQuantity of at least 1")
		}
	case string(promo.FamilyCategoryDiscount):
		if p.AppliesTo != string(promo.ScopeCategories) || len(p.ScopeIDs) == 0 {
			return repo.CreateRuleParams{}, validationError("category_discount requires a category scope")
		}
	}
	if p.AppliesTo != string(promo.ScopeAll) && len(p.ScopeIDs) == 0 {
		return repo.CreateRuleParams{}, validationError("scopeIds is required when appliesTo is not all")
	}
	if p.MinQuantity != nil && *p.MinQuantity < 1 {
		return repo.CreateRuleParams{}, validationError("minQuantity must be at least 1")
	}
	if p.MaxUses != nil && *p.MaxUses < 1 {
		return repo.CreateRuleParams{}, validationError("maxUses must be at least 1")
	}
	if p.EndsAt != nil && p.EndsAt.Before(p.StartsAt) {
		return repo.CreateRuleParams{}, validationError("endsAt must not precede startsAt")
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return repo.CreateRuleParams{
		Name:          p.Name,
		RuleType:      p.RuleType,
		Priority:      p.Priority,
		DiscountType:  p.DiscountType,
		DiscountValue: value,
		MinQuantity:   p.MinQuantity,
		BuyQuantity:   p.BuyQuantity,
		GetQuantity:   p.GetQuantity,
		AppliesTo:     p.AppliesTo,
		ScopeIDs:      p.ScopeIDs,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		MaxUses:       p.MaxUses,
		IsActive:      active,
	}, nil
}

// derivedStatus reports the rule's effective state at the given instant.
// The stored is_active flag is only one input; windows and usage caps
// are evaluated here so listings match what the engine would do.
func derivedStatus(row repo.RuleRow, now time.Time) string {
	rule, err := row.Domain()
	if err != nil {
		return "invalid"
	}
	return string(rule.StatusAt(now))
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, repo.CatalogCacheKey); err != nil {
		h.Logger.Warn().Err(err).Msg("invalidate catalog cache")
	}
}

func urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func validationError(message string) error {
	return common.NewAppError("VALIDATION", message, http.StatusBadRequest, nil)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
