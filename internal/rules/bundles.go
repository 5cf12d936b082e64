package rules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dapurnia/backend-pos/internal/common"
	"github.com/dapurnia/backend-pos/internal/promo"
	"github.com/dapurnia/backend-pos/internal/repo"
)

// BundleStore is the persistence surface for bundle administration.
type BundleStore interface {
	CreateBundle(ctx context.Context, p repo.CreateBundleParams) (repo.BundleRow, error)
	UpdateBundle(ctx context.Context, id uuid.UUID, p repo.CreateBundleParams) (repo.BundleRow, error)
	GetBundle(ctx context.Context, id uuid.UUID) (repo.BundleRow, error)
	ListBundles(ctx context.Context) ([]repo.BundleRow, error)
	DeleteBundle(ctx context.Context, id uuid.UUID) error
}

// BundleHandler exposes administrative bundle management endpoints.
type BundleHandler struct {
	Store    BundleStore
	Cache    CacheInvalidator
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type bundlePayload struct {
	Name          string            `json:"name" validate:"required,max=200"`
	Components    []bundleComponent `json:"components" validate:"required,min=1,dive"`
	DiscountType  string            `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue string            `json:"discountValue" validate:"required"`
	StartsAt      time.Time         `json:"startsAt" validate:"required"`
	EndsAt        *time.Time        `json:"endsAt"`
	IsActive      *bool             `json:"isActive"`
}

type bundleComponent struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// Create inserts a new bundle.
func (h *BundleHandler) Create(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}
	bundle, err := h.Store.CreateBundle(r.Context(), params)
	if err != nil {
		if isUniqueViolation(err) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "bundle name already exists", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("create bundle")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create bundle", nil)
		return
	}
	h.invalidate(r.Context())
	common.JSON(w, http.StatusCreated, map[string]any{"data": bundle})
}

// Update replaces a bundle's mutable fields.
func (h *BundleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}
	bundle, err := h.Store.UpdateBundle(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "bundle not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("bundle_id", id).Msg("update bundle")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update bundle", nil)
		return
	}
	h.invalidate(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": bundle})
}

// Get fetches one bundle.
func (h *BundleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	bundle, err := h.Store.GetBundle(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "bundle not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("bundle_id", id).Msg("get bundle")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to fetch bundle", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": bundle})
}

// List returns every bundle.
func (h *BundleHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.ListBundles(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list bundles")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list bundles", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Delete removes a bundle.
func (h *BundleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteBundle(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "bundle not found", nil)
			return
		}
		h.Logger.Error().Err(err).Stringer("bundle_id", id).Msg("delete bundle")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete bundle", nil)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *BundleHandler) decodeParams(w http.ResponseWriter, r *http.Request) (repo.CreateBundleParams, bool) {
	var payload bundlePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return repo.CreateBundleParams{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return repo.CreateBundleParams{}, false
		}
	}
	params, err := buildBundleParams(payload)
	if err != nil {
		common.RenderError(w, err)
		return repo.CreateBundleParams{}, false
	}
	return params, true
}

func buildBundleParams(p bundlePayload) (repo.CreateBundleParams, error) {
	value, err := decimal.NewFromString(p.DiscountValue)
	if err != nil {
		return repo.CreateBundleParams{}, validationError("discountValue must be a decimal number")
	}
	if value.IsNegative() {
		return repo.CreateBundleParams{}, validationError("discountValue must not be negative")
	}
	if p.DiscountType == string(promo.Percentage) && value.GreaterThan(decimal.NewFromInt(100)) {
		return repo.CreateBundleParams{}, validationError("percentage discount must be between 0 and 100")
	}
	seen := make(map[uuid.UUID]bool, len(p.Components))
	components := make([]promo.BundleComponent, 0, len(p.Components))
	for _, c := range p.Components {
		if seen[c.ProductID] {
			return repo.CreateBundleParams{}, validationError("components must not repeat a product")
		}
		seen[c.ProductID] = true
		components = append(components, promo.BundleComponent{ProductID: c.ProductID, Quantity: c.Quantity})
	}
	if p.EndsAt != nil && p.EndsAt.Before(p.StartsAt) {
		return repo.CreateBundleParams{}, validationError("endsAt must not precede startsAt")
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return repo.CreateBundleParams{
		Name:          p.Name,
		Components:    components,
		DiscountType:  p.DiscountType,
		DiscountValue: value,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		IsActive:      active,
	}, nil
}

func (h *BundleHandler) invalidate(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, repo.CatalogCacheKey); err != nil {
		h.Logger.Warn().Err(err).Msg("invalidate catalog cache")
	}
}
