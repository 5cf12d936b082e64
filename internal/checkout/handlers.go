package checkout

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dapurnia/backend-pos/internal/common"
	"github.com/dapurnia/backend-pos/internal/obs"
	"github.com/dapurnia/backend-pos/internal/promo"
	"github.com/dapurnia/backend-pos/internal/repo"
)

// Handler exposes the two engine operations over HTTP: the read-only
// detect preview and the committing finalize.
type Handler struct {
	Svc    *promo.Service
	Pool   *pgxpool.Pool
	Ledger *repo.Ledger
	Logger zerolog.Logger
}

type detectRequest struct {
	Lines []promo.CartLine `json:"lines"`
}

type finalizeRequest struct {
	SaleID uuid.UUID        `json:"saleId"`
	Lines  []promo.CartLine `json:"lines"`
}

// Detect evaluates the cart against the active catalog without touching
// any counters. Safe to call on every cart edit.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var payload detectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := validateLines(payload.Lines); err != "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err, nil)
		return
	}
	result, err := h.Svc.Detect(r.Context(), payload.Lines)
	if err != nil {
		obs.DetectTotal.WithLabelValues("error").Inc()
		h.Logger.Error().Err(err).Msg("detect promotions")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to evaluate promotions", nil)
		return
	}
	obs.DetectTotal.WithLabelValues("ok").Inc()
	obs.ApplicationsPerCart.Observe(float64(len(result.Applications)))
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Finalize re-resolves the cart and commits usage inside one database
// transaction. Applications that lose the usage-cap race are dropped and
// reported through reducedAtCommit rather than failing the sale.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var payload finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.SaleID == uuid.Nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "saleId is required", nil)
		return
	}
	if err := validateLines(payload.Lines); err != "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err, nil)
		return
	}
	if h.Pool == nil || h.Ledger == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "ledger not configured", nil)
		return
	}

	ctx := r.Context()
	tx, err := h.Pool.Begin(ctx)
	if err != nil {
		obs.FinalizeTotal.WithLabelValues("error").Inc()
		h.Logger.Error().Err(err).Msg("begin finalize tx")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to finalize promotions", nil)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outcome, err := h.Svc.Finalize(ctx, payload.Lines, payload.SaleID, h.Ledger.WithTx(tx))
	if err != nil {
		obs.FinalizeTotal.WithLabelValues("error").Inc()
		h.Logger.Error().Err(err).Stringer("sale_id", payload.SaleID).Msg("finalize promotions")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to finalize promotions", nil)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		obs.FinalizeTotal.WithLabelValues("error").Inc()
		h.Logger.Error().Err(err).Stringer("sale_id", payload.SaleID).Msg("commit finalize tx")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to finalize promotions", nil)
		return
	}

	result := "ok"
	if outcome.ReducedAtCommit {
		result = "reduced"
		obs.UsageConflictTotal.Add(float64(len(outcome.DroppedSources)))
	}
	obs.FinalizeTotal.WithLabelValues(result).Inc()
	obs.ApplicationsPerCart.Observe(float64(len(outcome.Applications)))

	common.JSON(w, http.StatusOK, map[string]any{
		"data":            outcome.DiscountResult,
		"reducedAtCommit": outcome.ReducedAtCommit,
		"droppedSources":  outcome.DroppedSources,
	})
}

// validateLines rejects structurally broken lines early. Zero-quantity
// lines are legal; the engine skips them.
func validateLines(lines []promo.CartLine) string {
	if len(lines) == 0 {
		return "lines must not be empty"
	}
	for i, line := range lines {
		prefix := "lines[" + strconv.Itoa(i) + "]"
		if line.ProductID == uuid.Nil {
			return prefix + ".productId is required"
		}
		if line.Quantity < 0 {
			return prefix + ".quantity must not be negative"
		}
		if line.UnitPrice < 0 {
			return prefix + ".unitPrice must not be negative"
		}
	}
	return ""
}
