package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dapurnia/backend-pos/internal/money"
)

// CatalogSource loads the configured rules and bundles for evaluation.
// Implementations may read straight from the database or through a
// cache; the engine only sees the resulting Catalog.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (Catalog, error)
}

// UsageLedger commits capacity-limited redemptions at finalization time.
// IncrementRuleUsage must be a conditional update: it reports false when
// the rule's usage cap was already reached by a concurrent sale.
// Implementations are expected to run inside the same transaction as the
// sale write so an aborted sale rolls the counters back.
type UsageLedger interface {
	IncrementRuleUsage(ctx context.Context, ruleID uuid.UUID) (bool, error)
	RecordRedemption(ctx context.Context, saleID uuid.UUID, app DiscountApplication) error
}

// FinalizeOutcome is the committed result of a sale. ReducedAtCommit is
// a signal, not an error: a promotion shown during preview lost its
// remaining capacity to a concurrent transaction, and the committed
// totals are the authoritative ones.
type FinalizeOutcome struct {
	DiscountResult
	ReducedAtCommit bool
	DroppedSources  []uuid.UUID
}

// Service exposes the two engine operations to the rest of the system.
type Service struct {
	Source CatalogSource
	Now    func() time.Time
}

// Detect is the read-only preview: a pure function of the cart, the
// configured catalog and the evaluation instant. Safe to call
// concurrently and on every cart edit.
func (s *Service) Detect(ctx context.Context, cart []CartLine) (DiscountResult, error) {
	if s == nil || s.Source == nil {
		return DiscountResult{}, errors.New("promo: service not configured")
	}
	cat, err := s.Source.LoadCatalog(ctx)
	if err != nil {
		return DiscountResult{}, fmt.Errorf("promo: load catalog: %w", err)
	}
	return Resolve(cart, cat, s.now()), nil
}

// Finalize re-runs resolution and commits usage increments through the
// ledger. An application whose rule loses the usage-cap race is dropped
// from the result and the total is reduced accordingly; the caller must
// bill the post-commit totals.
func (s *Service) Finalize(ctx context.Context, cart []CartLine, saleID uuid.UUID, ledger UsageLedger) (FinalizeOutcome, error) {
	if s == nil || s.Source == nil {
		return FinalizeOutcome{}, errors.New("promo: service not configured")
	}
	if ledger == nil {
		return FinalizeOutcome{}, errors.New("promo: usage ledger is required")
	}
	cat, err := s.Source.LoadCatalog(ctx)
	if err != nil {
		return FinalizeOutcome{}, fmt.Errorf("promo: load catalog: %w", err)
	}
	now := s.now()
	result := Resolve(cart, cat, now)

	capped := make(map[uuid.UUID]bool, len(cat.Rules))
	for _, r := range cat.Rules {
		if r.MaxUses != nil {
			capped[r.ID] = true
		}
	}

	outcome := FinalizeOutcome{DiscountResult: DiscountResult{Applications: make([]DiscountApplication, 0, len(result.Applications))}}
	total := money.Zero
	for _, app := range result.Applications {
		if app.SourceKind == SourceRule && capped[app.SourceID] {
			ok, err := ledger.IncrementRuleUsage(ctx, app.SourceID)
			if err != nil {
				return FinalizeOutcome{}, fmt.Errorf("promo: increment usage for %s: %w", app.SourceID, err)
			}
			if !ok {
				outcome.ReducedAtCommit = true
				outcome.DroppedSources = append(outcome.DroppedSources, app.SourceID)
				continue
			}
		}
		if err := ledger.RecordRedemption(ctx, saleID, app); err != nil {
			return FinalizeOutcome{}, fmt.Errorf("promo: record redemption for %s: %w", app.SourceID, err)
		}
		outcome.Applications = append(outcome.Applications, app)
		total = total.Add(app.Amount)
	}
	outcome.TotalDiscount = total
	return outcome, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
