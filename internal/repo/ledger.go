package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dapurnia/backend-pos/internal/promo"
)

// Ledger is the transactional usage ledger. It must be bound to the same
// transaction as the sale write so a rollback also undoes the counters.
type Ledger struct {
	db DBTX
}

// NewLedger builds a ledger over the given pool or transaction.
func NewLedger(db DBTX) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a ledger bound to the transaction.
func (l *Ledger) WithTx(tx pgx.Tx) *Ledger {
	return &Ledger{db: tx}
}

// IncrementRuleUsage performs the conditional usage increment. The
// affected-row check makes it an optimistic compare-and-swap: it reports
// false when the cap was already consumed by a concurrent sale, and the
// caller drops the application instead of erroring.
func (l *Ledger) IncrementRuleUsage(ctx context.Context, ruleID uuid.UUID) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`UPDATE price_rules
		 SET total_used = total_used + 1, updated_at = now()
		 WHERE id = $1 AND (max_uses IS NULL OR total_used < max_uses)`,
		pgUUID(ruleID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordRedemption writes the audit row for a committed application and
// bumps the bundle counter when the source is a bundle.
func (l *Ledger) RecordRedemption(ctx context.Context, saleID uuid.UUID, app promo.DiscountApplication) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO promotion_redemptions (sale_id, source_id, source_kind, amount_minor)
		 VALUES ($1, $2, $3, $4)`,
		pgUUID(saleID), pgUUID(app.SourceID), string(app.SourceKind), int64(app.Amount))
	if err != nil {
		return err
	}
	if app.SourceKind == promo.SourceBundle {
		_, err = l.db.Exec(ctx,
			`UPDATE bundles SET times_used = times_used + 1, updated_at = now() WHERE id = $1`,
			pgUUID(app.SourceID))
	}
	return err
}
