package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dapurnia/backend-pos/internal/promo"
)

// ErrNotFound is returned when a rule or bundle does not exist.
var ErrNotFound = errors.New("repo: not found")

// RuleRow is the flat storage shape of a price rule. It is also the
// JSON form used by the catalog cache, so it must round-trip cleanly.
type RuleRow struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	RuleType      string      `json:"ruleType"`
	Priority      int32       `json:"priority"`
	DiscountType  string      `json:"discountType"`
	DiscountValue string      `json:"discountValue"`
	MinQuantity   *int32      `json:"minQuantity,omitempty"`
	BuyQuantity   *int32      `json:"buyQuantity,omitempty"`
	GetQuantity   *int32      `json:"getQuantity,omitempty"`
	AppliesTo     string      `json:"appliesTo"`
	ScopeIDs      []uuid.UUID `json:"scopeIds,omitempty"`
	StartsAt      time.Time   `json:"startsAt"`
	EndsAt        *time.Time  `json:"endsAt,omitempty"`
	MaxUses       *int32      `json:"maxUses,omitempty"`
	TotalUsed     int32       `json:"totalUsed"`
	IsActive      bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Domain converts the stored row into the engine's typed rule. Rows that
// cannot be converted are reported as errors so the catalog loader can
// skip them without failing the whole evaluation.
func (r RuleRow) Domain() (promo.PriceRule, error) {
	value, err := decimal.NewFromString(r.DiscountValue)
	if err != nil {
		return promo.PriceRule{}, fmt.Errorf("repo: rule %s: bad discount value %q", r.ID, r.DiscountValue)
	}
	var kind promo.RuleKind
	switch r.RuleType {
	case string(promo.FamilyBuyXGetY):
		if r.BuyQuantity == nil || r.GetQuantity == nil {
			return promo.PriceRule{}, fmt.Errorf("repo: rule %s: buy_x_get_y missing quantities", r.ID)
		}
		kind = promo.BuyXGetY{BuyQuantity: int(*r.BuyQuantity), GetQuantity: int(*r.GetQuantity)}
	case string(promo.FamilyQuantityDiscount):
		if r.MinQuantity == nil {
			return promo.PriceRule{}, fmt.Errorf("repo: rule %s: quantity_discount missing min quantity", r.ID)
		}
		kind = promo.QuantityDiscount{MinQuantity: int(*r.MinQuantity)}
	case string(promo.FamilyTimeBased):
		kind = promo.TimeBased{MinQuantity: int32Value(r.MinQuantity)}
	case string(promo.FamilyCategoryDiscount):
		kind = promo.CategoryDiscount{MinQuantity: int32Value(r.MinQuantity)}
	default:
		return promo.PriceRule{}, fmt.Errorf("repo: rule %s: unknown rule type %q", r.ID, r.RuleType)
	}
	scopeKind := promo.ScopeKind(r.AppliesTo)
	switch scopeKind {
	case promo.ScopeAll, promo.ScopeProducts, promo.ScopeCategories:
	default:
		return promo.PriceRule{}, fmt.Errorf("repo: rule %s: unknown scope %q", r.ID, r.AppliesTo)
	}
	return promo.PriceRule{
		ID:        r.ID,
		Name:      r.Name,
		Kind:      kind,
		Priority:  int(r.Priority),
		Discount:  promo.Discount{Type: promo.DiscountType(r.DiscountType), Value: value},
		Scope:     promo.Scope{Kind: scopeKind, IDs: r.ScopeIDs},
		StartsAt:  r.StartsAt,
		EndsAt:    r.EndsAt,
		MaxUses:   r.MaxUses,
		UsedCount: r.TotalUsed,
		Active:    r.IsActive,
	}, nil
}

func int32Value(v *int32) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

const ruleColumns = `id, name, rule_type, priority, discount_type, discount_value::text,
	min_quantity, buy_quantity, get_quantity, applies_to, scope_ids,
	starts_at, ends_at, max_uses, total_used, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (RuleRow, error) {
	var (
		r        RuleRow
		id       pgtype.UUID
		scopeIDs []pgtype.UUID
	)
	err := row.Scan(
		&id, &r.Name, &r.RuleType, &r.Priority, &r.DiscountType, &r.DiscountValue,
		&r.MinQuantity, &r.BuyQuantity, &r.GetQuantity, &r.AppliesTo, &scopeIDs,
		&r.StartsAt, &r.EndsAt, &r.MaxUses, &r.TotalUsed, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return RuleRow{}, err
	}
	r.ID = fromPgUUID(id)
	r.ScopeIDs = uuidSlice(scopeIDs)
	return r, nil
}

// CreateRuleParams carries validated input from the admin layer.
type CreateRuleParams struct {
	Name          string
	RuleType      string
	Priority      int32
	DiscountType  string
	DiscountValue decimal.Decimal
	MinQuantity   *int32
	BuyQuantity   *int32
	GetQuantity   *int32
	AppliesTo     string
	ScopeIDs      []uuid.UUID
	StartsAt      time.Time
	EndsAt        *time.Time
	MaxUses       *int32
	IsActive      bool
}

// CreateRule inserts a new price rule and returns the stored row.
func (s *Store) CreateRule(ctx context.Context, p CreateRuleParams) (RuleRow, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO price_rules (
			name, rule_type, priority, discount_type, discount_value,
			min_quantity, buy_quantity, get_quantity, applies_to, scope_ids,
			starts_at, ends_at, max_uses, is_active
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+ruleColumns,
		p.Name, p.RuleType, p.Priority, p.DiscountType, p.DiscountValue.String(),
		p.MinQuantity, p.BuyQuantity, p.GetQuantity, p.AppliesTo, pgUUIDSlice(p.ScopeIDs),
		p.StartsAt, p.EndsAt, p.MaxUses, p.IsActive,
	)
	return scanRule(row)
}

// UpdateRule replaces the mutable fields of a rule. Usage counters are
// never touched here; they belong to the ledger.
func (s *Store) UpdateRule(ctx context.Context, id uuid.UUID, p CreateRuleParams) (RuleRow, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE price_rules SET
			name = $2, rule_type = $3, priority = $4, discount_type = $5,
			discount_value = $6::numeric, min_quantity = $7, buy_quantity = $8,
			get_quantity = $9, applies_to = $10, scope_ids = $11,
			starts_at = $12, ends_at = $13, max_uses = $14, is_active = $15,
			updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		pgUUID(id),
		p.Name, p.RuleType, p.Priority, p.DiscountType, p.DiscountValue.String(),
		p.MinQuantity, p.BuyQuantity, p.GetQuantity, p.AppliesTo, pgUUIDSlice(p.ScopeIDs),
		p.StartsAt, p.EndsAt, p.MaxUses, p.IsActive,
	)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleRow{}, ErrNotFound
	}
	return rule, err
}

// GetRule fetches one rule by ID.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (RuleRow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM price_rules WHERE id = $1`, pgUUID(id))
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleRow{}, ErrNotFound
	}
	return rule, err
}

// ListRules returns all rules ordered by priority then ID.
func (s *Store) ListRules(ctx context.Context) ([]RuleRow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ruleColumns+` FROM price_rules ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RuleRow
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ListEnabledRules returns rules with is_active = true. Date-window and
// exhaustion filtering stays in the engine, where the evaluation instant
// is known.
func (s *Store) ListEnabledRules(ctx context.Context) ([]RuleRow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ruleColumns+` FROM price_rules WHERE is_active ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RuleRow
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM price_rules WHERE id = $1`, pgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpiredRules flips is_active off for rules whose window has
// closed. Derived status already excludes them from evaluation; this
// keeps the stored flag aligned for admin listings.
func (s *Store) DeactivateExpiredRules(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE price_rules SET is_active = false, updated_at = now()
		 WHERE is_active AND ends_at IS NOT NULL AND ends_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
