package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dapurnia/backend-pos/internal/promo"
)

// BundleRow is the flat storage shape of a bundle. Components live in a
// jsonb column; the slice form here round-trips through the cache.
type BundleRow struct {
	ID            uuid.UUID               `json:"id"`
	Name          string                  `json:"name"`
	Components    []promo.BundleComponent `json:"components"`
	DiscountType  string                  `json:"discountType"`
	DiscountValue string                  `json:"discountValue"`
	StartsAt      time.Time               `json:"startsAt"`
	EndsAt        *time.Time              `json:"endsAt,omitempty"`
	IsActive      bool                    `json:"isActive"`
	TimesUsed     int64                   `json:"timesUsed"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// Domain converts the stored row into the engine's bundle type.
func (b BundleRow) Domain() (promo.Bundle, error) {
	value, err := decimal.NewFromString(b.DiscountValue)
	if err != nil {
		return promo.Bundle{}, fmt.Errorf("repo: bundle %s: bad discount value %q", b.ID, b.DiscountValue)
	}
	dt := promo.DiscountType(b.DiscountType)
	if dt != promo.Percentage && dt != promo.Fixed {
		return promo.Bundle{}, fmt.Errorf("repo: bundle %s: unknown discount type %q", b.ID, b.DiscountType)
	}
	return promo.Bundle{
		ID:         b.ID,
		Name:       b.Name,
		Components: b.Components,
		Discount:   promo.Discount{Type: dt, Value: value},
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		Active:     b.IsActive,
	}, nil
}

const bundleColumns = `id, name, components, discount_type, discount_value::text,
	starts_at, ends_at, is_active, times_used, created_at, updated_at`

func scanBundle(row pgx.Row) (BundleRow, error) {
	var (
		b          BundleRow
		id         pgtype.UUID
		components []byte
	)
	err := row.Scan(
		&id, &b.Name, &components, &b.DiscountType, &b.DiscountValue,
		&b.StartsAt, &b.EndsAt, &b.IsActive, &b.TimesUsed, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return BundleRow{}, err
	}
	b.ID = fromPgUUID(id)
	if len(components) > 0 {
		if err := json.Unmarshal(components, &b.Components); err != nil {
			return BundleRow{}, fmt.Errorf("repo: bundle %s: decode components: %w", b.ID, err)
		}
	}
	return b, nil
}

// CreateBundleParams carries validated input from the admin layer.
type CreateBundleParams struct {
	Name          string
	Components    []promo.BundleComponent
	DiscountType  string
	DiscountValue decimal.Decimal
	StartsAt      time.Time
	EndsAt        *time.Time
	IsActive      bool
}

// CreateBundle inserts a new bundle and returns the stored row.
func (s *Store) CreateBundle(ctx context.Context, p CreateBundleParams) (BundleRow, error) {
	components, err := json.Marshal(p.Components)
	if err != nil {
		return BundleRow{}, fmt.Errorf("repo: encode components: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO bundles (name, components, discount_type, discount_value, starts_at, ends_at, is_active)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		RETURNING `+bundleColumns,
		p.Name, components, p.DiscountType, p.DiscountValue.String(), p.StartsAt, p.EndsAt, p.IsActive,
	)
	return scanBundle(row)
}

// UpdateBundle replaces the mutable fields of a bundle.
func (s *Store) UpdateBundle(ctx context.Context, id uuid.UUID, p CreateBundleParams) (BundleRow, error) {
	components, err := json.Marshal(p.Components)
	if err != nil {
		return BundleRow{}, fmt.Errorf("repo: encode components: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE bundles SET
			name = $2, components = $3, discount_type = $4, discount_value = $5::numeric,
			starts_at = $6, ends_at = $7, is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+bundleColumns,
		pgUUID(id), p.Name, components, p.DiscountType, p.DiscountValue.String(), p.StartsAt, p.EndsAt, p.IsActive,
	)
	bundle, err := scanBundle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BundleRow{}, ErrNotFound
	}
	return bundle, err
}

// GetBundle fetches one bundle by ID.
func (s *Store) GetBundle(ctx context.Context, id uuid.UUID) (BundleRow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id = $1`, pgUUID(id))
	bundle, err := scanBundle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BundleRow{}, ErrNotFound
	}
	return bundle, err
}

// ListBundles returns all bundles ordered by ID.
func (s *Store) ListBundles(ctx context.Context) ([]BundleRow, error) {
	return s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM bundles ORDER BY id`)
}

// ListEnabledBundles returns bundles with is_active = true.
func (s *Store) ListEnabledBundles(ctx context.Context) ([]BundleRow, error) {
	return s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE is_active ORDER BY id`)
}

func (s *Store) queryBundles(ctx context.Context, sql string) ([]BundleRow, error) {
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BundleRow
	for rows.Next() {
		bundle, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bundle)
	}
	return out, rows.Err()
}

// DeleteBundle removes a bundle.
func (s *Store) DeleteBundle(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM bundles WHERE id = $1`, pgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpiredBundles mirrors DeactivateExpiredRules for bundles.
func (s *Store) DeactivateExpiredBundles(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE bundles SET is_active = false, updated_at = now()
		 WHERE is_active AND ends_at IS NOT NULL AND ends_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
