package repo

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dapurnia/backend-pos/internal/promo"
)

// CatalogCacheKey stores the enabled rule and bundle rows as one JSON
// payload. Admin writes invalidate it.
const CatalogCacheKey = "promo:catalog"

// CatalogCache is the caching surface the source needs; implemented by
// cache.Cache.
type CatalogCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// CatalogSource loads the promotion catalog from the store, optionally
// through a cache of the flat rows. Rows that fail domain conversion are
// skipped and logged: a single malformed rule must not break checkout.
type CatalogSource struct {
	Store  *Store
	Cache  CatalogCache
	Logger zerolog.Logger
}

type catalogPayload struct {
	Rules   []RuleRow   `json:"rules"`
	Bundles []BundleRow `json:"bundles"`
}

// LoadCatalog implements promo.CatalogSource.
func (c *CatalogSource) LoadCatalog(ctx context.Context) (promo.Catalog, error) {
	var payload catalogPayload
	if c.Cache != nil {
		hit, err := c.Cache.GetJSON(ctx, CatalogCacheKey, &payload)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("catalog cache read failed")
		} else if hit {
			return c.toDomain(payload), nil
		}
	}

	rules, err := c.Store.ListEnabledRules(ctx)
	if err != nil {
		return promo.Catalog{}, err
	}
	bundles, err := c.Store.ListEnabledBundles(ctx)
	if err != nil {
		return promo.Catalog{}, err
	}
	payload = catalogPayload{Rules: rules, Bundles: bundles}
	if c.Cache != nil {
		if err := c.Cache.SetJSON(ctx, CatalogCacheKey, payload); err != nil {
			c.Logger.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return c.toDomain(payload), nil
}

func (c *CatalogSource) toDomain(payload catalogPayload) promo.Catalog {
	cat := promo.Catalog{
		Rules:   make([]promo.PriceRule, 0, len(payload.Rules)),
		Bundles: make([]promo.Bundle, 0, len(payload.Bundles)),
	}
	for _, row := range payload.Rules {
		rule, err := row.Domain()
		if err != nil {
			c.Logger.Warn().Err(err).Str("rule_id", row.ID.String()).Msg("skipping malformed price rule")
			continue
		}
		cat.Rules = append(cat.Rules, rule)
	}
	for _, row := range payload.Bundles {
		bundle, err := row.Domain()
		if err != nil {
			c.Logger.Warn().Err(err).Str("bundle_id", row.ID.String()).Msg("skipping malformed bundle")
			continue
		}
		cat.Bundles = append(cat.Bundles, bundle)
	}
	return cat
}
