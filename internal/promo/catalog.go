package promo

import (
	"sort"
	"time"
)

// Catalog is the in-memory view of configured rules and bundles handed
// to the engine by the persistence layer. Filtering to the currently
// applicable subset happens here, against the evaluation instant.
type Catalog struct {
	Rules   []PriceRule
	Bundles []Bundle
}

// ActiveRulesAt filters the rule set to derived status Active and
// returns it sorted by priority ascending, ties broken by rule ID
// ascending. The ordering is deterministic so repeated evaluations of
// the same inputs produce identical results.
func (c Catalog) ActiveRulesAt(now time.Time) []PriceRule {
	active := make([]PriceRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.StatusAt(now) == StatusActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return lessUUID(active[i].ID, active[j].ID)
	})
	return active
}

// ActiveBundlesAt filters bundles to those that may fire at the instant,
// ordered by bundle ID ascending. Bundles carry no priority: they always
// run before rule evaluation because a bundle is a product-identity
// promotion that must not be starved by a generic quantity rule.
func (c Catalog) ActiveBundlesAt(now time.Time) []Bundle {
	active := make([]Bundle, 0, len(c.Bundles))
	for _, b := range c.Bundles {
		if b.ActiveAt(now) {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return lessUUID(active[i].ID, active[j].ID)
	})
	return active
}
