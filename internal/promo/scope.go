package promo

import "github.com/google/uuid"

// ScopeKind enumerates the closed set of rule targeting modes.
type ScopeKind string

const (
	// ScopeAll matches every cart line.
	ScopeAll ScopeKind = "all"
	// ScopeProducts matches lines whose product is in the ID set.
	ScopeProducts ScopeKind = "product"
	// ScopeCategories matches lines whose category is in the ID set.
	ScopeCategories ScopeKind = "category"
)

// Scope describes the subset of cart lines a rule may discount.
type Scope struct {
	Kind ScopeKind
	IDs  []uuid.UUID
}

// ScopeEverything is the catch-all scope.
func ScopeEverything() Scope { return Scope{Kind: ScopeAll} }

// ScopeOfProducts targets the given product IDs.
func ScopeOfProducts(ids ...uuid.UUID) Scope {
	return Scope{Kind: ScopeProducts, IDs: ids}
}

// ScopeOfCategories targets the given category IDs.
func ScopeOfCategories(ids ...uuid.UUID) Scope {
	return Scope{Kind: ScopeCategories, IDs: ids}
}

// Matches reports whether the line falls inside the scope. It is a pure
// predicate with no state.
func (s Scope) Matches(line CartLine) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeProducts:
		return containsID(s.IDs, line.ProductID)
	case ScopeCategories:
		return containsID(s.IDs, line.CategoryID)
	default:
		return false
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
