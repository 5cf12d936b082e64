package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type failingDB struct{}

func (failingDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("db unavailable")
}

func (failingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("db unavailable")
}

func (failingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type fakeCache struct {
	payload  []byte
	getErr   error
	setCalls int
}

func (f *fakeCache) GetJSON(_ context.Context, _ string, dst any) (bool, error) {
	if f.getErr != nil {
		return false, f.getErr
	}
	if f.payload == nil {
		return false, nil
	}
	return true, json.Unmarshal(f.payload, dst)
}

func (f *fakeCache) SetJSON(context.Context, string, any) error {
	f.setCalls++
	return nil
}

func TestLoadCatalogFromCache(t *testing.T) {
	valid := baseRuleRow()
	malformed := baseRuleRow()
	malformed.DiscountValue = "oops"
	payload, err := json.Marshal(catalogPayload{Rules: []RuleRow{valid, malformed}})
	require.NoError(t, err)

	source := &CatalogSource{
		Store:  NewStore(nil),
		Cache:  &fakeCache{payload: payload},
		Logger: zerolog.Nop(),
	}

	cat, err := source.LoadCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1, "malformed rows are skipped, not fatal")
	require.Equal(t, valid.ID, cat.Rules[0].ID)
	require.Empty(t, cat.Bundles)
}

func TestLoadCatalogCacheRoundTrip(t *testing.T) {
	// A domain rule must survive the flat-row JSON round trip unchanged.
	max := int32(50)
	ends := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	row := RuleRow{
		ID:            uuid.New(),
		Name:          "bulk tea",
		RuleType:      "quantity_discount",
		Priority:      2,
		DiscountType:  "fixed",
		DiscountValue: "3.50",
		MinQuantity:   int32Ptr(6),
		AppliesTo:     "product",
		ScopeIDs:      []uuid.UUID{uuid.New()},
		StartsAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:        &ends,
		MaxUses:       &max,
		TotalUsed:     7,
		IsActive:      true,
	}

	data, err := json.Marshal(catalogPayload{Rules: []RuleRow{row}})
	require.NoError(t, err)
	var decoded catalogPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Rules, 1)

	want, err := row.Domain()
	require.NoError(t, err)
	got, err := decoded.Rules[0].Domain()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadCatalogCacheErrorFallsThrough(t *testing.T) {
	source := &CatalogSource{
		Store:  NewStore(failingDB{}),
		Cache:  &fakeCache{getErr: errors.New("redis down")},
		Logger: zerolog.Nop(),
	}
	_, err := source.LoadCatalog(context.Background())
	require.Error(t, err, "db error surfaces once the cache misses")
}
