package promo_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dapurnia/backend-pos/internal/promo"
)

type staticSource struct {
	cat promo.Catalog
}

func (s staticSource) LoadCatalog(context.Context) (promo.Catalog, error) {
	return s.cat, nil
}

// memoryLedger mimics the conditional database increment in memory.
type memoryLedger struct {
	mu          sync.Mutex
	used        map[uuid.UUID]int32
	caps        map[uuid.UUID]int32
	redemptions []promo.DiscountApplication
}

func newMemoryLedger(caps map[uuid.UUID]int32) *memoryLedger {
	return &memoryLedger{used: make(map[uuid.UUID]int32), caps: caps}
}

func (l *memoryLedger) IncrementRuleUsage(_ context.Context, ruleID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit, ok := l.caps[ruleID]; ok && l.used[ruleID] >= limit {
		return false, nil
	}
	l.used[ruleID]++
	return true, nil
}

func (l *memoryLedger) RecordRedemption(_ context.Context, _ uuid.UUID, app promo.DiscountApplication) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redemptions = append(l.redemptions, app)
	return nil
}

func cappedCatalog(remaining int32) (promo.Catalog, promo.PriceRule) {
	max := int32(100)
	rule := percentRule("22222222-2222-2222-2222-222222222222", 1,
		promo.ScopeEverything(), promo.TimeBased{}, 10)
	rule.MaxUses = &max
	rule.UsedCount = max - remaining
	return promo.Catalog{Rules: []promo.PriceRule{rule}}, rule
}

func TestDetectIsIdempotent(t *testing.T) {
	cat, _ := cappedCatalog(5)
	svc := &promo.Service{
		Source: staticSource{cat: cat},
		Now:    func() time.Time { return evalTime },
	}
	cart := []promo.CartLine{
		{ProductID: uuidMust("11111111-1111-1111-1111-111111111111"), Quantity: 2, UnitPrice: 1000},
	}

	first, err := svc.Detect(context.Background(), cart)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Detect(context.Background(), cart)
		require.NoError(t, err)
		require.True(t, reflect.DeepEqual(first, again), "preview must not change state")
	}
	require.Len(t, first.Applications, 1)
}

func TestFinalizeCommitsUsage(t *testing.T) {
	cat, rule := cappedCatalog(5)
	svc := &promo.Service{
		Source: staticSource{cat: cat},
		Now:    func() time.Time { return evalTime },
	}
	ledger := newMemoryLedger(map[uuid.UUID]int32{rule.ID: 5})
	cart := []promo.CartLine{
		{ProductID: uuidMust("11111111-1111-1111-1111-111111111111"), Quantity: 2, UnitPrice: 1000},
	}

	outcome, err := svc.Finalize(context.Background(), cart, uuid.New(), ledger)
	require.NoError(t, err)
	require.False(t, outcome.ReducedAtCommit)
	require.Len(t, outcome.Applications, 1)
	require.Equal(t, int32(1), ledger.used[rule.ID])
	require.Len(t, ledger.redemptions, 1)
}

func TestFinalizeDropsApplicationWhenCapRaceLost(t *testing.T) {
	cat, rule := cappedCatalog(1)
	svc := &promo.Service{
		Source: staticSource{cat: cat},
		Now:    func() time.Time { return evalTime },
	}
	// One use left; two concurrent sales race for it.
	ledger := newMemoryLedger(map[uuid.UUID]int32{rule.ID: 1})
	cart := []promo.CartLine{
		{ProductID: uuidMust("11111111-1111-1111-1111-111111111111"), Quantity: 2, UnitPrice: 1000},
	}

	type outcome struct {
		out promo.FinalizeOutcome
		err error
	}
	results := make(chan outcome, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			out, err := svc.Finalize(context.Background(), cart, uuid.New(), ledger)
			results <- outcome{out: out, err: err}
		}()
	}
	start.Done()

	won, reduced := 0, 0
	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.err)
		if res.out.ReducedAtCommit {
			reduced++
			require.Empty(t, res.out.Applications)
			require.True(t, res.out.TotalDiscount.IsZero())
			require.Equal(t, []uuid.UUID{rule.ID}, res.out.DroppedSources)
		} else {
			won++
			require.Len(t, res.out.Applications, 1)
		}
	}
	require.Equal(t, 1, won, "exactly one sale gets the last use")
	require.Equal(t, 1, reduced, "the loser is reduced, not failed")
	require.Equal(t, int32(1), ledger.used[rule.ID], "cap is never exceeded")
}

func TestFinalizeRequiresLedger(t *testing.T) {
	cat, _ := cappedCatalog(5)
	svc := &promo.Service{Source: staticSource{cat: cat}}
	_, err := svc.Finalize(context.Background(), nil, uuid.New(), nil)
	require.Error(t, err)
}
