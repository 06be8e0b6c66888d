package governor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSucceedsWithinBudget(t *testing.T) {
	g := New(60, 1.0)
	err := g.Acquire(context.Background(), 0.10)
	require.NoError(t, err)
}

func TestAcquireRejectsOverBudget(t *testing.T) {
	g := New(60, 0.50)
	g.Record(0.45, false, 0)

	err := g.Acquire(context.Background(), 0.10)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestBudgetExhaustionWorkedExample(t *testing.T) {
	// spec.md §8 scenario 4: budget_usd=0.50, journal reviewer spends $0.45,
	// first judge batch brings it to $0.51 -> governor must then refuse.
	g := New(60, 0.50)
	g.Record(0.45, false, 0)
	assert.NoError(t, g.Acquire(context.Background(), 0.05))
	g.Record(0.06, false, 0) // total now 0.51, slightly over due to estimate/actual drift

	err := g.Acquire(context.Background(), 0.01)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestRecordCacheHitAddsToSavingsNotCost(t *testing.T) {
	g := New(60, 10.0)
	g.Record(0, true, 0.25)

	snap := g.Snapshot()
	assert.Equal(t, 0.0, snap.TotalCostUSD)
	assert.Equal(t, 0.25, snap.SavingsUSD)
	assert.Equal(t, 1, snap.CacheHits)
	assert.Equal(t, 0, snap.CacheMisses)
}

func TestRecordCacheMissAddsToCost(t *testing.T) {
	g := New(60, 10.0)
	g.Record(1.5, false, 0)

	snap := g.Snapshot()
	assert.Equal(t, 1.5, snap.TotalCostUSD)
	assert.Equal(t, 1, snap.CacheMisses)
}

func TestRemainingBudgetNeverNegative(t *testing.T) {
	g := New(60, 1.0)
	g.Record(5.0, false, 0)
	assert.Equal(t, 0.0, g.RemainingBudget())
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	g := New(1, 10.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Acquire(ctx, 0.01)
	assert.ErrorIs(t, err, context.Canceled)
}
