// Package governor implements the Rate/Budget Governor (spec.md §4.3): a
// process-wide collaborator, constructed once by the Pipeline Controller and
// passed into the LLM Gateway, that paces outbound calls against a
// sliding-window per-minute ceiling and enforces a cumulative monetary
// budget.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned by Acquire when the configured budget is
// already fully spent, or when the running total plus the estimated cost of
// the call would exceed it. The caller
// must abort the current high-level operation, not just the single call
// (spec.md §4.3).
var ErrBudgetExhausted = errors.New("budget_exhausted")

// Stats is a point-in-time snapshot of governor totals, read through
// Snapshot. Neither the governor nor its callers write these totals to a
// report file at teardown.
type Stats struct {
	TotalCostUSD float64
	CallCount    int
	CacheHits    int
	CacheMisses  int
	SavingsUSD   float64
}

// Governor is process-wide state with an explicit lifecycle: constructed
// once in the controller, passed into components as a collaborator, never a
// free global (spec.md §9).
type Governor struct {
	limiter   *rate.Limiter
	budgetUSD float64

	mu    sync.Mutex
	stats Stats
}

// New constructs a Governor enforcing callsPerMinute via a sliding-window
// token bucket (not a calendar-minute reset, per spec.md §4.3) and a
// cumulative monetary ceiling of budgetUSD.
func New(callsPerMinute int, budgetUSD float64) *Governor {
	perSecond := rate.Limit(float64(callsPerMinute) / 60.0)
	return &Governor{
		limiter:   rate.NewLimiter(perSecond, callsPerMinute),
		budgetUSD: budgetUSD,
	}
}

// Acquire first checks the running monetary total against budgetUSD: if the
// budget is already fully spent, or the running total plus estimatedCost
// would exceed it, it returns ErrBudgetExhausted without waiting for a window
// slot. Otherwise it blocks cooperatively until the per-minute window has
// room. Calls are never reordered — Acquire only paces them (spec.md §4.3
// Ordering).
func (g *Governor) Acquire(ctx context.Context, estimatedCost float64) error {
	g.mu.Lock()
	if g.stats.TotalCostUSD >= g.budgetUSD || g.stats.TotalCostUSD+estimatedCost > g.budgetUSD {
		g.mu.Unlock()
		return ErrBudgetExhausted
	}
	g.mu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate window: %w", err)
	}
	return nil
}

// Record updates running totals after a call completes. A cache hit is
// recorded with actualCost=0 and wouldHaveCost carrying the cost the call
// would have incurred on a miss, added to cumulative savings (spec.md §4.3).
func (g *Governor) Record(actualCost float64, cached bool, wouldHaveCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.CallCount++
	if cached {
		g.stats.CacheHits++
		g.stats.SavingsUSD += wouldHaveCost
		return
	}
	g.stats.CacheMisses++
	g.stats.TotalCostUSD += actualCost
}

// Snapshot returns a copy of the current totals.
func (g *Governor) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// RemainingBudget returns the monetary headroom left before ErrBudgetExhausted
// would trigger, never negative.
func (g *Governor) RemainingBudget() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.budgetUSD - g.stats.TotalCostUSD
	if remaining < 0 {
		return 0
	}
	return remaining
}
