// Package llmgateway implements the LLM Gateway (spec.md §4.4): a typed
// request/response boundary in front of the external LLM oracle, with
// content-addressed response caching, schema validation, retry
// classification, and continuation handling for truncated responses. The
// LLM provider itself is out of scope (spec.md §1) — Transport is the
// pluggable seam a concrete provider integration implements.
package llmgateway

import (
	"context"
	"fmt"
	"time"

	"pillarlens/pkg/governor"
)

// Request is a declarative, typed prompt: system context, user content, and
// the JSON schema the response must validate against (spec.md §4.4).
type Request struct {
	SystemContext string
	UserContent   string
	Schema        []byte
	// EstimatedCost is the pre-call cost estimate passed to the Governor's
	// Acquire; ActualCost, once known, is what gets Recorded.
	EstimatedCost float64
	// Label identifies the calling component for logging (e.g. "journal_reviewer").
	Label string
}

// Transport executes a single rendered request against the LLM provider and
// returns the raw (unvalidated) response body. Implementations are the only
// place that talks to the actual provider; Gateway never does I/O directly.
type Transport interface {
	Execute(ctx context.Context, req Request) (raw []byte, actualCost float64, err error)
}

// Gateway is the LLM Gateway collaborator (spec.md §4.4), constructed once
// by the Pipeline Controller and shared by every reviewer/judge component.
type Gateway struct {
	transport Transport
	governor  *governor.Governor
	cache     *Cache
	retry     RetryPolicy
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// New constructs a Gateway. cacheDir is where content-addressed responses
// are persisted; pass "" to disable caching (e.g. dry-run mode).
func New(transport Transport, gov *governor.Governor, cacheDir string, opts ...Option) *Gateway {
	g := &Gateway{
		transport: transport,
		governor:  gov,
		cache:     NewCache(cacheDir),
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Call issues req against the LLM provider and unmarshals the validated JSON
// response into a value of type T (spec.md §4.4's typed
// `call(request: TypedPrompt[T]) -> T`). The full sequence:
//  1. Compute the content-addressed cache key; return on a cache hit.
//  2. Acquire a Governor permit.
//  3. Execute via Transport, classify any error, retry per policy.
//  4. Validate the response against req.Schema; a truncated-but-valid-so-far
//     response triggers one continuation call.
//  5. Persist to cache; record actual cost.
func Call[T any](ctx context.Context, g *Gateway, req Request) (T, error) {
	var zero T

	key := CacheKey(req)
	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			g.governor.Record(0, true, req.EstimatedCost)
			var out T
			if err := unmarshalValidated(cached, req.Schema, &out); err != nil {
				return zero, fmt.Errorf("cached response for %s failed validation: %w", req.Label, err)
			}
			return out, nil
		}
	}

	if err := g.governor.Acquire(ctx, req.EstimatedCost); err != nil {
		return zero, fmt.Errorf("acquiring governor permit for %s: %w", req.Label, err)
	}

	raw, actualCost, err := g.executeWithRetry(ctx, req)
	if err != nil {
		return zero, err
	}

	raw, err = g.resolveTruncation(ctx, req, raw)
	if err != nil {
		return zero, err
	}

	var out T
	if err := unmarshalValidated(raw, req.Schema, &out); err != nil {
		g.governor.Record(actualCost, false, 0)
		return zero, fmt.Errorf("%w: response from %s: %v", ErrPermanent, req.Label, err)
	}

	if g.cache != nil {
		g.cache.Put(key, raw)
	}
	g.governor.Record(actualCost, false, 0)
	return out, nil
}

// executeWithRetry runs req through Transport, retrying transient failures
// per g.retry (spec.md §4.4: "default: 3 attempts, 5-second base delay,
// jitter"; permanent failures and schema-invalid responses never retry).
func (g *Gateway) executeWithRetry(ctx context.Context, req Request) ([]byte, float64, error) {
	var (
		raw        []byte
		actualCost float64
	)

	op := func() error {
		callCtx, cancel := timeoutContext(ctx)
		defer cancel()

		r, cost, err := g.transport.Execute(callCtx, req)
		if err != nil {
			if Classify(err) == Permanent {
				return backoffPermanent(err)
			}
			return err // transient: retried by the policy
		}
		raw, actualCost = r, cost
		return nil
	}

	if err := g.retry.Run(ctx, op); err != nil {
		return nil, 0, fmt.Errorf("calling %s: %w", req.Label, err)
	}
	return raw, actualCost, nil
}

// callRaw executes a single one-off request (used by continuation handling)
// bypassing the cache, since a continuation's cache key differs call to call.
func (g *Gateway) callRaw(ctx context.Context, req Request) ([]byte, float64, error) {
	if err := g.governor.Acquire(ctx, req.EstimatedCost); err != nil {
		return nil, 0, err
	}
	return g.executeWithRetry(ctx, req)
}

// timeoutContext applies the default per-call wall-clock timeout (spec.md
// §5 Timeouts: "Each LLM call has a wall-clock timeout (default 120s)").
func timeoutContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 120*time.Second)
}
