package llmgateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retry attempts and backoff timing for transient
// failures (spec.md §4.4: "Retries are bounded (default: 3 attempts,
// 5-second base delay, jitter)").
type RetryPolicy struct {
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the spec-mandated default: 3 attempts (the first
// call plus 2 retries), 5s base delay, exponential backoff with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BaseDelay:   5 * time.Second,
		MaxInterval: 60 * time.Second,
	}
}

// Run executes op, retrying transient failures per the policy. A permanent
// error (wrapped via backoffPermanent) stops retrying immediately.
func (p RetryPolicy) Run(ctx context.Context, op backoff.Operation) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.MaxInterval = p.MaxInterval
	expo.Multiplier = 2.0
	expo.RandomizationFactor = 0.5 // jitter

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, p.MaxRetries), ctx)
	return backoff.Retry(op, bo)
}

// backoffPermanent wraps err so the backoff library stops retrying and
// returns err directly from Retry, rather than exhausting the policy first.
func backoffPermanent(err error) error {
	return backoff.Permanent(err)
}
