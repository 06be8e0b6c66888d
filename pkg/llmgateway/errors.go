package llmgateway

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// Category is the error taxonomy from spec.md §7.
type Category int

const (
	// Transient errors are retried with exponential backoff inside the
	// Gateway; they never surface to the caller unless attempts are exhausted.
	Transient Category = iota
	// Permanent errors (4xx other than 429, schema-invalid response) are
	// never retried; they surface as a per-call failure to the stage.
	Permanent
)

// Sentinel errors surfaced to callers once retries are exhausted or a
// permanent failure occurs.
var (
	ErrTransient = errors.New("transient LLM call failure")
	ErrPermanent = errors.New("permanent LLM call failure")
)

// RateLimitError carries the provider's requested retry-after duration
// (spec.md §4.4: "Rate-limit errors from the provider cause retry with
// honored retry_after").
type RateLimitError struct {
	RetryAfterSeconds int
	Err               error
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// HTTPStatusError carries a provider HTTP status code so Classify can
// distinguish 429/5xx (transient) from other 4xx (permanent).
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string { return e.Err.Error() }
func (e *HTTPStatusError) Unwrap() error { return e.Err }

// Classify determines the retry category for a Transport error, following
// spec.md §7's error taxonomy. Network timeouts, connection resets, 5xx, and
// 429 are transient; everything else (including schema-invalid responses,
// which Call wraps in ErrPermanent before reaching here) is permanent.
func Classify(err error) Category {
	if err == nil {
		return Permanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return Transient
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return Transient
		case httpErr.StatusCode >= 500:
			return Transient
		default:
			return Permanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	if isConnectionError(err) {
		return Transient
	}

	return Permanent
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"connection refused", "connection reset", "broken pipe", "connection closed", "no such host"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
