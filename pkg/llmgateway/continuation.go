package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// resolveTruncation detects a provider response that is valid-but-incomplete
// (e.g. a truncated JSON array) and re-issues a single continuation call,
// per spec.md §4.4: "surfaces a partial result when the provider returned
// valid but incomplete data... the gateway re-issues a continuation." A
// response that already parses as valid JSON is returned unchanged.
func (g *Gateway) resolveTruncation(ctx context.Context, req Request, raw []byte) ([]byte, error) {
	if json.Valid(raw) {
		return raw, nil
	}

	continuation := req
	continuation.UserContent = fmt.Sprintf(
		"%s\n\nYour previous response was truncated after:\n%s\n\nContinue the JSON response from exactly where it left off. Do not repeat any earlier content, and do not add commentary outside the JSON.",
		req.UserContent, string(raw),
	)
	continuation.Label = req.Label + ":continuation"

	more, moreCost, err := g.callRaw(ctx, continuation)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting continuation for %s: %v", ErrPermanent, req.Label, err)
	}
	g.governor.Record(moreCost, false, 0)

	merged := append(append([]byte{}, raw...), more...)
	if !json.Valid(merged) {
		return nil, fmt.Errorf("%w: continuation for %s did not yield valid JSON", ErrPermanent, req.Label)
	}
	return merged, nil
}
