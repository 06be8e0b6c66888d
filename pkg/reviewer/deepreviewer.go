package reviewer

import (
	"context"
	"fmt"

	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

// DeepReviewer is C9: gap-targeted re-analysis of an already-ingested paper
// for additional evidence on one sub-requirement (spec.md §4.5.4).
type DeepReviewer struct {
	Base
	Extractor chunk.PaperTextExtractor
	Splitter  chunk.Splitter
	Dedup     *claim.Deduplicator
}

// ReviewGapPair re-reads path with subReqID/gapStatement as explicit
// context and returns only the claims that survive deduplication against
// existing (the union of already-ingested claims for this paper). A pass
// that yields zero new unique claims returns an empty, non-nil slice — the
// caller logs the condition and proceeds to the next (gap, paper) pair, per
// spec.md §4.5.4.
func (r DeepReviewer) ReviewGapPair(ctx context.Context, paperID, path, subReqID, gapStatement string, existing []*claim.Claim) ([]*claim.Claim, error) {
	doc, err := r.Extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("deep reviewer: extracting text from %s: %w", path, err)
	}

	chunks := r.Splitter.Split(doc)
	guidance := fmt.Sprintf(
		"Focus specifically on sub-requirement %s. Coverage gap: %s\nExtract additional specific claims (typically 1-5 sentences) with exact page numbers that prior passes over this paper missed. Return an empty claims array if nothing new applies.",
		subReqID, gapStatement,
	)

	var fresh []*claim.Claim
	for i, ch := range chunks {
		claims, err := r.extract(ctx, paperID, ch, guidance, fmt.Sprintf("deep_reviewer:%s:%s:chunk%d", paperID, subReqID, i), config.ClaimSourceDeepReviewer)
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, claims...)
	}

	if len(fresh) == 0 {
		return []*claim.Claim{}, nil
	}

	if r.Dedup != nil {
		combined := make([]*claim.Claim, 0, len(existing)+len(fresh))
		combined = append(combined, existing...)
		combined = append(combined, fresh...)
		r.Dedup.Dedupe(combined)
	}

	unique := make([]*claim.Claim, 0, len(fresh))
	for _, c := range fresh {
		if c.Status != config.ClaimStatusSuperseded {
			unique = append(unique, c)
		}
	}
	return unique, nil
}
