package reviewer

import (
	"context"
	"fmt"

	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

// Journal is the Journal Reviewer (C5): first-pass claim extraction from a
// full paper (spec.md §4.5.1). It favors breadth — the whole catalog is
// given as guidance on every chunk — and enforces the per-paper claim cap.
type Journal struct {
	Base
	Extractor   chunk.PaperTextExtractor
	Splitter    chunk.Splitter
	PerPaperCap int
	Dedup       *claim.Deduplicator
}

// Review extracts claims from paperID at path, capped at PerPaperCap and
// deduplicated across chunks per spec.md §4.5's chunking policy.
func (j Journal) Review(ctx context.Context, paperID, path string) ([]*claim.Claim, error) {
	doc, err := j.Extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("journal reviewer: extracting text from %s: %w", path, err)
	}

	chunks := j.Splitter.Split(doc)
	guidance := catalogGuidance(j.Catalog)

	var all []*claim.Claim
	for i, ch := range chunks {
		if j.PerPaperCap > 0 && len(all) >= j.PerPaperCap {
			break
		}
		claims, err := j.extract(ctx, paperID, ch, guidance, fmt.Sprintf("journal_reviewer:%s:chunk%d", paperID, i), config.ClaimSourceJournalReviewer)
		if err != nil {
			return nil, err
		}
		all = append(all, claims...)
	}

	if j.PerPaperCap > 0 && len(all) > j.PerPaperCap {
		all = all[:j.PerPaperCap]
	}

	if j.Dedup != nil {
		j.Dedup.Dedupe(all)
	}
	return all, nil
}
