package reviewer

import (
	"context"
	"fmt"

	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

// DRA is the Deep Requirements Analyzer (C7): the appeal stage. It re-reads
// only the portion of the paper surrounding a rejected claim's provenance
// (spec.md §4.5.3), attempting one amended claim per rejection.
type DRA struct {
	Base
	Extractor chunk.PaperTextExtractor
	Splitter  chunk.Splitter
}

// ReviewRejected produces at most one amended claim per entry in rejected,
// each linked back via PriorRejectionID. A rejected claim already carrying
// a PriorRejectionID (i.e. already the product of one appeal) is skipped —
// spec.md §4.5.3: "If after one DRA round a claim is still rejected, it is
// not appealed again."
func (d DRA) ReviewRejected(ctx context.Context, paperID, path string, rejected []*claim.Claim) ([]*claim.Claim, error) {
	if len(rejected) == 0 {
		return nil, nil
	}

	doc, err := d.Extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("dra: extracting text from %s: %w", path, err)
	}

	var amended []*claim.Claim
	for _, rc := range rejected {
		if rc.PriorRejectionID != "" {
			continue
		}

		ch := focusChunk(doc, rc, d.Splitter.Threshold)
		guidance := fmt.Sprintf(
			"A prior claim on sub-requirement %s was rejected by the Judge.\nJudge notes: %q\nOriginal claim text: %q\nIf the surrounding text supports a stronger, more precise claim on the same sub-requirement, produce exactly one amended claim addressing the critique. Otherwise return an empty claims array.",
			rc.SubRequirementID, rc.JudgeNotes, rc.Text,
		)

		claims, err := d.extract(ctx, paperID, ch, guidance, fmt.Sprintf("dra:%s:%s", paperID, rc.ClaimID), config.ClaimSourceDRA)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			c.PriorRejectionID = rc.ClaimID
		}
		amended = append(amended, claims...)
	}
	return amended, nil
}

// focusChunk builds a chunk.Chunk centered on rc's provenance, widened by
// half the configured DRA chunk threshold on either side so the LLM sees
// enough surrounding context to judge whether a stronger claim is
// supportable.
func focusChunk(doc chunk.Document, rc *claim.Claim, threshold int) chunk.Chunk {
	margin := threshold / 2
	start := rc.Provenance.CharStart - margin
	if start < 0 {
		start = 0
	}
	end := rc.Provenance.CharEnd + margin
	if end > len(doc.Text) {
		end = len(doc.Text)
	}
	if end <= start {
		start, end = 0, len(doc.Text)
	}

	firstPage := doc.PageAt(start)
	lastPage := doc.PageAt(max(end-1, start))
	pages := make([]int, 0, lastPage-firstPage+1)
	for p := firstPage; p <= lastPage; p++ {
		pages = append(pages, p)
	}

	return chunk.Chunk{Text: doc.Text[start:end], CharStart: start, CharEnd: end, Pages: pages}
}
