// Package reviewer implements the shared capability set spec.md §9
// describes for the Journal Reviewer, DRA, and Deep Reviewer: chunk a
// document, extract claims from a chunk under some guidance, and hand back
// Claims ready for the Version Store. The three concrete variants (Journal,
// DRA, DeepReviewer) differ only in what document they re-read and what
// guidance they give the LLM.
package reviewer

import (
	"context"
	"fmt"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/llmgateway"
	"pillarlens/pkg/sanitize"
	"pillarlens/pkg/store"
)

// extractionSchema is the JSON schema every reviewer variant's LLM response
// must validate against (spec.md §4.4's typed response contract).
var extractionSchema = []byte(`{
	"type": "object",
	"properties": {
		"claims": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"sub_requirement": {"type": "string"},
					"text": {"type": "string"},
					"page_numbers": {"type": "array", "items": {"type": "integer"}},
					"section": {"type": "string"},
					"char_start": {"type": "integer"},
					"char_end": {"type": "integer"},
					"supporting_quote": {"type": "string"},
					"context_before": {"type": "string"},
					"context_after": {"type": "string"}
				},
				"required": ["sub_requirement", "text"]
			}
		}
	},
	"required": ["claims"]
}`)

type extractedClaim struct {
	SubRequirement  string `json:"sub_requirement"`
	Text            string `json:"text"`
	PageNumbers     []int  `json:"page_numbers"`
	Section         string `json:"section"`
	CharStart       int    `json:"char_start"`
	CharEnd         int    `json:"char_end"`
	SupportingQuote string `json:"supporting_quote"`
	ContextBefore   string `json:"context_before"`
	ContextAfter    string `json:"context_after"`
}

type extractionResponse struct {
	Claims []extractedClaim `json:"claims"`
}

// Base holds the collaborators shared by every reviewer variant.
type Base struct {
	Catalog             *catalog.Catalog
	Gateway             *llmgateway.Gateway
	Quarantine          *store.QuarantineStore
	ConfidenceThreshold float64
}

// extract calls the LLM Gateway with guidance over one chunk of document
// text, resolves each returned sub-requirement against the catalog
// (quarantining unresolved ones per spec.md §4.2), sanitizes quoted text,
// and translates chunk-relative offsets back to document-absolute
// positions (spec.md §4.5 "claim provenance must reference positions in the
// original document").
func (b Base) extract(ctx context.Context, paperID string, ch chunk.Chunk, guidance, label string, source config.ClaimSource) ([]*claim.Claim, error) {
	req := llmgateway.Request{
		SystemContext: systemPrompt(source),
		UserContent:   fmt.Sprintf("%s\n\n---\nDOCUMENT EXCERPT:\n%s", guidance, ch.Text),
		Schema:        extractionSchema,
		Label:         label,
	}

	resp, err := llmgateway.Call[extractionResponse](ctx, b.Gateway, req)
	if err != nil {
		return nil, fmt.Errorf("reviewer: extracting claims for %s: %w", paperID, err)
	}

	claims := make([]*claim.Claim, 0, len(resp.Claims))
	for _, ec := range resp.Claims {
		resolution, err := b.Catalog.Resolve(ec.SubRequirement, b.ConfidenceThreshold)
		if err != nil {
			if b.Quarantine != nil {
				_ = b.Quarantine.Add(store.QuarantinedClaim{
					PaperID:        paperID,
					Text:           ec.Text,
					AttemptedMatch: ec.SubRequirement,
				})
			}
			continue
		}

		prov := claim.Provenance{
			PageNumbers:     absolutePages(ch, ec.PageNumbers),
			Section:         ec.Section,
			CharStart:       ch.CharStart + ec.CharStart,
			CharEnd:         ch.CharStart + ec.CharEnd,
			SupportingQuote: sanitize.Redact(ec.SupportingQuote),
			ContextBefore:   sanitize.Redact(ec.ContextBefore),
			ContextAfter:    sanitize.Redact(ec.ContextAfter),
		}

		c := claim.New(paperID, resolution.SubRequirement.ID, resolution.Confidence, sanitize.Redact(ec.Text), source, prov)
		claims = append(claims, c)
	}
	return claims, nil
}

func absolutePages(ch chunk.Chunk, declared []int) []int {
	if len(declared) > 0 {
		return declared
	}
	return ch.Pages
}

func systemPrompt(source config.ClaimSource) string {
	return fmt.Sprintf(
		"You are the %s, analyzing a research paper excerpt to extract atomic evidentiary claims mapped to a requirements taxonomy. Respond only with JSON matching the declared schema.",
		source,
	)
}

// catalogGuidance renders the full taxonomy as a prompt fragment for the
// Journal Reviewer's breadth-favoring first pass (spec.md §4.5.1).
func catalogGuidance(cat *catalog.Catalog) string {
	out := "SUB-REQUIREMENTS:\n"
	for _, sr := range cat.ListSubRequirements() {
		out += fmt.Sprintf("- %s: %s", sr.ID, sr.Title)
		if len(sr.Keywords) > 0 {
			out += fmt.Sprintf(" (keywords: %v)", sr.Keywords)
		}
		out += "\n"
	}
	return out
}
