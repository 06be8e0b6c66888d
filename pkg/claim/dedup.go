package claim

import (
	"strings"
	"unicode"

	"pillarlens/pkg/config"
)

// Deduplicator applies the duplicate rule from spec.md §3: two claims are
// duplicates when their (paper_id, sub_requirement_id) match AND the
// normalized text has token-level Jaccard similarity above threshold. The
// earlier-approved claim wins; later duplicates are superseded.
type Deduplicator struct {
	threshold float64
}

// NewDeduplicator returns a Deduplicator that treats two claims within the
// same (paper_id, sub_requirement_id) as duplicates above threshold.
func NewDeduplicator(threshold float64) *Deduplicator {
	return &Deduplicator{threshold: threshold}
}

// Dedupe walks claims in the order given (callers should pass them in
// approval/creation order, earliest first) and supersedes later duplicates
// in place, returning the set of claim_ids that were superseded. Running
// Dedupe twice on the same input produces the same result both times
// (dedup idempotence, spec.md §8): once a claim is superseded its text
// comparison is skipped on subsequent passes.
func (d *Deduplicator) Dedupe(claims []*Claim) []string {
	var superseded []string
	survivors := make([]*Claim, 0, len(claims))

	for _, c := range claims {
		if c.Status == config.ClaimStatusSuperseded {
			continue
		}
		dupOf := d.findSurvivor(c, survivors)
		if dupOf != nil {
			c.Supersede(dupOf.ClaimID)
			superseded = append(superseded, c.ClaimID)
			continue
		}
		survivors = append(survivors, c)
	}
	return superseded
}

func (d *Deduplicator) findSurvivor(c *Claim, survivors []*Claim) *Claim {
	for _, s := range survivors {
		if s.PaperID != c.PaperID || s.SubRequirementID != c.SubRequirementID {
			continue
		}
		if JaccardSimilarity(s.Text, c.Text) >= d.threshold {
			return s
		}
	}
	return nil
}

// JaccardSimilarity returns the token-level Jaccard similarity of the
// normalized forms of a and b: |intersection| / |union| over their word
// sets, with punctuation trimmed from both ends of each word. Two empty texts are defined as dissimilar (0), not a degenerate 1,
// since an empty claim text should never be treated as a duplicate match.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(Normalize(text)) {
		tok = strings.TrimFunc(tok, unicode.IsPunct)
		if tok == "" {
			continue
		}
		set[tok] = true
	}
	return set
}
