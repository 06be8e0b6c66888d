package claim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pillarlens/pkg/config"
)

func TestJaccardSimilarityIdentical(t *testing.T) {
	assert.Equal(t, 1.0, JaccardSimilarity("X achieves Y at Z=0.9", "X achieves Y at Z=0.9"))
}

func TestJaccardSimilarityDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, JaccardSimilarity("alpha beta gamma", "delta epsilon zeta"))
}

func TestJaccardSimilarityPartialOverlap(t *testing.T) {
	// {a,b,c,d} vs {a,b,e,f}: intersection 2, union 6.
	sim := JaccardSimilarity("a b c d", "a b e f")
	assert.InDelta(t, 2.0/6.0, sim, 0.0001)
}

func TestJaccardSimilarityEmptyTextsAreDissimilar(t *testing.T) {
	assert.Equal(t, 0.0, JaccardSimilarity("", ""))
}

func newApprovedClaim(paperID, subReq, text string) *Claim {
	c := New(paperID, subReq, 1.0, text, config.ClaimSourceJournalReviewer, Provenance{})
	c.Status = config.ClaimStatusApproved
	return c
}

func TestDedupeSupersedesNearDuplicate(t *testing.T) {
	d := NewDeduplicator(0.85)
	first := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9 with strong results")
	second := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9 with strong results.")

	superseded := d.Dedupe([]*Claim{first, second})

	assert.Equal(t, []string{second.ClaimID}, superseded)
	assert.Equal(t, config.ClaimStatusApproved, first.Status)
	assert.Equal(t, config.ClaimStatusSuperseded, second.Status)
	assert.Equal(t, first.ClaimID, second.SupersededBy)
}

func TestDedupeKeepsDistinctClaims(t *testing.T) {
	d := NewDeduplicator(0.85)
	first := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9")
	second := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "Completely unrelated finding about W")

	superseded := d.Dedupe([]*Claim{first, second})

	assert.Empty(t, superseded)
	assert.Equal(t, config.ClaimStatusApproved, first.Status)
	assert.Equal(t, config.ClaimStatusApproved, second.Status)
}

func TestDedupeRequiresMatchingPaperAndSubRequirement(t *testing.T) {
	d := NewDeduplicator(0.85)
	first := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9")
	second := newApprovedClaim("paper_b.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9")

	superseded := d.Dedupe([]*Claim{first, second})
	assert.Empty(t, superseded)
}

func TestDedupeIsIdempotent(t *testing.T) {
	// Running the deduplicator twice on the same claim set produces the
	// same final state the second time (spec.md §8 dedup idempotence):
	// nothing further gets superseded once converged.
	d := NewDeduplicator(0.85)
	first := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9 with strong results")
	second := newApprovedClaim("paper_a.pdf", "Sub-1.1.1", "X achieves Y at Z=0.9 with strong results.")
	claims := []*Claim{first, second}

	d.Dedupe(claims)
	statusesAfterFirst := map[string]config.ClaimStatus{first.ClaimID: first.Status, second.ClaimID: second.Status}

	secondPass := d.Dedupe(claims)
	statusesAfterSecond := map[string]config.ClaimStatus{first.ClaimID: first.Status, second.ClaimID: second.Status}

	assert.Empty(t, secondPass)
	assert.Equal(t, statusesAfterFirst, statusesAfterSecond)
}
