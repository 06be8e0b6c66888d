// Package claim defines the atomic unit of evidence — the Claim — its
// provenance and quality vector, the state machine it moves through, and the
// deterministic identity and deduplication rules that keep the Version Store
// free of duplicate evidence.
package claim

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"pillarlens/pkg/config"
)

// Provenance locates a claim's supporting text within the original document,
// before chunking offsets are collapsed back to document-absolute positions.
type Provenance struct {
	PageNumbers     []int  `json:"page_numbers"`
	Section         string `json:"section,omitempty"`
	CharStart       int    `json:"char_start"`
	CharEnd         int    `json:"char_end"`
	SupportingQuote string `json:"supporting_quote"`
	ContextBefore   string `json:"context_before"`
	ContextAfter    string `json:"context_after"`
}

// Quality is the Judge's six-dimension evaluation of a claim, plus the
// derived composite score (spec.md §4.5.2).
type Quality struct {
	Strength        int                    `json:"strength"`
	Rigor           int                    `json:"rigor"`
	Relevance       int                    `json:"relevance"`
	Directness      int                    `json:"directness"`
	IsRecent        bool                   `json:"is_recent"`
	Reproducibility int                    `json:"reproducibility"`
	StudyType       string                 `json:"study_type"`
	Composite       float64                `json:"composite"`
	Confidence      config.ConfidenceLevel `json:"confidence"`
}

// computeComposite computes the weighted composite score from the six dimensions,
// per spec.md §4.5.2:
//
//	0.30·strength + 0.25·rigor + 0.25·relevance + 0.10·(directness/3)
//	  + 0.05·(1 if is_recent else 0) + 0.05·reproducibility
func (q Quality) computeComposite() float64 {
	recent := 0.0
	if q.IsRecent {
		recent = 1.0
	}
	return 0.30*float64(q.Strength) +
		0.25*float64(q.Rigor) +
		0.25*float64(q.Relevance) +
		0.10*(float64(q.Directness)/3.0) +
		0.05*recent +
		0.05*float64(q.Reproducibility)
}

// Consensus carries the vote metadata for a claim routed to consensus review
// when its composite score is borderline or its dimensions disagree.
type Consensus struct {
	AgreementRate float64   `json:"agreement_rate"`
	VoteBreakdown []string  `json:"vote_breakdown"`
	StdDev        float64   `json:"std_dev"`
}

// Claim is the atomic unit of evidence (spec.md §3).
type Claim struct {
	ClaimID           string              `json:"claim_id"`
	PaperID           string              `json:"paper_id"`
	SubRequirementID  string              `json:"sub_requirement_id"`
	ResolutionConfidence float64          `json:"resolution_confidence"`
	Text              string              `json:"text"`
	Status            config.ClaimStatus  `json:"status"`
	Source            config.ClaimSource  `json:"source"`
	Provenance        Provenance          `json:"provenance"`
	EvidenceQuality   *Quality            `json:"evidence_quality,omitempty"`
	JudgeNotes        string              `json:"judge_notes,omitempty"`
	JudgeTimestamp    *time.Time          `json:"judge_timestamp,omitempty"`

	// PriorRejectionID links an appeal claim (source=dra) back to the
	// rejected claim it amends (spec.md §4.5.3).
	PriorRejectionID string `json:"prior_rejection_id,omitempty"`
	// SupersededBy links a deduplicated claim to the survivor claim_id
	// (spec.md §3 Claim uniqueness).
	SupersededBy string `json:"superseded_by,omitempty"`

	// Consensus is populated only while Status is held for consensus review
	// (spec.md §4.5.2 "borderline" sub-status).
	Consensus *Consensus `json:"consensus,omitempty"`

	PublicationYear int `json:"publication_year,omitempty"`
}

// NewID computes the deterministic claim_id from (paper_id, sub_requirement_id,
// normalized_text), satisfying the determinism-of-identity invariant
// (spec.md §8): identical inputs always yield the same id, across runs.
func NewID(paperID, subRequirementID, text string) string {
	normalized := Normalize(text)
	h := sha256.New()
	h.Write([]byte(paperID))
	h.Write([]byte{0})
	h.Write([]byte(subRequirementID))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Normalize lowercases, collapses whitespace, and trims text so that
// cosmetically different renderings of the same quote hash identically.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// New constructs a claim in its initial pending_judge_review status, the only
// status C5/C7/C9 are ever allowed to create (spec.md §3 Lifecycle).
func New(paperID, subRequirementID string, confidence float64, text string, source config.ClaimSource, prov Provenance) *Claim {
	return &Claim{
		ClaimID:              NewID(paperID, subRequirementID, text),
		PaperID:              paperID,
		SubRequirementID:     subRequirementID,
		ResolutionConfidence: confidence,
		Text:                 text,
		Status:               config.ClaimStatusPendingJudgeReview,
		Source:               source,
		Provenance:           prov,
	}
}

// ApplyVerdict sets q on the claim, computes its composite, and transitions
// Status to approved or rejected per the Judge's approval threshold
// (spec.md §4.5.2): composite ≥ 3.0 AND strength ≥ 3 AND relevance ≥ 3.
func (c *Claim) ApplyVerdict(q Quality, notes string, at time.Time) {
	q.Composite = q.computeComposite()
	c.EvidenceQuality = &q
	c.JudgeNotes = notes
	c.JudgeTimestamp = &at

	if q.Composite >= 3.0 && q.Strength >= 3 && q.Relevance >= 3 {
		c.Status = config.ClaimStatusApproved
	} else {
		c.Status = config.ClaimStatusRejected
	}
}

// IsBorderline reports whether c's composite score falls inside band, or its
// dimensions disagree enough to warrant consensus review (spec.md §4.5.2).
func (c *Claim) IsBorderline(band config.ConsensusBand) bool {
	if c.EvidenceQuality == nil {
		return false
	}
	composite := c.EvidenceQuality.Composite
	if composite >= band.Low && composite <= band.High {
		return true
	}
	return dimensionsDisagree(*c.EvidenceQuality)
}

// dimensionsDisagree flags a quality vector whose strength/rigor/relevance
// scores span more than 2 points — a rough proxy for "the dimensional scores
// disagree significantly" (spec.md §4.5.2).
func dimensionsDisagree(q Quality) bool {
	lo, hi := q.Strength, q.Strength
	for _, v := range []int{q.Rigor, q.Relevance} {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo > 2
}

// Supersede marks c as superseded by survivorID, per the deduplication rule
// in spec.md §3: "the earlier-approved claim wins; later duplicates are
// marked superseded with a reference to the survivor."
func (c *Claim) Supersede(survivorID string) {
	c.Status = config.ClaimStatusSuperseded
	c.SupersededBy = survivorID
}
