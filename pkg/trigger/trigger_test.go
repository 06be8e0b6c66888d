package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/gap"
)

func testConfig() config.TriggerConfig {
	return config.TriggerConfig{
		SaturationClaimCap:    8,
		ClaimDensityCap:       5,
		TriangulationPaperCap: 3,
		BaseYieldPerPair:      0.5,
		SizeMultiplierCap:     2.0,
		BenefitPointsPerClaim: 10.0,
		CostPointsPerPair:     1.0,
	}
}

func approvedClaim(paperID, subReqID string) *claim.Claim {
	c := claim.New(paperID, subReqID, 1.0, paperID+subReqID, config.ClaimSourceJournalReviewer, claim.Provenance{})
	c.Status = config.ClaimStatusApproved
	c.EvidenceQuality = &claim.Quality{Composite: 4.0}
	return c
}

func TestEvaluateDoesNotTriggerOnEmptyReport(t *testing.T) {
	report := gap.Report{SubRequirements: map[string]gap.SubRequirementGap{}}
	e := Evaluator{Config: testConfig()}

	d := e.Evaluate(report, nil, nil)
	assert.False(t, d.Trigger)
	assert.NotEmpty(t, d.Reasons)
}

func TestEvaluateTriggersWhenThreeMetricsPassAndNoBlocker(t *testing.T) {
	report := gap.Report{
		SubRequirements: map[string]gap.SubRequirementGap{
			"Sub-1": {
				SubRequirementID:    "Sub-1",
				CompletenessPercent: 30,
				ConfidenceLevel:     config.ConfidenceMedium,
				ContributingPapers:  []gap.ContributingPaper{{PaperID: "paper_a.pdf", ClaimIDs: []string{"c1"}}},
				EvidenceCount:       1,
				BottleneckScore:     6,
			},
			"Sub-2": {
				SubRequirementID:    "Sub-2",
				CompletenessPercent: 20,
				ConfidenceLevel:     config.ConfidenceHigh,
				ContributingPapers:  []gap.ContributingPaper{{PaperID: "paper_b.pdf", ClaimIDs: []string{"c2"}}},
				EvidenceCount:       1,
			},
		},
	}
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1"),
		approvedClaim("paper_b.pdf", "Sub-2"),
	}
	paperIDs := []string{"paper_a.pdf", "paper_b.pdf", "paper_c.pdf"}

	e := Evaluator{Config: testConfig()}
	d := e.Evaluate(report, claims, paperIDs)

	assert.GreaterOrEqual(t, d.Metrics.GapOpportunityScore, gapOpportunityPass, "both sub-requirements are in the 0-50% band with >=1 paper and medium+ confidence")
	assert.GreaterOrEqual(t, d.Metrics.BottleneckSeverity, bottleneckPass)
	assert.Less(t, d.Metrics.CoverageSaturation, coverageSaturationPass)
	assert.True(t, d.Trigger, "at least 3 metrics pass and neither critical blocker is active")
}

func TestEvaluateVetoedByPaperReuseCriticalBlocker(t *testing.T) {
	// No papers have any approved claim contributing to a sub-80 gap, so
	// paper_reuse_efficiency is 0 (< 0.2), a critical blocker regardless of
	// how many other metrics pass.
	report := gap.Report{
		SubRequirements: map[string]gap.SubRequirementGap{
			"Sub-1": {
				SubRequirementID:    "Sub-1",
				CompletenessPercent: 10,
				ConfidenceLevel:     config.ConfidenceHigh,
				ContributingPapers:  nil,
				BottleneckScore:     8,
			},
		},
	}
	paperIDs := []string{"paper_a.pdf", "paper_b.pdf"}

	e := Evaluator{Config: testConfig()}
	d := e.Evaluate(report, nil, paperIDs)

	assert.Less(t, d.Metrics.PaperReuseEfficiency, paperReuseCriticalBlocker)
	assert.False(t, d.Trigger, "critical blocker vetoes an otherwise-qualifying pass count")
}

func TestEvaluateExceptionalSingleMetricOverridesBlockerFreeDecision(t *testing.T) {
	report := gap.Report{
		SubRequirements: map[string]gap.SubRequirementGap{
			"Sub-1": {SubRequirementID: "Sub-1", CompletenessPercent: 90, BottleneckScore: 12},
		},
	}
	e := Evaluator{Config: testConfig()}
	d := e.Evaluate(report, nil, nil)

	assert.GreaterOrEqual(t, d.Metrics.BottleneckSeverity, bottleneckExceptional)
	assert.True(t, d.Trigger, "bottleneck_severity>=10 is exceptional and triggers on its own")
}

func TestEvaluateVetoedByCoverageSaturationCriticalBlocker(t *testing.T) {
	// Two sub-requirements sit in the gap-opportunity band with healthy
	// bottleneck and paper-reuse numbers (three metrics would otherwise pass),
	// but a third sub-requirement is fully saturated (100% complete, density
	// and triangulation both maxed) and pulls the averaged coverage_saturation
	// metric past the 0.85 critical-blocker threshold, vetoing the run.
	report := gap.Report{
		SubRequirements: map[string]gap.SubRequirementGap{
			"Sub-A": {
				SubRequirementID:    "Sub-A",
				CompletenessPercent: 50,
				ConfidenceLevel:     config.ConfidenceHigh,
				ContributingPapers: []gap.ContributingPaper{
					{PaperID: "paper_a.pdf"}, {PaperID: "filler1.pdf"}, {PaperID: "filler2.pdf"},
				},
				EvidenceCount:   5,
				BottleneckScore: 2,
			},
			"Sub-B": {
				SubRequirementID:    "Sub-B",
				CompletenessPercent: 50,
				ConfidenceLevel:     config.ConfidenceHigh,
				ContributingPapers: []gap.ContributingPaper{
					{PaperID: "paper_b.pdf"}, {PaperID: "filler3.pdf"}, {PaperID: "filler4.pdf"},
				},
				EvidenceCount:   5,
				BottleneckScore: 2,
			},
			"Sub-C": {
				SubRequirementID:    "Sub-C",
				CompletenessPercent: 100,
				ConfidenceLevel:     config.ConfidenceHigh,
				ContributingPapers: []gap.ContributingPaper{
					{PaperID: "paper_a.pdf"}, {PaperID: "paper_b.pdf"}, {PaperID: "paper_c.pdf"},
				},
				EvidenceCount:   5,
				BottleneckScore: 2,
			},
		},
	}
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-A"),
		approvedClaim("paper_b.pdf", "Sub-B"),
	}
	paperIDs := []string{"paper_a.pdf", "paper_b.pdf", "paper_c.pdf"}

	e := Evaluator{Config: testConfig()}
	d := e.Evaluate(report, claims, paperIDs)

	assert.GreaterOrEqual(t, d.Metrics.GapOpportunityScore, gapOpportunityPass)
	assert.GreaterOrEqual(t, d.Metrics.BottleneckSeverity, bottleneckPass)
	assert.GreaterOrEqual(t, d.Metrics.PaperReuseEfficiency, paperReusePass)
	assert.GreaterOrEqual(t, d.Metrics.CoverageSaturation, coverageSaturationCritical, "Sub-C's full saturation pulls the average above the critical threshold")
	assert.False(t, d.Trigger, "coverage_saturation>=0.85 vetoes the run even though three other metrics pass")
}

func TestClaimDensityCapsAtOneHundred(t *testing.T) {
	assert.Equal(t, 100.0, claimDensity(50, 5))
	assert.Equal(t, 40.0, claimDensity(2, 5))
}

func TestSizeMultiplierCaps(t *testing.T) {
	assert.Equal(t, 1.0, sizeMultiplier(0, 2.0))
	assert.Equal(t, 2.0, sizeMultiplier(100, 2.0))
}
