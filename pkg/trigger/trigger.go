// Package trigger implements the Trigger Evaluator (C10, spec.md §4.7): six
// metrics computed from the Gap Report, the current claim set, and the known
// paper universe, feeding a deterministic trigger decision for whether to run
// another Deep-Reviewer convergence iteration.
package trigger

import (
	"log/slog"

	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/gap"
)

// Metrics is the six-value vector spec.md §4.7 defines.
type Metrics struct {
	GapOpportunityScore float64 `json:"gap_opportunity_score"`
	PaperReuseEfficiency float64 `json:"paper_reuse_efficiency"`
	BottleneckSeverity  float64 `json:"bottleneck_severity"`
	CoverageSaturation  float64 `json:"coverage_saturation"`
	ExpectedClaimYield  float64 `json:"expected_claim_yield"`
	CostBenefitRatio    float64 `json:"cost_benefit_ratio"`
}

// Decision is the evaluator's output: the metric vector plus the trigger
// verdict and the human-readable reasons behind it (spec.md §4.7: "always
// logs the full metric vector and the reasons for/against triggering").
type Decision struct {
	Metrics Metrics  `json:"metrics"`
	Trigger bool     `json:"trigger"`
	Reasons []string `json:"reasons"`
}

// Pass/exceptional thresholds from spec.md §4.7's table, literal per the spec.
const (
	gapOpportunityPass        = 60.0
	gapOpportunityExceptional = 85.0
	paperReusePass            = 0.4
	paperReuseExceptional     = 0.7
	bottleneckPass            = 5.0
	bottleneckExceptional     = 10.0
	coverageSaturationPass    = 0.6 // trigger when BELOW this
	expectedYieldPass         = 15.0
	costBenefitPass           = 3.0
	costBenefitExceptional    = 5.0

	// Critical blockers (spec.md §4.7 Decision): either one vetoes an
	// otherwise-qualifying ≥3-metrics pass.
	paperReuseCriticalBlocker   = 0.2
	coverageSaturationCritical  = 0.85

	// gapOpportunityBandHigh is the upper bound of the "ideal band" for
	// gap_opportunity_score: 0 < completeness ≤ 50 (spec.md §4.7 row 1).
	gapOpportunityBandHigh = 50.0
	// reuseContributionCeiling is the completeness ceiling below which a
	// paper's contribution to a sub-requirement still counts as "a gap it
	// contributes to" for paper_reuse_efficiency (spec.md §4.7 row 2).
	reuseContributionCeiling = 80.0
	// yieldGapCeiling is the completeness ceiling defining a "gap" for
	// expected_claim_yield's (gap, paper) pairing (mirrors row 2's ceiling;
	// spec.md doesn't separately pin one for this row).
	yieldGapCeiling = 80.0
)

// Evaluator computes Decisions from a Gap Report and claim/paper state.
type Evaluator struct {
	Config config.TriggerConfig
}

// Evaluate implements spec.md §4.7's six metrics and decision rule.
// paperIDs is the full known paper universe (e.g. every filename the Version
// Store or a directory scan has ever seen), used as the denominator for
// paper-level fractions and the (gap, paper) pairing space.
func (e Evaluator) Evaluate(report gap.Report, claims []*claim.Claim, paperIDs []string) Decision {
	claimsByPaper := make(map[string][]*claim.Claim)
	for _, c := range claims {
		claimsByPaper[c.PaperID] = append(claimsByPaper[c.PaperID], c)
	}

	m := Metrics{
		GapOpportunityScore:  gapOpportunityScore(report),
		PaperReuseEfficiency: paperReuseEfficiency(report, claimsByPaper, paperIDs, e.Config.SaturationClaimCap),
		BottleneckSeverity:   bottleneckSeverity(report),
		CoverageSaturation:   coverageSaturation(report, e.Config),
		ExpectedClaimYield:   expectedClaimYield(report, claimsByPaper, paperIDs, e.Config),
	}
	m.CostBenefitRatio = costBenefitRatio(m.ExpectedClaimYield, report, paperIDs, e.Config)

	decision := decide(m)

	slog.Info("trigger: evaluated",
		"gap_opportunity_score", m.GapOpportunityScore,
		"paper_reuse_efficiency", m.PaperReuseEfficiency,
		"bottleneck_severity", m.BottleneckSeverity,
		"coverage_saturation", m.CoverageSaturation,
		"expected_claim_yield", m.ExpectedClaimYield,
		"cost_benefit_ratio", m.CostBenefitRatio,
		"trigger", decision.Trigger,
		"reasons", decision.Reasons,
	)

	return decision
}

func gapOpportunityScore(report gap.Report) float64 {
	if len(report.SubRequirements) == 0 {
		return 0
	}
	var inBand int
	for _, g := range report.SubRequirements {
		if g.CompletenessPercent > 0 && g.CompletenessPercent <= gapOpportunityBandHigh &&
			len(g.ContributingPapers) >= 1 &&
			(g.ConfidenceLevel == config.ConfidenceMedium || g.ConfidenceLevel == config.ConfidenceHigh) {
			inBand++
		}
	}
	return float64(inBand) / float64(len(report.SubRequirements)) * 100
}

func paperReuseEfficiency(report gap.Report, claimsByPaper map[string][]*claim.Claim, paperIDs []string, saturationCap int) float64 {
	if len(paperIDs) == 0 {
		return 0
	}

	gappyPapers := make(map[string]bool)
	for _, g := range report.SubRequirements {
		if g.CompletenessPercent >= reuseContributionCeiling {
			continue
		}
		for _, cp := range g.ContributingPapers {
			gappyPapers[cp.PaperID] = true
		}
	}

	var eligible int
	for _, paperID := range paperIDs {
		paperClaims := claimsByPaper[paperID]
		hasApproved := false
		for _, c := range paperClaims {
			if c.Status == config.ClaimStatusApproved {
				hasApproved = true
				break
			}
		}
		if hasApproved && gappyPapers[paperID] && len(paperClaims) < saturationCap {
			eligible++
		}
	}
	return float64(eligible) / float64(len(paperIDs))
}

func bottleneckSeverity(report gap.Report) float64 {
	var sum float64
	for _, g := range report.SubRequirements {
		sum += g.BottleneckScore
	}
	return sum
}

func coverageSaturation(report gap.Report, cfg config.TriggerConfig) float64 {
	if len(report.SubRequirements) == 0 {
		return 0
	}
	var sum float64
	for _, g := range report.SubRequirements {
		density := claimDensity(g.EvidenceCount, cfg.ClaimDensityCap)
		triangulation := triangulationScore(len(g.ContributingPapers), cfg.TriangulationPaperCap)
		sum += (0.4*g.CompletenessPercent + 0.3*density + 0.3*triangulation) / 100
	}
	return sum / float64(len(report.SubRequirements))
}

func claimDensity(evidenceCount, cap int) float64 {
	if cap <= 0 {
		return 0
	}
	d := float64(evidenceCount) / float64(cap) * 100
	if d > 100 {
		d = 100
	}
	return d
}

func triangulationScore(paperCount, cap int) float64 {
	if cap <= 0 {
		return 0
	}
	t := float64(paperCount) / float64(cap) * 100
	if t > 100 {
		t = 100
	}
	return t
}

// expectedClaimYield sums base_yield × size_multiplier × saturation_penalty
// over every (gap, paper) pair where paper hasn't yet contributed to that gap
// — the untapped potential the Deep-Reviewer pass would spend its budget on.
func expectedClaimYield(report gap.Report, claimsByPaper map[string][]*claim.Claim, paperIDs []string, cfg config.TriggerConfig) float64 {
	var total float64
	for _, g := range report.SubRequirements {
		if g.CompletenessPercent >= yieldGapCeiling {
			continue
		}
		contributing := make(map[string]bool, len(g.ContributingPapers))
		for _, cp := range g.ContributingPapers {
			contributing[cp.PaperID] = true
		}
		saturationPenalty := 1 - g.CompletenessPercent/100
		for _, paperID := range paperIDs {
			if contributing[paperID] {
				continue
			}
			total += cfg.BaseYieldPerPair * sizeMultiplier(len(claimsByPaper[paperID]), cfg.SizeMultiplierCap) * saturationPenalty
		}
	}
	return total
}

// sizeMultiplier scales a paper's expected yield by how much evidence it has
// already demonstrated producing, capped so one unusually prolific paper
// can't dominate the estimate.
func sizeMultiplier(existingClaimCount int, cap float64) float64 {
	m := 1.0 + float64(existingClaimCount)/5.0
	if m > cap {
		m = cap
	}
	return m
}

func costBenefitRatio(expectedYield float64, report gap.Report, paperIDs []string, cfg config.TriggerConfig) float64 {
	pairCount := 0
	for _, g := range report.SubRequirements {
		if g.CompletenessPercent >= yieldGapCeiling {
			continue
		}
		contributing := make(map[string]bool, len(g.ContributingPapers))
		for _, cp := range g.ContributingPapers {
			contributing[cp.PaperID] = true
		}
		for _, paperID := range paperIDs {
			if !contributing[paperID] {
				pairCount++
			}
		}
	}
	if pairCount == 0 {
		return 0
	}
	benefit := expectedYield * cfg.BenefitPointsPerClaim
	cost := float64(pairCount) * cfg.CostPointsPerPair
	if cost == 0 {
		return 0
	}
	return benefit / cost
}

func decide(m Metrics) Decision {
	var reasons []string
	var passCount int

	check := func(name string, passed bool) {
		if passed {
			passCount++
			reasons = append(reasons, name+" passed")
		} else {
			reasons = append(reasons, name+" did not pass")
		}
	}

	check("gap_opportunity_score", m.GapOpportunityScore >= gapOpportunityPass)
	check("paper_reuse_efficiency", m.PaperReuseEfficiency >= paperReusePass)
	check("bottleneck_severity", m.BottleneckSeverity >= bottleneckPass)
	check("coverage_saturation", m.CoverageSaturation < coverageSaturationPass)
	check("expected_claim_yield", m.ExpectedClaimYield >= expectedYieldPass)
	check("cost_benefit_ratio", m.CostBenefitRatio >= costBenefitPass)

	criticalBlocker := m.PaperReuseEfficiency < paperReuseCriticalBlocker || m.CoverageSaturation >= coverageSaturationCritical
	if criticalBlocker {
		reasons = append(reasons, "critical blocker active (paper_reuse_efficiency<0.2 or coverage_saturation>=0.85)")
	}

	exceptional := m.GapOpportunityScore >= gapOpportunityExceptional ||
		m.PaperReuseEfficiency >= paperReuseExceptional ||
		m.BottleneckSeverity >= bottleneckExceptional ||
		m.CostBenefitRatio >= costBenefitExceptional
	if exceptional {
		reasons = append(reasons, "an exceptional single-metric threshold was reached")
	}

	trigger := (passCount >= 3 && !criticalBlocker) || exceptional

	return Decision{Metrics: m, Trigger: trigger, Reasons: reasons}
}
