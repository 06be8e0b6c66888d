// Package gap implements the Gap Analyzer (C8, spec.md §4.6): a purely
// deterministic pass over the current claim set and the pillar catalog that
// scores each sub-requirement's completeness, flags bottlenecks, and tracks
// evidence maturity over time.
package gap

import (
	"sort"
	"time"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

// ContributingPaper is one paper's contribution to a sub-requirement's
// evidence base.
type ContributingPaper struct {
	PaperID  string   `json:"paper_id"`
	ClaimIDs []string `json:"claim_ids"`
}

// Temporal summarizes a sub-requirement's evidence over publication year.
type Temporal struct {
	EarliestYear int                   `json:"earliest_year,omitempty"`
	LatestYear   int                   `json:"latest_year,omitempty"`
	Trend        config.TrendDirection `json:"trend"`
	Maturity     config.MaturityLevel  `json:"maturity"`
}

// SubRequirementGap is the Gap Report entry for a single sub-requirement
// (spec.md §3 Gap Report).
type SubRequirementGap struct {
	SubRequirementID    string                 `json:"sub_requirement_id"`
	PillarID            string                 `json:"pillar_id"`
	RequirementID       string                 `json:"requirement_id"`
	CompletenessPercent float64                `json:"completeness_percent"`
	ContributingPapers  []ContributingPaper    `json:"contributing_papers"`
	EvidenceCount       int                    `json:"evidence_count"`
	AvgQuality          float64                `json:"avg_quality"`
	ConfidenceLevel     config.ConfidenceLevel `json:"confidence_level"`
	Temporal            Temporal               `json:"temporal"`
	BottleneckScore     float64                `json:"bottleneck_score"`
}

// PillarAggregate rolls up completeness across a pillar's sub-requirements.
type PillarAggregate struct {
	PillarID                   string  `json:"pillar_id"`
	AvgCompletenessPercent     float64 `json:"avg_completeness_percent"`
	SubRequirementCount        int     `json:"sub_requirement_count"`
}

// Report is the full Gap Report: per-sub-requirement detail plus pillar and
// global aggregates (spec.md §3, §4.6 item 5).
type Report struct {
	GeneratedAt                time.Time                     `json:"generated_at"`
	SubRequirements            map[string]SubRequirementGap  `json:"sub_requirements"`
	Pillars                    map[string]PillarAggregate    `json:"pillars"`
	OverallCompletenessPercent float64                       `json:"overall_completeness_percent"`
}

// Analyzer computes Gap Reports from a catalog and a claim set.
type Analyzer struct {
	Catalog config.GapAnalysisConfig
	Cat     *catalog.Catalog
	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// Analyze runs the Gap Analyzer over claims (the current, latest-wins claim
// set across all papers — store.CurrentClaimsFor per paper, concatenated).
// It never fails: spec.md §4.6 "Failure semantics: none — purely
// deterministic from inputs."
func (a Analyzer) Analyze(claims []*claim.Claim) Report {
	now := a.Now
	if now == nil {
		now = time.Now
	}
	currentYear := now().Year()

	byReq := make(map[string][]*claim.Claim)
	for _, c := range claims {
		byReq[c.SubRequirementID] = append(byReq[c.SubRequirementID], c)
	}

	// reverse-dependency index: subReqID -> count of sub-requirements that
	// declare a dependency on it (downstream_dependency_count).
	downstream := make(map[string]int)
	for _, sr := range a.Cat.ListSubRequirements() {
		for _, dep := range sr.DependsOn {
			downstream[dep]++
		}
	}

	report := Report{
		GeneratedAt:     now(),
		SubRequirements: make(map[string]SubRequirementGap),
		Pillars:         make(map[string]PillarAggregate),
	}

	pillarSums := make(map[string]float64)
	pillarCounts := make(map[string]int)

	for _, sr := range a.Cat.ListSubRequirements() {
		g := a.analyzeOne(sr, byReq[sr.ID], downstream[sr.ID], currentYear)
		report.SubRequirements[sr.ID] = g
		pillarSums[sr.PillarOf()] += g.CompletenessPercent
		pillarCounts[sr.PillarOf()]++
	}

	var overallSum float64
	var overallCount int
	for pillarID, sum := range pillarSums {
		count := pillarCounts[pillarID]
		avg := sum / float64(count)
		report.Pillars[pillarID] = PillarAggregate{
			PillarID:               pillarID,
			AvgCompletenessPercent: avg,
			SubRequirementCount:    count,
		}
		overallSum += sum
		overallCount += count
	}
	if overallCount > 0 {
		report.OverallCompletenessPercent = overallSum / float64(overallCount)
	}

	return report
}

func (a Analyzer) analyzeOne(sr catalog.SubRequirement, claims []*claim.Claim, downstreamCount, currentYear int) SubRequirementGap {
	approved := make([]*claim.Claim, 0, len(claims))
	for _, c := range claims {
		if c.Status == config.ClaimStatusApproved {
			approved = append(approved, c)
		}
	}

	completeness := a.completenessPercent(approved, currentYear)
	contributing := contributingPapers(approved)
	avgQuality := avgComposite(approved)
	confidence := confidenceLevel(completeness, len(contributing))
	temporal := temporalAnalysis(approved)
	bottleneck := bottleneckScore(completeness, downstreamCount, sr.PillarOf(), a.Catalog.FoundationalPillars)

	return SubRequirementGap{
		SubRequirementID:    sr.ID,
		PillarID:            sr.PillarOf(),
		RequirementID:       sr.RequirementOf(),
		CompletenessPercent: completeness,
		ContributingPapers:  contributing,
		EvidenceCount:       len(approved),
		AvgQuality:          avgQuality,
		ConfidenceLevel:     confidence,
		Temporal:            temporal,
		BottleneckScore:     bottleneck,
	}
}

// completenessPercent implements spec.md §4.6 item 2's weighted sum.
func (a Analyzer) completenessPercent(approved []*claim.Claim, currentYear int) float64 {
	if len(approved) == 0 {
		return 0
	}

	var total float64 = 35 // first approved claim (len>0 already established)

	papers := make(map[string]bool)
	studyTypes := make(map[string]bool)
	hasHighComposite := false
	hasRecent := false

	for _, c := range approved {
		papers[c.PaperID] = true
		if c.EvidenceQuality != nil {
			st := normalizeStudyType(c.EvidenceQuality.StudyType)
			if st != "" {
				studyTypes[st] = true
			}
			if c.EvidenceQuality.Composite >= 4.0 {
				hasHighComposite = true
			}
		}
		if c.PublicationYear > 0 && currentYear-c.PublicationYear <= a.Catalog.RecencyWindowYears {
			hasRecent = true
		}
	}

	if len(papers) >= 2 {
		total += 25
	}
	if len(studyTypes) >= 2 {
		total += 20
	}
	if hasHighComposite {
		total += 15
	}
	if hasRecent {
		total += 5
	}

	if total > 100 {
		total = 100
	}
	return total
}

func normalizeStudyType(st string) string {
	switch st {
	case "experimental", "review", "theoretical":
		return st
	default:
		return ""
	}
}

func contributingPapers(approved []*claim.Claim) []ContributingPaper {
	byPaper := make(map[string][]string)
	var order []string
	for _, c := range approved {
		if _, seen := byPaper[c.PaperID]; !seen {
			order = append(order, c.PaperID)
		}
		byPaper[c.PaperID] = append(byPaper[c.PaperID], c.ClaimID)
	}
	sort.Strings(order)

	out := make([]ContributingPaper, 0, len(order))
	for _, paperID := range order {
		claimIDs := byPaper[paperID]
		sort.Strings(claimIDs)
		out = append(out, ContributingPaper{PaperID: paperID, ClaimIDs: claimIDs})
	}
	return out
}

func avgComposite(approved []*claim.Claim) float64 {
	if len(approved) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, c := range approved {
		if c.EvidenceQuality != nil {
			sum += c.EvidenceQuality.Composite
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// confidenceLevel is a coarse read on how much the gap report should be
// trusted for this sub-requirement: more independent contributing papers and
// higher completeness both raise it.
func confidenceLevel(completeness float64, contributingPaperCount int) config.ConfidenceLevel {
	switch {
	case completeness >= 70 && contributingPaperCount >= 2:
		return config.ConfidenceHigh
	case completeness >= 40 || contributingPaperCount >= 2:
		return config.ConfidenceMedium
	default:
		return config.ConfidenceLow
	}
}

// bottleneckScore implements spec.md §4.6 item 3.
func bottleneckScore(completeness float64, downstreamCount int, pillarID string, foundationalPillars []string) float64 {
	if completeness >= 40 {
		return 0
	}
	bonus := 0
	for _, p := range foundationalPillars {
		if p == pillarID {
			bonus = 1
			break
		}
	}
	return float64(downstreamCount + bonus)
}

// temporalAnalysis implements spec.md §4.6 item 4: a least-squares slope of
// composite score over publication year, when the approved claims span at
// least 3 distinct publication years.
func temporalAnalysis(approved []*claim.Claim) Temporal {
	years := make(map[int]bool)
	var xs, ys []float64
	earliest, latest := 0, 0

	for _, c := range approved {
		if c.PublicationYear <= 0 || c.EvidenceQuality == nil {
			continue
		}
		years[c.PublicationYear] = true
		xs = append(xs, float64(c.PublicationYear))
		ys = append(ys, c.EvidenceQuality.Composite)
		if earliest == 0 || c.PublicationYear < earliest {
			earliest = c.PublicationYear
		}
		if c.PublicationYear > latest {
			latest = c.PublicationYear
		}
	}

	t := Temporal{
		EarliestYear: earliest,
		LatestYear:   latest,
		Trend:        config.TrendStable,
		Maturity:     maturity(len(approved)),
	}

	// Distinct contributing years, not claim count, is what spec.md §4.6
	// item 4 means by "papers" here: a trend needs spread across time.
	if len(years) >= 3 {
		slope := leastSquaresSlope(xs, ys)
		switch {
		case slope > 0.05:
			t.Trend = config.TrendImproving
		case slope < -0.05:
			t.Trend = config.TrendDeclining
		default:
			t.Trend = config.TrendStable
		}
	}

	return t
}

func maturity(evidenceCount int) config.MaturityLevel {
	switch {
	case evidenceCount >= 5:
		return config.MaturityEstablished
	case evidenceCount >= 2:
		return config.MaturityGrowing
	default:
		return config.MaturityNascent
	}
}

// leastSquaresSlope fits y = a + b*x by ordinary least squares and returns b.
func leastSquaresSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
