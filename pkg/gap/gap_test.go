package gap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pillars": {
			"P1": {
				"id": "P1", "title": "Pillar One",
				"requirements": [{
					"id": "R1", "title": "Requirement One",
					"sub_requirements": [
						{"id": "Sub-1.1.1", "title": "Foundational bound"},
						{"id": "Sub-1.1.2", "title": "Depends on 1.1.1", "depends_on": ["Sub-1.1.1"]}
					]
				}]
			}
		}
	}`), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return cat
}

func approvedClaim(paperID, subReqID, text string, year int, composite float64, studyType string, strength int) *claim.Claim {
	c := claim.New(paperID, subReqID, 1.0, text, config.ClaimSourceJournalReviewer, claim.Provenance{})
	c.Status = config.ClaimStatusApproved
	c.PublicationYear = year
	c.EvidenceQuality = &claim.Quality{
		Strength:  strength,
		Composite: composite,
		StudyType: studyType,
	}
	return c
}

func fixedNow(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) }
}

func TestAnalyzeCompletenessWeightedSumAllFactors(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "claim one", 2024, 4.5, "experimental", 4),
		approvedClaim("paper_b.pdf", "Sub-1.1.1", "claim two", 2023, 4.2, "review", 4),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	g := report.SubRequirements["Sub-1.1.1"]
	assert.Equal(t, 100.0, g.CompletenessPercent, "first claim(35) + second paper(25) + study diversity(20) + high composite(15) + recency(5) = 100")
	assert.Len(t, g.ContributingPapers, 2)
	assert.Equal(t, 2, g.EvidenceCount)
}

func TestAnalyzeCompletenessZeroWithoutApprovedClaims(t *testing.T) {
	cat := testCatalog(t)
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(nil)
	g := report.SubRequirements["Sub-1.1.1"]
	assert.Equal(t, 0.0, g.CompletenessPercent)
	assert.Empty(t, g.ContributingPapers)
	assert.Equal(t, config.ConfidenceLow, g.ConfidenceLevel)
}

func TestAnalyzeBottleneckScoreFiresBelowFortyPercent(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "lone claim", 2015, 2.0, "experimental", 3),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5, FoundationalPillars: []string{"P1"}}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	g := report.SubRequirements["Sub-1.1.1"]
	require.Less(t, g.CompletenessPercent, 40.0)
	// downstream_dependency_count=1 (Sub-1.1.2 depends on it) + foundational_bonus=1
	assert.Equal(t, 2.0, g.BottleneckScore)
}

func TestAnalyzeBottleneckScoreZeroAboveThreshold(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "claim one", 2024, 4.5, "experimental", 4),
		approvedClaim("paper_b.pdf", "Sub-1.1.1", "claim two", 2023, 4.2, "review", 4),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5, FoundationalPillars: []string{"P1"}}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	g := report.SubRequirements["Sub-1.1.1"]
	require.GreaterOrEqual(t, g.CompletenessPercent, 40.0)
	assert.Equal(t, 0.0, g.BottleneckScore)
}

func TestAnalyzeTemporalTrendImprovingAcrossThreeYears(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "claim a", 2021, 2.0, "experimental", 3),
		approvedClaim("paper_b.pdf", "Sub-1.1.1", "claim b", 2023, 3.5, "review", 4),
		approvedClaim("paper_c.pdf", "Sub-1.1.1", "claim c", 2025, 4.8, "theoretical", 5),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	g := report.SubRequirements["Sub-1.1.1"]
	assert.Equal(t, config.TrendImproving, g.Temporal.Trend)
	assert.Equal(t, 2021, g.Temporal.EarliestYear)
	assert.Equal(t, 2025, g.Temporal.LatestYear)
	assert.Equal(t, config.MaturityGrowing, g.Temporal.Maturity, "evidence_count=3 lands in the growing band (2-4)")
}

func TestAnalyzeTemporalTrendStableWithFewerThanThreeYears(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "claim a", 2024, 2.0, "experimental", 3),
		approvedClaim("paper_b.pdf", "Sub-1.1.1", "claim b", 2024, 4.8, "review", 5),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	g := report.SubRequirements["Sub-1.1.1"]
	assert.Equal(t, config.TrendStable, g.Temporal.Trend, "fewer than 3 distinct publication years never computes a slope")
}

func TestAnalyzePillarAndOverallAggregates(t *testing.T) {
	cat := testCatalog(t)
	claims := []*claim.Claim{
		approvedClaim("paper_a.pdf", "Sub-1.1.1", "claim a", 2024, 4.5, "experimental", 4),
		approvedClaim("paper_b.pdf", "Sub-1.1.1", "claim b", 2023, 4.2, "review", 4),
	}
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}

	report := a.Analyze(claims)
	p1 := report.Pillars["P1"]
	assert.Equal(t, 2, p1.SubRequirementCount)
	// Sub-1.1.1=100, Sub-1.1.2=0 -> avg 50
	assert.Equal(t, 50.0, p1.AvgCompletenessPercent)
	assert.Equal(t, 50.0, report.OverallCompletenessPercent)
}

func TestWriteJSONAndMarkdownProduceFiles(t *testing.T) {
	cat := testCatalog(t)
	a := Analyzer{Catalog: config.GapAnalysisConfig{RecencyWindowYears: 5}, Cat: cat, Now: fixedNow(2026)}
	report := a.Analyze(nil)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "gap_report.json")
	mdPath := filepath.Join(dir, "gap_report.md")

	require.NoError(t, WriteJSON(jsonPath, report))
	require.NoError(t, WriteMarkdown(mdPath, report))

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sub_requirements")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Gap Report")
}
