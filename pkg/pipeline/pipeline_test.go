package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/gap"
	"pillarlens/pkg/governor"
	"pillarlens/pkg/judge"
	"pillarlens/pkg/llmgateway"
	"pillarlens/pkg/reviewer"
	"pillarlens/pkg/store"
	"pillarlens/pkg/trigger"
)

type fakeExtractor struct {
	doc chunk.Document
}

func (f fakeExtractor) Extract(path string) (chunk.Document, error) {
	return f.doc, nil
}

type fakeTransport struct {
	responses []string
	costs     []float64
	calls     atomic.Int32
}

func (f *fakeTransport) Execute(ctx context.Context, req llmgateway.Request) ([]byte, float64, error) {
	i := int(f.calls.Add(1)) - 1
	cost := 0.01
	if i < len(f.costs) {
		cost = f.costs[i]
	}
	if i >= len(f.responses) {
		return []byte(`{"claims":[],"verdicts":[]}`), cost, nil
	}
	return []byte(f.responses[i]), cost, nil
}

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
						{"id": "Sub-1.1.1", "title": "Latency bound"}
					]
				}]
			}
		}
	}`), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return cat
}

func triggerConfig() config.TriggerConfig {
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

// newController wires one Controller instance, sharing gw across every
// reviewer/judge collaborator the way a real run would share one Gateway.
func newController(t *testing.T, dir string, gw *llmgateway.Gateway, cat *catalog.Catalog, gapThreshold float64, maxIter int, now func() time.Time) *Controller {
	t.Helper()
	splitter, err := chunk.NewSplitter(100000, 0.1)
	require.NoError(t, err)

	base := reviewer.Base{Catalog: cat, Gateway: gw, ConfidenceThreshold: 0.3}
	extractor := fakeExtractor{doc: chunk.Document{Text: "Paper body text describing a latency bound experiment."}}

	return &Controller{
		Config: config.Config{
			GapAnalysis: config.GapAnalysisConfig{GapThreshold: gapThreshold, RecencyWindowYears: 5},
			Pipeline:    config.PipelineConfig{MaxIterations: maxIter},
		},
		Store:   store.New(filepath.Join(dir, "version_history.json")),
		Catalog: cat,
		Journal: reviewer.Journal{Base: base, Extractor: extractor, Splitter: splitter, PerPaperCap: 10},
		DRA:     reviewer.DRA{Base: base, Extractor: extractor, Splitter: splitter},
		DeepReviewer: reviewer.DeepReviewer{Base: base, Extractor: extractor, Splitter: splitter},
		Judge: judge.Judge{
			Gateway:       gw,
			BatchSize:     1,
			ConsensusBand: config.ConsensusBand{Low: 1.0, High: 1.5},
			Now:           now,
		},
		GapAnalyzer: gap.Analyzer{
			Catalog: config.GapAnalysisConfig{GapThreshold: gapThreshold, RecencyWindowYears: 5},
			Cat:     cat,
			Now:     now,
		},
		Trigger:           trigger.Evaluator{Config: triggerConfig()},
		CheckpointPath:    filepath.Join(dir, "checkpoint.json"),
		CSVPath:           filepath.Join(dir, "claims.csv"),
		GapReportJSONPath: filepath.Join(dir, "gap_report.json"),
		GapReportMDPath:   filepath.Join(dir, "gap_report.md"),
		Now:               now,
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunEmptyCorpusProducesZeroCoverage(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	gw := llmgateway.New(&fakeTransport{}, governor.New(60, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	cp, exitCode, err := c.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, ExitOK, exitCode)
	assert.Equal(t, 0.0, cp.OverallCoverage)
	for _, stage := range []config.StageName{config.StageJournalReview, config.StageJudge, config.StageDRA, config.StageSyncCSV, config.StageGapAnalysis} {
		assert.Equal(t, config.StageStatusCompleted, cp.StageStatus(stage), "stage %s", stage)
	}

	_, err = os.Stat(filepath.Join(dir, "claims.csv"))
	assert.NoError(t, err, "sync_to_csv must still produce a (header-only) file")
}

func TestRunSinglePaperEndToEndApprovesExpectedClaim(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)

	claimText := "System achieves latency under bound"
	claimID := claim.NewID("paper_a.pdf", "Sub-1.1.1", claimText)

	extraction := `{"claims":[{"sub_requirement":"Sub-1.1.1","text":"` + claimText + `","page_numbers":[1],"section":"Results","char_start":0,"char_end":30,"supporting_quote":"quote","context_before":"","context_after":""}]}`
	verdict := fmt.Sprintf(`{"verdicts":[{"claim_id":%q,"strength":4,"rigor":3,"relevance":4,"directness":2,"is_recent":true,"reproducibility":3,"study_type":"experimental","notes":"solid"}]}`, claimID)

	transport := &fakeTransport{responses: []string{extraction, verdict}}
	gw := llmgateway.New(transport, governor.New(60, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	cp, exitCode, err := c.Run(context.Background(), []PaperInput{{ID: "paper_a.pdf", Path: "paper_a.pdf"}})

	require.NoError(t, err)
	assert.Equal(t, ExitOK, exitCode)

	h, err := c.Store.Load()
	require.NoError(t, err)
	require.Len(t, h["paper_a.pdf"], 2, "initial journal-review version plus a judge_update version")
	assert.Equal(t, config.ChangeStatusInitial, h["paper_a.pdf"][0].Changes.Status)
	assert.Equal(t, config.ChangeStatusJudgeUpdate, h["paper_a.pdf"][1].Changes.Status)

	current := store.CurrentClaimsFor(h, "paper_a.pdf")
	require.Len(t, current, 1)
	assert.Equal(t, config.ClaimStatusApproved, current[0].Status)
	assert.InDelta(t, 3.217, current[0].EvidenceQuality.Composite, 0.001)

	assert.Greater(t, cp.OverallCoverage, 0.0)
}

func TestRunAbortsOnBudgetExhaustedMidJudge(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)

	// First judge batch succeeds but reports a cost that blows the budget;
	// the second batch's governor.Acquire then fails before any transport
	// call, per governor.Acquire's pre-check semantics.
	verdictFor := func(paperID string) string {
		id := claim.NewID(paperID, "Sub-1.1.1", "pre-seeded pending claim "+paperID)
		return fmt.Sprintf(`{"verdicts":[{"claim_id":%q,"strength":3,"rigor":3,"relevance":3,"directness":3,"is_recent":false,"reproducibility":3,"study_type":"review","notes":"ok"}]}`, id)
	}
	transport := &fakeTransport{
		responses: []string{verdictFor("paper_a.pdf"), verdictFor("paper_b.pdf")},
		costs:     []float64{100.0, 0.01},
	}
	gw := llmgateway.New(transport, governor.New(60, 50.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)

	// Seed two papers, each already holding one pending claim, so journal
	// review is a no-op (history already non-empty) and judge sees two
	// single-claim batches (BatchSize 1 in newController).
	h := store.History{}
	ca := claim.New("paper_a.pdf", "Sub-1.1.1", 1.0, "pre-seeded pending claim paper_a.pdf", config.ClaimSourceJournalReviewer, claim.Provenance{})
	cb := claim.New("paper_b.pdf", "Sub-1.1.1", 1.0, "pre-seeded pending claim paper_b.pdf", config.ClaimSourceJournalReviewer, claim.Provenance{})
	h = store.ApplyNewClaims(h, []*claim.Claim{ca, cb}, config.ChangeStatusInitial, "seed", now())
	require.NoError(t, c.Store.Save(h))

	cp, exitCode, err := c.Run(context.Background(), []PaperInput{
		{ID: "paper_a.pdf", Path: "paper_a.pdf"},
		{ID: "paper_b.pdf", Path: "paper_b.pdf"},
	})

	require.Error(t, err)
	assert.Equal(t, ExitBudgetExhausted, exitCode)
	assert.Equal(t, config.StageStatusFailed, cp.StageStatus(config.StageJudge))
	assert.Equal(t, ExitBudgetExhausted, cp.Stages[config.StageJudge].ExitCode)
}

func TestRunResumeSkipsCompletedStages(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	transport := &fakeTransport{} // every call would return empty claims/verdicts
	gw := llmgateway.New(transport, governor.New(60, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	c.Config.Pipeline.Resume = true

	stages := config.Sequence()
	cp := NewCheckpoint("prior-run", config.JobTypeFull, "", stages, now())
	for _, s := range []config.StageName{config.StageJournalReview, config.StageJudge, config.StageDRA, config.StageSyncCSV, config.StageGapAnalysis} {
		cp.StartStage(s, now())
		cp.CompleteStage(s, now())
	}
	require.NoError(t, SaveCheckpoint(c.CheckpointPath, cp))

	got, exitCode, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, exitCode)
	assert.Equal(t, "prior-run", got.RunID)
	assert.Equal(t, int32(0), transport.calls.Load(), "resumed run must not re-invoke the LLM for already-completed stages")
}

func TestRunDeepReviewIterationRunsPairsUnderConcurrencyLimit(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	transport := &fakeTransport{} // every call returns empty claims, so fresh stays empty and no judge re-run follows
	gw := llmgateway.New(transport, governor.New(600, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	c.Config.Pipeline.MaxConcurrency = 3

	report := gap.Report{SubRequirements: map[string]gap.SubRequirementGap{
		"Sub-1.1.1": {CompletenessPercent: 10.0},
	}}
	paths := map[string]string{
		"paper_a.pdf": "paper_a.pdf",
		"paper_b.pdf": "paper_b.pdf",
		"paper_c.pdf": "paper_c.pdf",
	}

	h, err := c.runDeepReviewIteration(context.Background(), store.History{}, report, paths)
	require.NoError(t, err)
	assert.Empty(t, h, "no claims survived (every call returned an empty claims array), so history is untouched")
	assert.Equal(t, int32(3), transport.calls.Load(), "one deep-reviewer pass per (sub-requirement, paper) pair")
}

func TestRunStageExecutesOnlyTheNamedStage(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)

	claimText := "System achieves latency under bound"
	claimID := claim.NewID("paper_a.pdf", "Sub-1.1.1", claimText)
	extraction := `{"claims":[{"sub_requirement":"Sub-1.1.1","text":"` + claimText + `","page_numbers":[1],"section":"Results","char_start":0,"char_end":30,"supporting_quote":"quote","context_before":"","context_after":""}]}`
	verdict := fmt.Sprintf(`{"verdicts":[{"claim_id":%q,"strength":4,"rigor":3,"relevance":4,"directness":2,"is_recent":true,"reproducibility":3,"study_type":"experimental","notes":"solid"}]}`, claimID)

	transport := &fakeTransport{responses: []string{extraction, verdict}}
	gw := llmgateway.New(transport, governor.New(60, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	papers := []PaperInput{{ID: "paper_a.pdf", Path: "paper_a.pdf"}}

	cp, exitCode, err := c.RunStage(context.Background(), config.StageJournalReview, papers)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, exitCode)
	assert.Equal(t, config.StageStatusCompleted, cp.StageStatus(config.StageJournalReview))
	assert.Equal(t, config.StageStatusPending, cp.StageStatus(config.StageJudge), "RunStage must not touch any stage besides the one requested")

	h, err := c.Store.Load()
	require.NoError(t, err)
	require.Len(t, h["paper_a.pdf"], 1, "journal review alone leaves the claim pending judge review")
	assert.Equal(t, int32(1), transport.calls.Load(), "only the extraction call should have happened, not the verdict call")
}

func TestRunRejectionThenAppealThenApproval(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)

	originalText := "Latency stays roughly within bound"
	originalID := claim.NewID("paper_a.pdf", "Sub-1.1.1", originalText)
	amendedText := "Latency measured at 42ms, well under the 100ms bound across 1000 trials"
	amendedID := claim.NewID("paper_a.pdf", "Sub-1.1.1", amendedText)

	extraction := `{"claims":[{"sub_requirement":"Sub-1.1.1","text":"` + originalText + `","page_numbers":[1],"section":"Results","char_start":0,"char_end":30,"supporting_quote":"quote","context_before":"","context_after":""}]}`
	// Weak verdict: strength and relevance both below 3, composite well under 3.0 -> rejected.
	rejectVerdict := fmt.Sprintf(`{"verdicts":[{"claim_id":%q,"strength":2,"rigor":2,"relevance":2,"directness":1,"is_recent":false,"reproducibility":1,"study_type":"observational","notes":"too vague, no measured figures"}]}`, originalID)
	// DRA's appeal produces a stronger, more precise claim for the same sub-requirement.
	appeal := `{"claims":[{"sub_requirement":"Sub-1.1.1","text":"` + amendedText + `","page_numbers":[1],"section":"Results","char_start":0,"char_end":60,"supporting_quote":"42ms across 1000 trials","context_before":"","context_after":""}]}`
	// Strong verdict: composite well over 3.0, strength and relevance both >= 3 -> approved.
	approveVerdict := fmt.Sprintf(`{"verdicts":[{"claim_id":%q,"strength":4,"rigor":4,"relevance":4,"directness":3,"is_recent":true,"reproducibility":4,"study_type":"experimental","notes":"precise and well-supported"}]}`, amendedID)

	transport := &fakeTransport{responses: []string{extraction, rejectVerdict, appeal, approveVerdict}}
	gw := llmgateway.New(transport, governor.New(60, 100.0), "")
	now := fixedNow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	c := newController(t, dir, gw, cat, 1.0, 5, now)
	cp, exitCode, err := c.Run(context.Background(), []PaperInput{{ID: "paper_a.pdf", Path: "paper_a.pdf"}})

	require.NoError(t, err)
	assert.Equal(t, ExitOK, exitCode)
	assert.Equal(t, int32(4), transport.calls.Load())

	h, err := c.Store.Load()
	require.NoError(t, err)
	require.Len(t, h["paper_a.pdf"], 4, "initial, judge_update rejecting, dra_appeal, judge_update approving")
	assert.Equal(t, config.ChangeStatusInitial, h["paper_a.pdf"][0].Changes.Status)
	assert.Equal(t, config.ChangeStatusJudgeUpdate, h["paper_a.pdf"][1].Changes.Status)
	assert.Equal(t, config.ChangeStatusDRAAppeal, h["paper_a.pdf"][2].Changes.Status)
	assert.Equal(t, config.ChangeStatusJudgeUpdate, h["paper_a.pdf"][3].Changes.Status)

	current := store.CurrentClaimsFor(h, "paper_a.pdf")
	require.Len(t, current, 2, "latest-wins per claim_id keeps the rejected original first, then the approved amended claim")
	assert.Equal(t, config.ClaimStatusApproved, current[1].Status)
	assert.Equal(t, amendedID, current[1].ClaimID)
	assert.Equal(t, originalID, current[1].PriorRejectionID)

	var original *claim.Claim
	for _, v := range h["paper_a.pdf"] {
		for _, cl := range v.Review.Claims {
			if cl.ClaimID == originalID {
				original = cl
			}
		}
	}
	require.NotNil(t, original, "the original rejected claim remains in history rather than being erased")
	assert.Equal(t, config.ClaimStatusRejected, original.Status)

	assert.Equal(t, config.StageStatusCompleted, cp.StageStatus(config.StageDRA))
}
