// Package pipeline implements the Pipeline Controller (C11, spec.md §5,
// §4.8): the single-writer orchestrator that runs the stage sequence over
// the Version Store, checkpoints progress after every stage boundary, and
// loops the Trigger Evaluator / Deep Reviewer / Judge / Gap Analysis cycle
// until convergence or the iteration cap. Its stage-sequencing loop is
// modeled on the teacher's IteratingController: a bounded iteration count,
// a per-iteration deadline, and an early-exit convergence check.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/csvexport"
	"pillarlens/pkg/gap"
	"pillarlens/pkg/governor"
	"pillarlens/pkg/judge"
	"pillarlens/pkg/retention"
	"pillarlens/pkg/reviewer"
	"pillarlens/pkg/store"
	"pillarlens/pkg/trigger"
)

// Exit codes per spec.md §6's process surface.
const (
	ExitOK               = 0
	ExitStageFailed      = 3
	ExitBudgetExhausted  = 4
	ExitInterrupted      = 130
)

// ErrInterrupted signals cooperative cancellation reached a safe checkpoint
// boundary (spec.md §5 Cancellation).
var ErrInterrupted = errors.New("pipeline: interrupted")

// PaperInput names one paper the run should consider: its Version Store key
// and its on-disk path for reviewers that re-read the source document.
type PaperInput struct {
	ID   string
	Path string
}

// optionalStages never abort a run on failure; they're logged and skipped
// (spec.md §4.8: the Deep-Reviewer convergence loop, including DRA, is
// optional — a full run without new evidence to find still succeeds).
var optionalStages = map[config.StageName]bool{
	config.StageDRA:        true,
	config.StageTrigger:    true,
	config.StageDeepReview: true,
}

// Controller owns every collaborator a run needs and drives them through
// the stage sequence.
type Controller struct {
	Config   config.Config
	Store    *store.Store
	Catalog  *catalog.Catalog
	Governor *governor.Governor

	Journal      reviewer.Journal
	DRA          reviewer.DRA
	DeepReviewer reviewer.DeepReviewer
	Judge        judge.Judge
	GapAnalyzer  gap.Analyzer
	Trigger      trigger.Evaluator

	// Retention, if non-nil, runs a cache/checkpoint prune pass at startup
	// and on a ticker for the duration of Run (SPEC_FULL.md supplement #2).
	Retention *retention.Service

	CheckpointPath     string
	CSVPath            string
	GapReportJSONPath  string
	GapReportMDPath    string

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run drives one full convergence run (or resumes one) over papers,
// returning the final checkpoint and the process exit code spec.md §6
// assigns to the outcome.
func (c *Controller) Run(ctx context.Context, papers []PaperInput) (*Checkpoint, int, error) {
	if c.Retention != nil {
		c.Retention.Start(ctx)
		defer c.Retention.Stop()
	}

	cp, err := c.startOrResumeCheckpoint()
	if err != nil {
		return nil, ExitStageFailed, err
	}

	h, err := c.Store.Load()
	if err != nil {
		return cp, ExitStageFailed, err
	}

	byID := make(map[string]string, len(papers))
	var paperIDs []string
	for _, p := range papers {
		byID[p.ID] = p.Path
		paperIDs = append(paperIDs, p.ID)
	}
	sort.Strings(paperIDs)

	stages := []struct {
		name config.StageName
		run  func() error
	}{
		{config.StageJournalReview, func() error { h, err = c.runJournalReview(ctx, h, papers); return err }},
		{config.StageJudge, func() error { h, err = c.runJudge(ctx, h); return err }},
		{config.StageDRA, func() error { h, err = c.runDRA(ctx, h, byID); return err }},
		{config.StageSyncCSV, func() error { return csvexport.Export(h, c.CSVPath) }},
		{config.StageGapAnalysis, func() error { return c.runGapAnalysis(h) }},
	}

	for _, stage := range stages {
		if cp.StageStatus(stage.name) == config.StageStatusCompleted {
			continue // already done in a prior interrupted run (spec.md §4.8 --resume)
		}
		exitCode, stageErr := c.runStage(ctx, cp, stage.name, stage.run)
		if stageErr != nil {
			if err := SaveCheckpoint(c.CheckpointPath, cp); err != nil {
				slog.Error("pipeline: failed to persist checkpoint after stage failure", "error", err)
			}
			return cp, exitCode, stageErr
		}
		if err := SaveCheckpoint(c.CheckpointPath, cp); err != nil {
			return cp, ExitStageFailed, err
		}
	}

	exitCode, err := c.convergenceLoop(ctx, cp, h, byID, paperIDs)
	if err != nil {
		return cp, exitCode, err
	}

	if err := SaveCheckpoint(c.CheckpointPath, cp); err != nil {
		return cp, ExitStageFailed, err
	}
	return cp, ExitOK, nil
}

// RunStage executes exactly one named stage in isolation (spec.md §6's
// "run an individual stage" process surface) rather than the full sequence
// Run drives. It reads/writes the same Version Store and checkpoint a full
// run would, so a sequence of individual `stage` invocations and one `run`
// invocation leave equivalent state.
func (c *Controller) RunStage(ctx context.Context, name config.StageName, papers []PaperInput) (*Checkpoint, int, error) {
	cp, err := c.startOrResumeCheckpoint()
	if err != nil {
		return nil, ExitStageFailed, err
	}

	h, err := c.Store.Load()
	if err != nil {
		return cp, ExitStageFailed, err
	}

	byID := make(map[string]string, len(papers))
	var paperIDs []string
	for _, p := range papers {
		byID[p.ID] = p.Path
		paperIDs = append(paperIDs, p.ID)
	}
	sort.Strings(paperIDs)

	var run func() error
	switch name {
	case config.StageJournalReview:
		run = func() error { h, err = c.runJournalReview(ctx, h, papers); return err }
	case config.StageJudge:
		run = func() error { h, err = c.runJudge(ctx, h); return err }
	case config.StageDRA:
		run = func() error { h, err = c.runDRA(ctx, h, byID); return err }
	case config.StageSyncCSV:
		run = func() error { return csvexport.Export(h, c.CSVPath) }
	case config.StageGapAnalysis:
		run = func() error { return c.runGapAnalysis(h) }
	case config.StageTrigger:
		run = func() error {
			report := c.latestGapReport(h)
			var all []*claim.Claim
			for paperID := range h {
				all = append(all, store.CurrentClaimsFor(h, paperID)...)
			}
			decision := c.Trigger.Evaluate(report, all, paperIDs)
			slog.Info("pipeline: trigger evaluation", "trigger", decision.Trigger, "reasons", decision.Reasons)
			return nil
		}
	case config.StageDeepReview:
		run = func() error {
			report := c.latestGapReport(h)
			next, deepErr := c.runDeepReviewIteration(ctx, h, report, byID)
			if deepErr != nil {
				return deepErr
			}
			h = next
			return nil
		}
	default:
		return cp, ExitStageFailed, fmt.Errorf("pipeline: unknown stage %q", name)
	}

	exitCode, stageErr := c.runStage(ctx, cp, name, run)
	if saveErr := SaveCheckpoint(c.CheckpointPath, cp); saveErr != nil {
		slog.Error("pipeline: failed to persist checkpoint after single-stage run", "error", saveErr)
	}
	return cp, exitCode, stageErr
}

// runStage wraps one stage's execution with checkpointing, cancellation,
// and the required/optional failure policy (spec.md §7 error taxonomy).
func (c *Controller) runStage(ctx context.Context, cp *Checkpoint, name config.StageName, fn func() error) (int, error) {
	if ctx.Err() != nil {
		cp.FailStage(name, ExitInterrupted, ErrInterrupted, c.now())
		return ExitInterrupted, ErrInterrupted
	}

	cp.StartStage(name, c.now())
	err := fn()
	at := c.now()

	if err == nil {
		cp.CompleteStage(name, at)
		return ExitOK, nil
	}

	if errors.Is(err, governor.ErrBudgetExhausted) {
		cp.FailStage(name, ExitBudgetExhausted, err, at)
		slog.Error("pipeline: budget exhausted, aborting run", "stage", name)
		return ExitBudgetExhausted, err
	}

	if ctx.Err() != nil {
		cp.FailStage(name, ExitInterrupted, ErrInterrupted, at)
		return ExitInterrupted, ErrInterrupted
	}

	cp.FailStage(name, ExitStageFailed, err, at)
	if optionalStages[name] {
		slog.Error("pipeline: optional stage failed, continuing", "stage", name, "error", err)
		return ExitOK, nil
	}
	slog.Error("pipeline: required stage failed, halting run", "stage", name, "error", err)
	return ExitStageFailed, fmt.Errorf("pipeline: stage %s: %w", name, err)
}

func (c *Controller) startOrResumeCheckpoint() (*Checkpoint, error) {
	if c.Config.Pipeline.Resume || c.Config.Pipeline.ResumeFromCheckpoint != "" {
		path := c.CheckpointPath
		if c.Config.Pipeline.ResumeFromCheckpoint != "" {
			path = c.Config.Pipeline.ResumeFromCheckpoint
		}
		cp, err := LoadCheckpoint(path)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resuming from %s: %w", path, err)
		}
		slog.Info("pipeline: resuming run", "run_id", cp.RunID, "from_checkpoint", path)
		return cp, nil
	}

	runID := uuid.NewString()
	cp := NewCheckpoint(runID, config.JobTypeFull, "", config.Sequence(), c.now())
	slog.Info("pipeline: starting new run", "run_id", runID)
	return cp, nil
}

func (c *Controller) runJournalReview(ctx context.Context, h store.History, papers []PaperInput) (store.History, error) {
	var extracted []*claim.Claim
	for _, p := range papers {
		if len(h[p.ID]) > 0 {
			continue // already ingested in a prior run
		}
		if ctx.Err() != nil {
			return h, ErrInterrupted
		}
		claims, err := c.Journal.Review(ctx, p.ID, p.Path)
		if err != nil {
			return h, fmt.Errorf("journal review of %s: %w", p.ID, err)
		}
		extracted = append(extracted, claims...)
	}
	if len(extracted) == 0 {
		return h, nil
	}
	return store.ApplyNewClaims(h, extracted, config.ChangeStatusInitial, "journal review", c.now()), nil
}

func (c *Controller) runJudge(ctx context.Context, h store.History) (store.History, error) {
	pending := store.ExtractPending(h)
	if len(pending) == 0 {
		return h, nil
	}
	outcome := c.Judge.Run(ctx, pending)
	next := h
	if len(outcome.Judged) > 0 {
		next = store.ApplyJudgeUpdates(h, outcome.Judged, "judge pass", c.now())
	}
	if outcome.BudgetExhausted {
		return next, governor.ErrBudgetExhausted
	}
	return next, nil
}

func (c *Controller) runDRA(ctx context.Context, h store.History, paths map[string]string) (store.History, error) {
	var appealed []*claim.Claim
	for paperID, path := range paths {
		var rejected []*claim.Claim
		for _, cl := range store.CurrentClaimsFor(h, paperID) {
			if cl.Status == config.ClaimStatusRejected && cl.PriorRejectionID == "" {
				rejected = append(rejected, cl)
			}
		}
		if len(rejected) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return h, ErrInterrupted
		}
		amended, err := c.DRA.ReviewRejected(ctx, paperID, path, rejected)
		if err != nil {
			return h, fmt.Errorf("dra appeal for %s: %w", paperID, err)
		}
		appealed = append(appealed, amended...)
	}
	if len(appealed) == 0 {
		return h, nil
	}
	h = store.ApplyNewClaims(h, appealed, config.ChangeStatusDRAAppeal, "dra appeal", c.now())
	return c.runJudge(ctx, h)
}

func (c *Controller) runGapAnalysis(h store.History) error {
	var all []*claim.Claim
	for paperID := range h {
		all = append(all, store.CurrentClaimsFor(h, paperID)...)
	}
	report := c.GapAnalyzer.Analyze(all)
	if err := gap.WriteJSON(c.GapReportJSONPath, report); err != nil {
		return fmt.Errorf("writing gap report json: %w", err)
	}
	if err := gap.WriteMarkdown(c.GapReportMDPath, report); err != nil {
		return fmt.Errorf("writing gap report markdown: %w", err)
	}
	return nil
}

func (c *Controller) latestGapReport(h store.History) gap.Report {
	var all []*claim.Claim
	for paperID := range h {
		all = append(all, store.CurrentClaimsFor(h, paperID)...)
	}
	return c.GapAnalyzer.Analyze(all)
}

// gapPaperPair names one (sub-requirement, paper) combination a Deep-Reviewer
// pass should cover.
type gapPaperPair struct {
	subReqID  string
	statement string
	paperID   string
	path      string
}

// runDeepReviewIteration spends one Deep-Reviewer pass over every
// (sub-requirement, paper) gap pair report still names below
// deepReviewGapCeiling, then re-judges whatever new claims surfaced.
// Shared by convergenceLoop (the normal in-run path) and RunStage (the
// single-stage CLI entrypoint, spec.md §6 "run an individual stage").
func (c *Controller) runDeepReviewIteration(ctx context.Context, h store.History, report gap.Report, paths map[string]string) (store.History, error) {
	var pairs []gapPaperPair
	for subReqID, g := range report.SubRequirements {
		if g.CompletenessPercent >= deepReviewGapCeiling {
			continue
		}
		contributing := make(map[string]bool, len(g.ContributingPapers))
		for _, contrib := range g.ContributingPapers {
			contributing[contrib.PaperID] = true
		}
		sr, _ := c.Catalog.SubRequirementByID(subReqID)
		statement := fmt.Sprintf("%s is at %.1f%% completeness", sr.Title, g.CompletenessPercent)

		for paperID, path := range paths {
			if contributing[paperID] {
				continue
			}
			pairs = append(pairs, gapPaperPair{subReqID: subReqID, statement: statement, paperID: paperID, path: path})
		}
	}

	if ctx.Err() != nil {
		return h, ErrInterrupted
	}

	// Pairs only read h (existing claims per paper); the Version Store
	// itself is updated once, below, after every pair has reported in.
	limit := c.Config.Pipeline.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	var (
		mu    sync.Mutex
		fresh []*claim.Claim
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, p := range pairs {
		p := p
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return ErrInterrupted
			}
			existing := store.CurrentClaimsFor(h, p.paperID)
			claims, err := c.DeepReviewer.ReviewGapPair(egCtx, p.paperID, p.path, p.subReqID, p.statement, existing)
			if err != nil {
				slog.Error("pipeline: deep reviewer pass failed, skipping pair", "paper_id", p.paperID, "sub_requirement_id", p.subReqID, "error", err)
				return nil
			}
			mu.Lock()
			fresh = append(fresh, claims...)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return h, err
	}

	if len(fresh) == 0 {
		return h, nil
	}
	h = store.ApplyNewClaims(h, fresh, config.ChangeStatusDeepReviewUpdate, "deep review", c.now())
	return c.runJudge(ctx, h)
}

// deepReviewGapCeiling is the completeness percentage below which a
// sub-requirement is still "a gap" worth spending a Deep-Reviewer pass on
// (mirrors pkg/trigger's yieldGapCeiling — both read the same Gap Report
// field).
const deepReviewGapCeiling = 80.0

// convergenceLoop runs trigger_evaluator → deep_review → judge →
// gap_analysis repeatedly until overall_coverage clears the configured
// threshold, the Trigger Evaluator says stop, or max_iterations is reached
// (spec.md §4.8 item 3, §8 convergence property).
func (c *Controller) convergenceLoop(ctx context.Context, cp *Checkpoint, h store.History, paths map[string]string, paperIDs []string) (int, error) {
	maxIter := c.Config.Pipeline.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	for cp.IterationCount < maxIter {
		if ctx.Err() != nil {
			cp.FailStage(config.StageTrigger, ExitInterrupted, ErrInterrupted, c.now())
			return ExitInterrupted, ErrInterrupted
		}

		report := c.latestGapReport(h)
		overallCoverage := report.OverallCompletenessPercent / 100.0
		if overallCoverage >= 1-c.Config.GapAnalysis.GapThreshold {
			slog.Info("pipeline: converged on coverage threshold", "overall_coverage", overallCoverage)
			break
		}

		var all []*claim.Claim
		for paperID := range h {
			all = append(all, store.CurrentClaimsFor(h, paperID)...)
		}
		decision := c.Trigger.Evaluate(report, all, paperIDs)
		if !decision.Trigger {
			slog.Info("pipeline: trigger evaluator declined another iteration", "reasons", decision.Reasons)
			break
		}

		cp.StartStage(config.StageDeepReview, c.now())
		next, deepErr := c.runDeepReviewIteration(ctx, h, report, paths)
		if deepErr != nil {
			if errors.Is(deepErr, ErrInterrupted) {
				cp.FailStage(config.StageDeepReview, ExitInterrupted, ErrInterrupted, c.now())
				return ExitInterrupted, ErrInterrupted
			}
			cp.FailStage(config.StageDeepReview, ExitBudgetExhausted, deepErr, c.now())
			return ExitBudgetExhausted, deepErr
		}
		h = next
		cp.CompleteStage(config.StageDeepReview, c.now())

		if err := c.runGapAnalysis(h); err != nil {
			return ExitStageFailed, err
		}
		if err := csvexport.Export(h, c.CSVPath); err != nil {
			return ExitStageFailed, err
		}

		cp.IterationCount++
		if err := SaveCheckpoint(c.CheckpointPath, cp); err != nil {
			return ExitStageFailed, err
		}
	}

	finalReport := c.latestGapReport(h)
	cp.OverallCoverage = finalReport.OverallCompletenessPercent / 100.0
	cp.CoverageByPillar = make(map[string]float64, len(finalReport.Pillars))
	for id, agg := range finalReport.Pillars {
		cp.CoverageByPillar[id] = agg.AvgCompletenessPercent / 100.0
	}
	return ExitOK, nil
}
