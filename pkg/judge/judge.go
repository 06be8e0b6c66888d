// Package judge implements the Judge (C6, spec.md §4.5.2): batched
// multi-dimensional evaluation of pending claims, composite scoring
// (delegated to pkg/claim), and consensus review for borderline verdicts.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/governor"
	"pillarlens/pkg/llmgateway"
	"pillarlens/pkg/store"
)

var verdictSchema = []byte(`{
	"type": "object",
	"properties": {
		"verdicts": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"claim_id": {"type": "string"},
					"strength": {"type": "integer"},
					"rigor": {"type": "integer"},
					"relevance": {"type": "integer"},
					"directness": {"type": "integer"},
					"is_recent": {"type": "boolean"},
					"reproducibility": {"type": "integer"},
					"study_type": {"type": "string"},
					"notes": {"type": "string"}
				},
				"required": ["claim_id", "strength", "rigor", "relevance", "directness", "is_recent", "reproducibility"]
			}
		}
	},
	"required": ["verdicts"]
}`)

type verdict struct {
	ClaimID         string `json:"claim_id"`
	Strength        int    `json:"strength"`
	Rigor           int    `json:"rigor"`
	Relevance       int    `json:"relevance"`
	Directness      int    `json:"directness"`
	IsRecent        bool   `json:"is_recent"`
	Reproducibility int    `json:"reproducibility"`
	StudyType       string `json:"study_type"`
	Notes           string `json:"notes"`
}

type verdictResponse struct {
	Verdicts []verdict `json:"verdicts"`
}

// Judge is C6's collaborator handle: batches pending claims, scores each,
// and escalates borderline ones to consensus review.
type Judge struct {
	Gateway           *llmgateway.Gateway
	BatchSize         int
	ConsensusBand     config.ConsensusBand
	ConsensusStrategy config.ConsensusStrategy
	// MaxConcurrency bounds how many batches judgeBatchWithRetry runs at
	// once (spec.md §5: concurrency is configurable, default sequential).
	// <= 1 runs batches one at a time, in order.
	MaxConcurrency int
	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// Outcome is the result of a judging pass: the claims actually judged
// (ready for store.ApplyJudgeUpdates) and whether the Governor's budget was
// exhausted mid-stage.
type Outcome struct {
	Judged          []*claim.Claim
	BudgetExhausted bool
}

// Run processes pending in batches of BatchSize (default 10), up to
// MaxConcurrency batches at once (default 1, i.e. sequential). A per-batch
// LLM failure retries the whole batch once; a second failure skips the
// batch — its claims remain pending_judge_review and the Version Store is
// left untouched for them — and logs a fatal condition (spec.md §4.5.2). A
// budget_exhausted failure aborts the stage: in-flight batches finish, no
// new ones start, and Outcome.BudgetExhausted is set (spec.md §7 Budget,
// scenario 4).
func (j Judge) Run(ctx context.Context, pending []store.PendingClaim) Outcome {
	now := j.Now
	if now == nil {
		now = time.Now
	}

	batchSize := j.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	limit := j.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}

	var batchStarts []int
	var batches [][]store.PendingClaim
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batchStarts = append(batchStarts, start)
		batches = append(batches, pending[start:end])
	}

	var (
		mu  sync.Mutex
		out Outcome
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, batch := range batches {
		start, batch := batchStarts[i], batch
		g.Go(func() error {
			verdicts, err := j.judgeBatchWithRetry(gCtx, batch)
			if err != nil {
				if errors.Is(err, governor.ErrBudgetExhausted) {
					mu.Lock()
					out.BudgetExhausted = true
					mu.Unlock()
					slog.Error("judge: budget exhausted mid-batch, aborting stage", "batch_start", start)
					return err
				}
				slog.Error("judge: batch failed twice, skipping (claims remain pending)", "batch_start", start, "error", err)
				return nil
			}

			byID := make(map[string]verdict, len(verdicts))
			for _, v := range verdicts {
				byID[v.ClaimID] = v
			}

			var judged []*claim.Claim
			for _, pc := range batch {
				v, ok := byID[pc.Claim.ClaimID]
				if !ok {
					continue // LLM omitted this claim from its response; leave it pending
				}
				pc.Claim.ApplyVerdict(claim.Quality{
					Strength:        v.Strength,
					Rigor:           v.Rigor,
					Relevance:       v.Relevance,
					Directness:      v.Directness,
					IsRecent:        v.IsRecent,
					Reproducibility: v.Reproducibility,
					StudyType:       v.StudyType,
				}, v.Notes, now())

				if pc.Claim.IsBorderline(j.ConsensusBand) {
					if err := j.consensusReview(gCtx, pc.Claim); err != nil {
						slog.Error("judge: consensus review failed, keeping single verdict", "claim_id", pc.Claim.ClaimID, "error", err)
					}
				}
				judged = append(judged, pc.Claim)
			}

			mu.Lock()
			out.Judged = append(out.Judged, judged...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // budget exhaustion is already captured on out; other batch errors are logged and swallowed above
	return out
}

func (j Judge) judgeBatchWithRetry(ctx context.Context, batch []store.PendingClaim) ([]verdict, error) {
	verdicts, err := j.judgeBatch(ctx, batch, evaluationPrompt)
	if err == nil {
		return verdicts, nil
	}
	if errors.Is(err, governor.ErrBudgetExhausted) {
		return nil, err
	}
	return j.judgeBatch(ctx, batch, evaluationPrompt)
}

func (j Judge) judgeBatch(ctx context.Context, batch []store.PendingClaim, promptFn func([]store.PendingClaim) string) ([]verdict, error) {
	req := llmgateway.Request{
		SystemContext: "You are the Judge: evaluate each claim on six dimensions and return one verdict object per claim_id. Respond only with JSON matching the declared schema.",
		UserContent:   promptFn(batch),
		Schema:        verdictSchema,
		Label:         "judge:batch",
	}
	resp, err := llmgateway.Call[verdictResponse](ctx, j.Gateway, req)
	if err != nil {
		return nil, err
	}
	return resp.Verdicts, nil
}

// consensusReview re-invokes the LLM with a differently framed, skeptical
// prompt for a single borderline claim (spec.md §4.5.2). single_reeval asks
// once more (two total verdicts); multi_vote_3 asks twice more (three
// total). Unanimous votes keep the original verdict; disagreement holds the
// claim in ClaimStatusBorderline with consensus metadata, awaiting a third
// evaluation or human arbitration.
func (j Judge) consensusReview(ctx context.Context, c *claim.Claim) error {
	votes := []bool{c.Status == config.ClaimStatusApproved}
	composites := []float64{c.EvidenceQuality.Composite}

	rounds := 1
	if j.ConsensusStrategy == config.ConsensusMultiVote3 {
		rounds = 2
	}

	single := []store.PendingClaim{{PaperID: c.PaperID, Claim: c}}
	for i := 0; i < rounds; i++ {
		verdicts, err := j.judgeBatch(ctx, single, reframedPrompt)
		if err != nil {
			return err
		}
		if len(verdicts) == 0 {
			return fmt.Errorf("judge: consensus re-evaluation returned no verdict for %s", c.ClaimID)
		}
		v := verdicts[0]

		scratch := *c
		scratch.ApplyVerdict(claim.Quality{
			Strength:        v.Strength,
			Rigor:           v.Rigor,
			Relevance:       v.Relevance,
			Directness:      v.Directness,
			IsRecent:        v.IsRecent,
			Reproducibility: v.Reproducibility,
			StudyType:       v.StudyType,
		}, v.Notes, time.Now())

		votes = append(votes, scratch.Status == config.ClaimStatusApproved)
		composites = append(composites, scratch.EvidenceQuality.Composite)
	}

	approvals := 0
	for _, v := range votes {
		if v {
			approvals++
		}
	}
	agreement := float64(approvals) / float64(len(votes))

	breakdown := make([]string, len(votes))
	for i, v := range votes {
		if v {
			breakdown[i] = "approve"
		} else {
			breakdown[i] = "reject"
		}
	}

	c.Consensus = &claim.Consensus{
		AgreementRate: agreement,
		VoteBreakdown: breakdown,
		StdDev:        stdDev(composites),
	}

	if agreement == 1.0 || agreement == 0.0 {
		return nil
	}
	c.Status = config.ClaimStatusBorderline
	return nil
}

func stdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var sumSq float64
	for _, v := range vals {
		sumSq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

func evaluationPrompt(batch []store.PendingClaim) string {
	out := "Evaluate the following claims on six dimensions (strength, rigor, relevance, directness 1-3, is_recent, reproducibility):\n"
	for _, pc := range batch {
		out += fmt.Sprintf("- claim_id=%s sub_requirement=%s text=%q\n", pc.Claim.ClaimID, pc.Claim.SubRequirementID, pc.Claim.Text)
	}
	return out
}

func reframedPrompt(batch []store.PendingClaim) string {
	out := "Independently re-evaluate the following claims from a skeptical reviewer's perspective, looking specifically for reasons the evidence might be weaker than it first appears:\n"
	for _, pc := range batch {
		out += fmt.Sprintf("- claim_id=%s sub_requirement=%s text=%q\n", pc.Claim.ClaimID, pc.Claim.SubRequirementID, pc.Claim.Text)
	}
	return out
}
