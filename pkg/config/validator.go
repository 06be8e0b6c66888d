package config

import (
	"fmt"
	"os"
)

// Validator fail-fast validates a Config in dependency order: paths first
// (everything else reads/writes relative to them), then the numeric/enum
// tunables that depend on no other section.
type Validator struct {
	cfg *Config
}

// NewValidator returns a Validator wrapping cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every sub-validator in dependency order, stopping at the
// first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validatePaths(); err != nil {
		return fmt.Errorf("paths validation failed: %w", err)
	}
	if err := v.validateGovernor(); err != nil {
		return fmt.Errorf("governor validation failed: %w", err)
	}
	if err := v.validateChunking(); err != nil {
		return fmt.Errorf("chunking validation failed: %w", err)
	}
	if err := v.validateJudge(); err != nil {
		return fmt.Errorf("judge validation failed: %w", err)
	}
	if err := v.validateGapAnalysis(); err != nil {
		return fmt.Errorf("gap_analysis validation failed: %w", err)
	}
	if err := v.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}
	if err := v.validateDedup(); err != nil {
		return fmt.Errorf("dedup validation failed: %w", err)
	}
	if err := v.validateTrigger(); err != nil {
		return fmt.Errorf("trigger validation failed: %w", err)
	}
	if err := v.validateCache(); err != nil {
		return fmt.Errorf("cache validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validatePaths() error {
	p := v.cfg.Paths
	if p.DataDir == "" {
		return newValidationError("paths", "data_dir", ErrMissingRequiredField)
	}
	if p.VersionHistoryPath == "" {
		return newValidationError("paths", "version_history_path", ErrMissingRequiredField)
	}
	if p.PillarDefinitionsPath == "" {
		return newValidationError("paths", "pillar_definitions_path", ErrMissingRequiredField)
	}
	if p.OutputDir == "" {
		return newValidationError("paths", "output_dir", ErrMissingRequiredField)
	}
	if info, err := os.Stat(p.PillarDefinitionsPath); err == nil && info.IsDir() {
		return newValidationError("paths", "pillar_definitions_path", fmt.Errorf("%w: is a directory", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateGovernor() error {
	g := v.cfg.Governor
	if g.APICallsPerMinute <= 0 {
		return newValidationError("governor", "api_calls_per_minute", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if g.BudgetUSD <= 0 {
		return newValidationError("governor", "budget_usd", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateChunking() error {
	c := v.cfg.Chunking
	if c.JournalChunkSize <= 0 {
		return newValidationError("chunking", "journal_chunk_size", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if c.DRAChunkSize <= 0 {
		return newValidationError("chunking", "dra_chunk_size", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if c.DeepReviewerChunkSize <= 0 {
		return newValidationError("chunking", "deep_reviewer_chunk_size", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= 1 {
		return newValidationError("chunking", "chunk_overlap", fmt.Errorf("%w: must be in [0, 1)", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateJudge() error {
	j := v.cfg.Judge
	if j.ClaimBatchSize <= 0 {
		return newValidationError("judge", "claim_batch_size", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if j.ConsensusReviewThreshold.Low >= j.ConsensusReviewThreshold.High {
		return newValidationError("judge", "consensus_review_threshold", fmt.Errorf("%w: low must be < high", ErrInvalidValue))
	}
	if !j.ConsensusStrategy.IsValid() {
		return newValidationError("judge", "consensus_strategy", fmt.Errorf("%w: %q", ErrInvalidValue, j.ConsensusStrategy))
	}
	return nil
}

func (v *Validator) validateGapAnalysis() error {
	g := v.cfg.GapAnalysis
	if g.GapThreshold <= 0 || g.GapThreshold > 1 {
		return newValidationError("gap_analysis", "gap_threshold", fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue))
	}
	if g.RecencyWindowYears <= 0 {
		return newValidationError("gap_analysis", "recency_window_years", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validatePipeline() error {
	p := v.cfg.Pipeline
	if p.MaxIterations <= 0 {
		return newValidationError("pipeline", "max_iterations", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if p.MaxConcurrency < 0 {
		return newValidationError("pipeline", "max_concurrency", fmt.Errorf("%w: must be >= 0 (0 or 1 means sequential)", ErrInvalidValue))
	}
	if p.Resume && p.ResumeFromStage == "" && p.ResumeFromCheckpoint == "" {
		return nil // resume with no explicit target means "most recent checkpoint" — valid
	}
	return nil
}

func (v *Validator) validateDedup() error {
	d := v.cfg.Dedup
	if !d.Enabled {
		return nil
	}
	if d.JaccardThreshold <= 0 || d.JaccardThreshold > 1 {
		return newValidationError("dedup", "jaccard_threshold", fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateTrigger() error {
	t := v.cfg.Trigger
	if t.SaturationClaimCap <= 0 {
		return newValidationError("trigger", "saturation_claim_cap", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if t.ClaimDensityCap <= 0 {
		return newValidationError("trigger", "claim_density_cap", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if t.TriangulationPaperCap <= 0 {
		return newValidationError("trigger", "triangulation_paper_cap", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateCache() error {
	c := v.cfg.Cache
	if c.TTL < 0 {
		return newValidationError("cache", "ttl", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if c.CheckpointRetentionCount < 0 {
		return newValidationError("cache", "checkpoint_retention_count", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}
