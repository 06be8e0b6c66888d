package config

import "time"

// Config is the closed configuration tree for a convergence run, loaded from
// YAML and merged with Defaults(). Every recognized key in spec.md §6 has a
// home here; there is no free-form string-keyed escape hatch.
type Config struct {
	// Paths holds the filesystem locations the run operates against.
	Paths PathsConfig `yaml:"paths"`

	// Governor tunes the Rate/Budget Governor (C3).
	Governor GovernorConfig `yaml:"governor"`

	// Chunking tunes the shared reviewer chunking policy.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Judge tunes Judge (C6) batching and consensus behavior.
	Judge JudgeConfig `yaml:"judge"`

	// GapAnalysis tunes Gap Analyzer (C8) thresholds.
	GapAnalysis GapAnalysisConfig `yaml:"gap_analysis"`

	// Pipeline tunes Pipeline Controller (C11) run semantics.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Dedup toggles and tunes the deduplication policy.
	Dedup DedupConfig `yaml:"dedup"`

	// Trigger tunes Trigger Evaluator (C10) metric estimation constants.
	Trigger TriggerConfig `yaml:"trigger"`

	// Cache tunes LLM response cache behavior.
	Cache CacheConfig `yaml:"cache"`

	// configDir is the directory this configuration was loaded from; unexported,
	// it is not part of the YAML surface.
	configDir string
}

// PathsConfig groups the file-format locations in spec.md §6.
type PathsConfig struct {
	DataDir               string `yaml:"data_dir"`
	VersionHistoryPath    string `yaml:"version_history_path"`
	PillarDefinitionsPath string `yaml:"pillar_definitions_path"`
	OutputDir             string `yaml:"output_dir"`
}

// GovernorConfig is the Rate/Budget Governor's ceiling configuration.
type GovernorConfig struct {
	APICallsPerMinute int     `yaml:"api_calls_per_minute"`
	BudgetUSD         float64 `yaml:"budget_usd"`
}

// ChunkingConfig holds per-component character chunking thresholds.
type ChunkingConfig struct {
	JournalChunkSize     int     `yaml:"journal_chunk_size"`
	DRAChunkSize         int     `yaml:"dra_chunk_size"`
	DeepReviewerChunkSize int    `yaml:"deep_reviewer_chunk_size"`
	ChunkOverlap         float64 `yaml:"chunk_overlap"`
}

// JudgeConfig tunes Judge batching and consensus review.
type JudgeConfig struct {
	ClaimBatchSize            int               `yaml:"claim_batch_size"`
	ConsensusReviewThreshold  ConsensusBand     `yaml:"consensus_review_threshold"`
	ConsensusStrategy         ConsensusStrategy `yaml:"consensus_strategy"`
}

// ConsensusBand is the composite-score band [Low, High] that triggers
// consensus re-evaluation rather than a single-pass accept/reject.
type ConsensusBand struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// GapAnalysisConfig tunes Gap Analyzer thresholds.
type GapAnalysisConfig struct {
	GapThreshold        float64  `yaml:"gap_threshold"`
	RecencyWindowYears  int      `yaml:"recency_window_years"`
	FoundationalPillars []string `yaml:"foundational_pillars"`
}

// PipelineConfig tunes Pipeline Controller run semantics.
type PipelineConfig struct {
	MaxIterations         int    `yaml:"max_iterations"`
	DryRun                bool   `yaml:"dry_run"`
	Force                 bool   `yaml:"force"`
	ClearCache            bool   `yaml:"clear_cache"`
	Resume                bool   `yaml:"resume"`
	ResumeFromStage       string `yaml:"resume_from_stage"`
	ResumeFromCheckpoint  string `yaml:"resume_from_checkpoint"`
	// MaxConcurrency bounds how many Judge batches or Deep-Reviewer
	// gap/paper pairs run concurrently. 1 (the default) keeps the
	// original sequential behavior.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// DedupConfig toggles and tunes the claim deduplication policy.
type DedupConfig struct {
	Enabled             bool    `yaml:"deduplication_enabled"`
	JaccardThreshold     float64 `yaml:"jaccard_threshold"`
}

// TriggerConfig tunes Trigger Evaluator (C10) estimation constants not pinned
// by spec.md §4.7's metric table (saturation/density/triangulation caps and
// the expected_claim_yield/cost_benefit_ratio point weights).
type TriggerConfig struct {
	SaturationClaimCap    int     `yaml:"saturation_claim_cap"`
	ClaimDensityCap       int     `yaml:"claim_density_cap"`
	TriangulationPaperCap int     `yaml:"triangulation_paper_cap"`
	BaseYieldPerPair      float64 `yaml:"base_yield_per_pair"`
	SizeMultiplierCap     float64 `yaml:"size_multiplier_cap"`
	BenefitPointsPerClaim float64 `yaml:"benefit_points_per_claim"`
	CostPointsPerPair     float64 `yaml:"cost_points_per_pair"`
}

// CacheConfig tunes LLM response cache retention (supplement, SPEC_FULL §5.2).
type CacheConfig struct {
	TTL                   time.Duration `yaml:"ttl"`
	CheckpointRetentionCount int        `yaml:"checkpoint_retention_count"`
}

// ConfigDir returns the directory this configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats returns a compact summary of the effective configuration, used for
// dry-run plan printing and startup logging.
func (c *Config) Stats() map[string]any {
	return map[string]any{
		"data_dir":              c.Paths.DataDir,
		"output_dir":            c.Paths.OutputDir,
		"api_calls_per_minute":  c.Governor.APICallsPerMinute,
		"budget_usd":            c.Governor.BudgetUSD,
		"claim_batch_size":      c.Judge.ClaimBatchSize,
		"gap_threshold":         c.GapAnalysis.GapThreshold,
		"max_iterations":        c.Pipeline.MaxIterations,
		"max_concurrency":       c.Pipeline.MaxConcurrency,
		"dedup_enabled":         c.Dedup.Enabled,
		"dry_run":               c.Pipeline.DryRun,
	}
}
