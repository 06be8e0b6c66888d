package config

import "time"

// Defaults returns the built-in configuration baseline. Loaded YAML is merged
// on top of this via dario.cat/mergo, so a config.yaml only needs to specify
// the keys it wants to override.
func Defaults() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:               "./data",
			VersionHistoryPath:    "./data/version_history.json",
			PillarDefinitionsPath: "./data/pillars.json",
			OutputDir:             "./output",
		},
		Governor: GovernorConfig{
			APICallsPerMinute: 20,
			BudgetUSD:         10.0,
		},
		Chunking: ChunkingConfig{
			JournalChunkSize:      8000,
			DRAChunkSize:          6000,
			DeepReviewerChunkSize: 6000,
			ChunkOverlap:          0.1,
		},
		Judge: JudgeConfig{
			ClaimBatchSize: 10,
			// consensus_review_threshold default per spec.md §9 worked example:
			// the composite band bracketing the 3.0 approval line.
			ConsensusReviewThreshold: ConsensusBand{Low: 2.5, High: 3.5},
			ConsensusStrategy:        ConsensusSingleReeval,
		},
		GapAnalysis: GapAnalysisConfig{
			GapThreshold:       0.7,
			RecencyWindowYears: 5,
		},
		Pipeline: PipelineConfig{
			MaxIterations:  10,
			MaxConcurrency: 1,
		},
		Dedup: DedupConfig{
			Enabled:          true,
			JaccardThreshold: 0.85,
		},
		Trigger: TriggerConfig{
			SaturationClaimCap:    8,
			ClaimDensityCap:       5,
			TriangulationPaperCap: 3,
			BaseYieldPerPair:      0.5,
			SizeMultiplierCap:     2.0,
			BenefitPointsPerClaim: 10.0,
			CostPointsPerPair:     1.0,
		},
		Cache: CacheConfig{
			TTL:                      30 * 24 * time.Hour,
			CheckpointRetentionCount: 10,
		},
	}
}
