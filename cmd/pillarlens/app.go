// Package main wires the pillarlens CLI: configuration loading, collaborator
// construction, and the cobra subcommands spec.md §6 names as the process
// surface (run, resume, stage, scan-papers, scan-checkpoints, sync-csv).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"pillarlens/pkg/catalog"
	"pillarlens/pkg/chunk"
	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
	"pillarlens/pkg/gap"
	"pillarlens/pkg/governor"
	"pillarlens/pkg/judge"
	"pillarlens/pkg/llmgateway"
	"pillarlens/pkg/pipeline"
	"pillarlens/pkg/retention"
	"pillarlens/pkg/reviewer"
	"pillarlens/pkg/store"
	"pillarlens/pkg/trigger"
)

// subRequirementResolutionConfidenceThreshold is the confidence floor
// catalog.Resolve applies when matching an LLM-proposed sub-requirement
// identifier or title (spec.md §4.2's resolve()). Below this, a claim is
// quarantined rather than attached to a sub-requirement. Not part of
// spec.md §6's recognized configuration surface, so it lives here as a
// fixed constant rather than a YAML knob.
const subRequirementResolutionConfidenceThreshold = 0.7

// journalPerPaperClaimCap bounds how many claims a single Journal Reviewer
// pass keeps per paper (spec.md §4.5.1 "favors breadth" but still needs a
// ceiling). Like the resolution threshold above, spec.md §6 doesn't name
// this as a recognized option, so it's fixed rather than configurable.
const journalPerPaperClaimCap = 50

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// loadConfig loads .env from configDir (a missing file only warns, matching
// the teacher's own startup tolerance) and initializes the effective Config.
func loadConfig(configDir string) (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envPath, err)
	}
	return config.Initialize(configDir)
}

func cacheDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "cache")
}

func checkpointArchiveDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "checkpoints")
}

func currentCheckpointPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "checkpoint.json")
}

func quarantinePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "quarantine.json")
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, "run.lock")
}

// buildController wires every collaborator pkg/pipeline.Controller needs
// from an effective Config, playing the role spec.md §4.8 assigns the
// Pipeline Controller's owner: construct every other component once, share
// the LLM Gateway across all three reviewer variants and the Judge.
func buildController(cfg *config.Config, now func() time.Time) (*pipeline.Controller, error) {
	cat, err := catalog.Load(cfg.Paths.PillarDefinitionsPath)
	if err != nil {
		return nil, fmt.Errorf("loading pillar catalog: %w", err)
	}

	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", cfg.Paths.OutputDir, err)
	}

	gwCacheDir := cacheDir(cfg)
	if cfg.Pipeline.DryRun {
		gwCacheDir = ""
	}
	// force (spec.md §6: "ignores existing claim cache; re-runs analyzers")
	// and clear_cache both mean this run must not see stale cached LLM
	// responses; clearing the cache before the Gateway opens it achieves
	// both with the same mechanism pkg/llmgateway already exposes.
	if cfg.Pipeline.ClearCache || cfg.Pipeline.Force {
		if err := llmgateway.NewCache(gwCacheDir).Clear(); err != nil {
			return nil, fmt.Errorf("clearing response cache: %w", err)
		}
	}

	gov := governor.New(cfg.Governor.APICallsPerMinute, cfg.Governor.BudgetUSD)

	transport := llmgateway.NewHTTPTransport(llmgateway.HTTPTransportConfig{
		Endpoint:    getEnv("PILLARLENS_LLM_ENDPOINT", ""),
		BearerToken: getEnv("PILLARLENS_LLM_TOKEN", ""),
		VerifySSL:   getEnvBool("PILLARLENS_LLM_VERIFY_SSL", true),
		Timeout:     getEnvDuration("PILLARLENS_LLM_TIMEOUT", 60*time.Second),
		CostPerCall: getEnvFloat("PILLARLENS_LLM_COST_PER_CALL", 0.01),
	})
	gw := llmgateway.New(transport, gov, gwCacheDir)

	quarantine := store.NewQuarantineStore(quarantinePath(cfg))

	var dedup *claim.Deduplicator
	if cfg.Dedup.Enabled {
		dedup = claim.NewDeduplicator(cfg.Dedup.JaccardThreshold)
	}

	journalSplitter, err := chunk.NewSplitter(cfg.Chunking.JournalChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("journal chunk splitter: %w", err)
	}
	draSplitter, err := chunk.NewSplitter(cfg.Chunking.DRAChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("dra chunk splitter: %w", err)
	}
	deepSplitter, err := chunk.NewSplitter(cfg.Chunking.DeepReviewerChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("deep reviewer chunk splitter: %w", err)
	}

	base := reviewer.Base{
		Catalog:             cat,
		Gateway:             gw,
		Quarantine:          quarantine,
		ConfidenceThreshold: subRequirementResolutionConfidenceThreshold,
	}

	retentionSvc := retention.NewService(cfg.Cache, 0, gwCacheDir, checkpointArchiveDir(cfg))

	return &pipeline.Controller{
		Config:  *cfg,
		Store:   store.New(cfg.Paths.VersionHistoryPath),
		Catalog: cat,

		Journal: reviewer.Journal{
			Base:        base,
			Extractor:   extractorFor,
			Splitter:    journalSplitter,
			PerPaperCap: journalPerPaperClaimCap,
			Dedup:       dedup,
		},
		DRA: reviewer.DRA{
			Base:      base,
			Extractor: extractorFor,
			Splitter:  draSplitter,
		},
		DeepReviewer: reviewer.DeepReviewer{
			Base:      base,
			Extractor: extractorFor,
			Splitter:  deepSplitter,
			Dedup:     dedup,
		},
		Judge: judge.Judge{
			Gateway:           gw,
			BatchSize:         cfg.Judge.ClaimBatchSize,
			ConsensusBand:     cfg.Judge.ConsensusReviewThreshold,
			ConsensusStrategy: cfg.Judge.ConsensusStrategy,
			MaxConcurrency:    cfg.Pipeline.MaxConcurrency,
			Now:               now,
		},
		GapAnalyzer: gap.Analyzer{
			Catalog: cfg.GapAnalysis,
			Cat:     cat,
			Now:     now,
		},
		Trigger:   trigger.Evaluator{Config: cfg.Trigger},
		Retention: retentionSvc,

		CheckpointPath:    currentCheckpointPath(cfg),
		CSVPath:           filepath.Join(cfg.Paths.OutputDir, "claims.csv"),
		GapReportJSONPath: filepath.Join(cfg.Paths.OutputDir, "gap_report.json"),
		GapReportMDPath:   filepath.Join(cfg.Paths.OutputDir, "gap_report.md"),
		Now:               now,
	}, nil
}

// extractorDispatch implements chunk.PaperTextExtractor by delegating to
// chunk.NewExtractor per call, so one value can be shared across every
// reviewer variant regardless of each paper's file extension.
type extractorDispatch struct{}

func (extractorDispatch) Extract(path string) (chunk.Document, error) {
	return chunk.NewExtractor(path).Extract(path)
}

var extractorFor = extractorDispatch{}

// archiveCheckpoint copies the just-written current checkpoint into the
// per-run archive directory pkg/retention prunes by retention count
// (SPEC_FULL.md supplement #2), so scan-checkpoints has a growing history
// to list rather than only ever the latest run.
func archiveCheckpoint(cfg *config.Config, cp *pipeline.Checkpoint) error {
	if cp == nil {
		return nil
	}
	dir := checkpointArchiveDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint archive dir: %w", err)
	}
	dest := filepath.Join(dir, cp.RunID+".json")
	return pipeline.SaveCheckpoint(dest, cp)
}
