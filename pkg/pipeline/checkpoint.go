package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pillarlens/pkg/config"
)

// schemaVersion is bumped whenever the Checkpoint JSON shape changes
// incompatibly. A loader that sees a newer version than it understands
// refuses to resume (spec.md §4.8 "never silently reinterpret a foreign
// checkpoint").
const schemaVersion = 1

// StageRecord is one stage's entry in a Checkpoint (spec.md §3 Pipeline
// State).
type StageRecord struct {
	Status      config.StageStatus `json:"status"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	DurationS   float64            `json:"duration_s,omitempty"`
	ExitCode    int                `json:"exit_code"`
	Error       string             `json:"error,omitempty"`
}

// Checkpoint is the Pipeline Controller's persisted run state, re-read by
// --resume to pick a run back up at the stage boundary it last completed.
type Checkpoint struct {
	RunID          string                          `json:"run_id"`
	SchemaVersion  int                             `json:"schema_version"`
	JobType        config.JobType                  `json:"job_type"`
	ParentRunID    string                          `json:"parent_run_id,omitempty"`
	StartedAt      time.Time                       `json:"started_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
	Stages         map[config.StageName]StageRecord `json:"stages"`
	IterationCount int                             `json:"iteration_count"`
	GapMetrics     map[string]float64              `json:"gap_metrics,omitempty"`
	ExecutionMetrics map[string]float64            `json:"execution_metrics,omitempty"`
	CoverageByPillar map[string]float64            `json:"coverage_by_pillar,omitempty"`
	OverallCoverage  float64                       `json:"overall_coverage"`
}

// NewCheckpoint starts a fresh Checkpoint for a run, every named stage
// pending (spec.md §4.8 item 1: the full sequence is known up front).
func NewCheckpoint(runID string, jobType config.JobType, parentRunID string, stages []config.StageName, at time.Time) *Checkpoint {
	c := &Checkpoint{
		RunID:         runID,
		SchemaVersion: schemaVersion,
		JobType:       jobType,
		ParentRunID:   parentRunID,
		StartedAt:     at,
		UpdatedAt:     at,
		Stages:        make(map[config.StageName]StageRecord, len(stages)),
	}
	for _, s := range stages {
		c.Stages[s] = StageRecord{Status: config.StageStatusPending}
	}
	return c
}

// StartStage marks stage running and records its start time.
func (c *Checkpoint) StartStage(stage config.StageName, at time.Time) {
	c.Stages[stage] = StageRecord{Status: config.StageStatusRunning, StartedAt: &at}
	c.UpdatedAt = at
}

// CompleteStage marks stage completed and records duration.
func (c *Checkpoint) CompleteStage(stage config.StageName, at time.Time) {
	rec := c.Stages[stage]
	rec.Status = config.StageStatusCompleted
	rec.CompletedAt = &at
	if rec.StartedAt != nil {
		rec.DurationS = at.Sub(*rec.StartedAt).Seconds()
	}
	rec.ExitCode = 0
	c.Stages[stage] = rec
	c.UpdatedAt = at
}

// FailStage marks stage failed with the given exit code and error text.
func (c *Checkpoint) FailStage(stage config.StageName, exitCode int, cause error, at time.Time) {
	rec := c.Stages[stage]
	rec.Status = config.StageStatusFailed
	rec.CompletedAt = &at
	if rec.StartedAt != nil {
		rec.DurationS = at.Sub(*rec.StartedAt).Seconds()
	}
	rec.ExitCode = exitCode
	if cause != nil {
		rec.Error = cause.Error()
	}
	c.Stages[stage] = rec
	c.UpdatedAt = at
}

// StageStatus reports a stage's recorded status, StageStatusPending if
// never touched.
func (c *Checkpoint) StageStatus(stage config.StageName) config.StageStatus {
	rec, ok := c.Stages[stage]
	if !ok {
		return config.StageStatusPending
	}
	return rec.Status
}

// LoadCheckpoint reads a Checkpoint document from path. A missing file is
// reported as os.ErrNotExist so --resume callers can distinguish "no prior
// run" from a genuine read failure.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("checkpoint: parsing %s: %w", path, err)
	}
	if c.SchemaVersion > schemaVersion {
		return nil, fmt.Errorf("checkpoint: %s was written by a newer schema version %d (understand up to %d)", path, c.SchemaVersion, schemaVersion)
	}
	return &c, nil
}

// SaveCheckpoint writes c atomically: encode, write to a temp file in the
// same directory, fsync, then rename over the destination — the same
// write-then-rename discipline pkg/store uses for the Version Store, so a
// crash mid-write never leaves a half-written checkpoint behind.
func SaveCheckpoint(path string, c *Checkpoint) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
