// Package config loads, merges, expands, and validates the closed
// configuration tree a convergence run operates under. A YAML file under the
// configuration directory is merged over Defaults(), environment variables
// are expanded, and the result is fail-fast validated before any stage runs.
package config

// Overrides carries the subset of configuration keys that are more naturally
// expressed as CLI flags than YAML keys (spec.md §6 process surface). Apply
// applies them over an already-loaded Config, after validation has already
// run on the YAML-derived values but before the run starts.
type Overrides struct {
	DryRun          *bool
	Force           *bool
	ClearCache      *bool
	Resume          *bool
	ResumeFromStage *string
}

// Apply overlays non-nil override fields onto cfg in place.
func (o Overrides) Apply(cfg *Config) {
	if o.DryRun != nil {
		cfg.Pipeline.DryRun = *o.DryRun
	}
	if o.Force != nil {
		cfg.Pipeline.Force = *o.Force
	}
	if o.ClearCache != nil {
		cfg.Pipeline.ClearCache = *o.ClearCache
	}
	if o.Resume != nil {
		cfg.Pipeline.Resume = *o.Resume
	}
	if o.ResumeFromStage != nil {
		cfg.Pipeline.ResumeFromStage = *o.ResumeFromStage
	}
}
