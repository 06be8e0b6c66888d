package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads config.yaml from configDir, merges it over Defaults(), expands
// environment variables, validates the result, and returns the effective Config.
func Initialize(configDir string) (*Config, error) {
	if configDir == "" {
		return nil, ErrConfigDirRequired
	}

	l := &configLoader{dir: configDir}

	cfg := Defaults()
	loaded := &Config{}
	if err := l.loadYAML("config.yaml", loaded); err != nil {
		return nil, err
	}

	if err := mergo.Merge(cfg, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging loaded config over defaults: %w", err)
	}
	cfg.configDir = configDir

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded", "config_dir", configDir, "stats", cfg.Stats())
	return cfg, nil
}

// configLoader resolves and parses YAML files relative to a config directory.
type configLoader struct {
	dir string
}

// loadYAML reads filename from the loader's directory and unmarshals it into target.
// A missing file is not an error for anything except the base config.yaml.
func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if filename == "config.yaml" {
				return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w in %s: %w", ErrInvalidYAML, path, err)
	}
	return nil
}
