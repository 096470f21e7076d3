package engine

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config is the engine's single YAML-loadable settings struct, in the
// same plain-struct-plus-Validate shape the teacher's pkg/config uses.
// The zero value reproduces spec §3/§9's stated defaults exactly.
type Config struct {
	MaxRetries          int    `yaml:"maxRetries"`
	HistoryLimit        int    `yaml:"historyLimit"`
	MetricsNamespace    string `yaml:"metricsNamespace"`
	MetricsSubsystem    string `yaml:"metricsSubsystem"`
}

// DefaultConfig returns the spec's stated defaults spelled out
// explicitly (maxRetries 0, historyLimit 20) plus the metrics
// namespace "optimistic" and subsystem "engine", for callers that want
// to start from them and override a field or two.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       0,
		HistoryLimit:     20,
		MetricsNamespace: "optimistic",
		MetricsSubsystem: "engine",
	}
}

// Validate rejects settings that can never produce a usable engine.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("engine: maxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("engine: historyLimit must be >= 0, got %d", c.HistoryLimit)
	}
	return nil
}

// LoadConfig reads and validates a YAML-encoded Config, starting from
// DefaultConfig so a partial document only overrides the fields it
// sets.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("engine: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
