// Package config loads the optional project-local configuration from
// <state>/config.yaml: per-metric tolerance bands for experiment
// verdicts, benchmark defaults, and the state directory name itself.
//
// A missing file yields defaults and is never an error; a present but
// malformed file is — a half-read config silently changing tolerance
// bands would corrupt experiment verdicts.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HendryAvila/perfscope/internal/experiment"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultStateDir is the state directory name under the project
	// root.
	DefaultStateDir = "perf"

	// ConfigFile is the config filename inside the state directory.
	ConfigFile = "config.yaml"
)

// MetricConfig is the YAML shape of one metric's classification rule.
type MetricConfig struct {
	// Tolerance is the absolute delta band treated as noise.
	Tolerance float64 `yaml:"tolerance"`
	// Better is "lower" or "higher". Empty means lower.
	Better string `yaml:"better"`
}

// BenchmarkDefaults seed the benchmark options when the caller leaves
// them unset.
type BenchmarkDefaults struct {
	Runs      int    `yaml:"runs"`
	Aggregate string `yaml:"aggregate"`
	Duration  int    `yaml:"duration"`
}

// Config is the full project configuration.
type Config struct {
	Metrics   map[string]MetricConfig `yaml:"metrics"`
	Benchmark BenchmarkDefaults       `yaml:"benchmark"`
	StateDir  string                  `yaml:"stateDir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{StateDir: DefaultStateDir}
}

// Load reads the config for a project root. The state directory named
// by the file itself is not consulted for the file's location — the
// default location is fixed, otherwise the config could move itself.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, DefaultStateDir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, m := range c.Metrics {
		if m.Tolerance < 0 {
			return fmt.Errorf("metric %q: negative tolerance", name)
		}
		switch m.Better {
		case "", "lower", "higher":
		default:
			return fmt.Errorf("metric %q: better must be \"lower\" or \"higher\", got %q", name, m.Better)
		}
	}
	if c.Benchmark.Runs < 0 {
		return fmt.Errorf("benchmark.runs is negative")
	}
	if c.Benchmark.Duration < 0 {
		return fmt.Errorf("benchmark.duration is negative")
	}
	switch c.Benchmark.Aggregate {
	case "", "median", "mean", "min", "max":
	default:
		return fmt.Errorf("benchmark.aggregate %q is not a known method", c.Benchmark.Aggregate)
	}
	return nil
}

// Rules converts the metric configs into experiment classification
// rules.
func (c *Config) Rules() experiment.Rules {
	if len(c.Metrics) == 0 {
		return nil
	}
	rules := make(experiment.Rules, len(c.Metrics))
	for name, m := range c.Metrics {
		rule := experiment.MetricRule{Tolerance: m.Tolerance}
		if m.Better == "higher" {
			rule.Better = experiment.HigherIsBetter
		} else {
			rule.Better = experiment.LowerIsBetter
		}
		rules[name] = rule
	}
	return rules
}

// StatePath returns the absolute state directory for a project root.
func (c *Config) StatePath(projectRoot string) string {
	return filepath.Join(projectRoot, c.StateDir)
}
