// Package config provides YAML-backed configuration for every tunable knob
// in the control plane. Defaults match the published constants; Load
// validates and returns the config by value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoopConfig holds loop controller knobs.
type LoopConfig struct {
	BaseIterations      int     `yaml:"base_iterations"`
	MinIterations       int     `yaml:"min_iterations"`
	MaxIterations       int     `yaml:"max_iterations"`
	StuckThreshold      int     `yaml:"stuck_threshold"`
	NoProgressThreshold int     `yaml:"no_progress_threshold"`
	BackoffBaseSeconds  float64 `yaml:"backoff_base_seconds"`
	BackoffMultiplier   float64 `yaml:"backoff_multiplier"`
	BackoffMaxSeconds   float64 `yaml:"backoff_max_seconds"`
	BackoffJitter       bool    `yaml:"backoff_jitter"`
}

// BreakerConfig holds circuit breaker knobs.
type BreakerConfig struct {
	MaxTokens           int     `yaml:"max_tokens"`
	TokenThresholdPct   int     `yaml:"token_threshold_pct"`
	TokenWarningPct     int     `yaml:"token_warning_pct"`
	NoProgressThreshold int     `yaml:"no_progress_threshold"`
	OutputDeclinePct    int     `yaml:"output_decline_pct"`
	DegradationWindow   int     `yaml:"degradation_window"`
	MinCoverage         int     `yaml:"min_coverage"`
	MaxLintErrors       int     `yaml:"max_lint_errors"`
	MaxDurationSeconds  float64 `yaml:"max_duration_seconds"`
	TimeWarningPct      int     `yaml:"time_warning_pct"`
}

// MemoryConfig holds context memory knobs.
type MemoryConfig struct {
	MaxTokens         int     `yaml:"max_tokens"`
	CheckpointDir     string  `yaml:"checkpoint_dir"`
	PressureThreshold float64 `yaml:"pressure_threshold"`
	MaxCheckpoints    int     `yaml:"max_checkpoints"`
}

// FlakyConfig holds flaky detector knobs.
type FlakyConfig struct {
	FlakinessThreshold float64 `yaml:"flakiness_threshold"`
	MinRuns            int     `yaml:"min_runs"`
	AutoQuarantine     bool    `yaml:"auto_quarantine"`
	RetentionDays      int     `yaml:"retention_days"`
}

// OptimizerConfig holds self-optimizer knobs.
type OptimizerConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Strategy     string  `yaml:"strategy"`
	Cadence      int     `yaml:"cadence"` // iterations between optimize steps
}

// DispatcherConfig holds agent pool knobs.
type DispatcherConfig struct {
	NumAgents int `yaml:"num_agents"`
}

// Config is the full control-plane configuration.
type Config struct {
	Loop       LoopConfig       `yaml:"loop"`
	Breakers   BreakerConfig    `yaml:"breakers"`
	Memory     MemoryConfig     `yaml:"memory"`
	Flaky      FlakyConfig      `yaml:"flaky"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// Default returns the configuration with every published default.
func Default() Config {
	return Config{
		Loop: LoopConfig{
			BaseIterations:      50,
			MinIterations:       10,
			MaxIterations:       200,
			StuckThreshold:      5,
			NoProgressThreshold: 3,
			BackoffBaseSeconds:  0.5,
			BackoffMultiplier:   2.0,
			BackoffMaxSeconds:   30.0,
			BackoffJitter:       true,
		},
		Breakers: BreakerConfig{
			MaxTokens:           100000,
			TokenThresholdPct:   90,
			TokenWarningPct:     70,
			NoProgressThreshold: 3,
			OutputDeclinePct:    70,
			DegradationWindow:   3,
			MinCoverage:         80,
			MaxLintErrors:       10,
			MaxDurationSeconds:  7200,
			TimeWarningPct:      80,
		},
		Memory: MemoryConfig{
			MaxTokens:         100000,
			CheckpointDir:     ".devloop/checkpoints",
			PressureThreshold: 0.7,
			MaxCheckpoints:    10,
		},
		Flaky: FlakyConfig{
			FlakinessThreshold: 0.3,
			MinRuns:            5,
			AutoQuarantine:     false,
			RetentionDays:      30,
		},
		Optimizer: OptimizerConfig{
			LearningRate: 0.1,
			Strategy:     "hill_climbing",
			Cadence:      10,
		},
		Dispatcher: DispatcherConfig{
			NumAgents: 2,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects out-of-range knobs.
func (c Config) Validate() error {
	if c.Loop.MinIterations <= 0 || c.Loop.MaxIterations < c.Loop.MinIterations {
		return fmt.Errorf("loop: invalid iteration bounds [%d, %d]", c.Loop.MinIterations, c.Loop.MaxIterations)
	}
	if c.Loop.StuckThreshold <= 0 || c.Loop.NoProgressThreshold <= 0 {
		return fmt.Errorf("loop: thresholds must be positive")
	}
	if c.Breakers.MaxTokens <= 0 {
		return fmt.Errorf("breakers: max_tokens must be positive")
	}
	if c.Breakers.TokenWarningPct > c.Breakers.TokenThresholdPct {
		return fmt.Errorf("breakers: token warning pct %d above threshold pct %d",
			c.Breakers.TokenWarningPct, c.Breakers.TokenThresholdPct)
	}
	if c.Breakers.MaxDurationSeconds <= 0 {
		return fmt.Errorf("breakers: max_duration_seconds must be positive")
	}
	if c.Memory.MaxTokens <= 0 {
		return fmt.Errorf("memory: max_tokens must be positive")
	}
	if c.Memory.PressureThreshold <= 0 || c.Memory.PressureThreshold > 1 {
		return fmt.Errorf("memory: pressure_threshold %v outside (0, 1]", c.Memory.PressureThreshold)
	}
	if c.Memory.MaxCheckpoints <= 0 {
		return fmt.Errorf("memory: max_checkpoints must be positive")
	}
	if c.Flaky.FlakinessThreshold < 0 || c.Flaky.FlakinessThreshold > 1 {
		return fmt.Errorf("flaky: flakiness_threshold %v outside [0, 1]", c.Flaky.FlakinessThreshold)
	}
	if c.Flaky.MinRuns < 1 {
		return fmt.Errorf("flaky: min_runs must be at least 1")
	}
	if c.Optimizer.LearningRate <= 0 || c.Optimizer.LearningRate > 1 {
		return fmt.Errorf("optimizer: learning_rate %v outside (0, 1]", c.Optimizer.LearningRate)
	}
	switch c.Optimizer.Strategy {
	case "hill_climbing", "simulated_annealing", "random_search":
	default:
		return fmt.Errorf("optimizer: unknown strategy %q", c.Optimizer.Strategy)
	}
	if c.Optimizer.Cadence <= 0 {
		return fmt.Errorf("optimizer: cadence must be positive")
	}
	if c.Dispatcher.NumAgents <= 0 {
		return fmt.Errorf("dispatcher: num_agents must be positive")
	}
	return nil
}
