package strategy

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the strategy rule set, loadable from a YAML file.
type Config struct {
	Breakout      BreakoutParams      `yaml:"breakout"`
	Bounce        BounceParams        `yaml:"bounce"`
	Momentum      MomentumParams      `yaml:"momentum"`
	FalseBreakout FalseBreakoutParams `yaml:"false_breakout"`
	// Disabled lists strategy names excluded from the orchestrator run.
	Disabled []string `yaml:"disabled"`
}

// BreakoutParams tunes the level-breakout strategy.
type BreakoutParams struct {
	// VolumeFactor is how far above average volume the breakout bar must be.
	VolumeFactor float64 `yaml:"volume_factor"`
	// MinBreak is the minimum close-beyond-level distance in ATR multiples.
	MinBreak float64 `yaml:"min_break"`
}

// BounceParams tunes the level-rejection strategy.
type BounceParams struct {
	// Tolerance is the touch distance from a level in ATR multiples.
	Tolerance float64 `yaml:"tolerance"`
	// MinTouches is the minimum historical touch count for a level to matter.
	MinTouches int `yaml:"min_touches"`
}

// MomentumParams tunes the directional-streak strategy.
type MomentumParams struct {
	// Streak is how many consecutive directional closes are required.
	Streak int `yaml:"streak"`
	// VolumeRising requires volume to increase across the streak.
	VolumeRising bool `yaml:"volume_rising"`
}

// FalseBreakoutParams tunes the failed-break reversal strategy.
type FalseBreakoutParams struct {
	// MaxDepth caps how far past the level the trap bar may reach, in ATR
	// multiples. Deeper pushes read as genuine breakouts.
	MaxDepth float64 `yaml:"max_depth"`
	// Lookback is how many bars before the current one may hold the trap bar.
	Lookback int `yaml:"lookback"`
	// MinTouches is the minimum historical touch count for the broken level.
	MinTouches int `yaml:"min_touches"`
}

// DefaultConfig returns the built-in rule set.
func DefaultConfig() *Config {
	return &Config{
		Breakout:      BreakoutParams{VolumeFactor: 1.5, MinBreak: 0.1},
		Bounce:        BounceParams{Tolerance: 0.5, MinTouches: 2},
		Momentum:      MomentumParams{Streak: 4, VolumeRising: true},
		FalseBreakout: FalseBreakoutParams{MaxDepth: 0.33, Lookback: 3, MinTouches: 2},
	}
}

// LoadConfig reads a rule set from disk. Missing fields fall back to the
// defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open strategy config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read strategy config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal strategy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the rule set for nonsensical parameters.
func (c *Config) Validate() error {
	if c.Breakout.VolumeFactor <= 0 {
		return fmt.Errorf("strategy config: breakout volume_factor must be positive")
	}
	if c.Breakout.MinBreak < 0 {
		return fmt.Errorf("strategy config: breakout min_break cannot be negative")
	}
	if c.Bounce.Tolerance <= 0 {
		return fmt.Errorf("strategy config: bounce tolerance must be positive")
	}
	if c.Bounce.MinTouches < 1 {
		return fmt.Errorf("strategy config: bounce min_touches must be at least 1")
	}
	if c.Momentum.Streak < 2 {
		return fmt.Errorf("strategy config: momentum streak must be at least 2")
	}
	if c.FalseBreakout.MaxDepth <= 0 {
		return fmt.Errorf("strategy config: false_breakout max_depth must be positive")
	}
	if c.FalseBreakout.Lookback < 1 {
		return fmt.Errorf("strategy config: false_breakout lookback must be at least 1")
	}
	if c.FalseBreakout.MinTouches < 1 {
		return fmt.Errorf("strategy config: false_breakout min_touches must be at least 1")
	}
	return nil
}

// Names lists every built-in strategy.
func Names() []string {
	return []string{"breakout", "bounce", "momentum", "false_breakout"}
}

// Enabled reports whether the named strategy is active.
func (c *Config) Enabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return false
		}
	}
	return true
}
