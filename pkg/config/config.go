// Package config loads simulation settings from YAML. The config file
// carries solver tuning only; the circuit itself always comes from the
// netlist.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"flowsim/pkg/matrix"
	"flowsim/pkg/solver"
)

// Config mirrors solver.Options in file form. Zero values fall back to
// the solver defaults.
type Config struct {
	TimeStep       float64 `yaml:"time_step"`
	MinTimeStep    float64 `yaml:"min_time_step"`
	MaxTimeStep    float64 `yaml:"max_time_step"`
	MaxIterations  int     `yaml:"max_iterations"`
	RelTol         float64 `yaml:"rel_tol"`
	Damping        float64 `yaml:"damping"`
	AdjustTimeStep bool    `yaml:"adjust_time_step"`
	Backend        string  `yaml:"backend"` // "sparse" (default) or "dense"
}

// LoadFromPath reads and validates a config file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the solver cannot use. Zeros pass; they mean
// "use the default".
func (c *Config) Validate() error {
	if c.TimeStep < 0 {
		return fmt.Errorf("config: time_step must be positive, got %g", c.TimeStep)
	}
	if c.MinTimeStep < 0 {
		return fmt.Errorf("config: min_time_step must be positive, got %g", c.MinTimeStep)
	}
	if c.MinTimeStep > 0 && c.TimeStep > 0 && c.MinTimeStep > c.TimeStep {
		return fmt.Errorf("config: min_time_step %g exceeds time_step %g", c.MinTimeStep, c.TimeStep)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("config: max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.RelTol < 0 {
		return fmt.Errorf("config: rel_tol must be positive, got %g", c.RelTol)
	}
	if c.Damping < 0 || c.Damping > 1 {
		return fmt.Errorf("config: damping must be in (0, 1], got %g", c.Damping)
	}
	switch c.Backend {
	case "", "sparse", "dense":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	return nil
}

// Options converts the file form into solver options.
func (c *Config) Options() solver.Options {
	opts := solver.Options{
		TimeStep:       c.TimeStep,
		MinTimeStep:    c.MinTimeStep,
		MaxTimeStep:    c.MaxTimeStep,
		MaxIterations:  c.MaxIterations,
		RelTol:         c.RelTol,
		Damping:        c.Damping,
		AdjustTimeStep: c.AdjustTimeStep,
	}
	if c.Backend == "dense" {
		opts.Backend = matrix.DenseBackend
	}
	return opts
}
