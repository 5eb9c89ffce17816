// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads solver settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/curioloop/equilibrium/numdiff"
	"github.com/curioloop/equilibrium/sesolve"
	"gopkg.in/yaml.v3"
)

// Config is the complete solver configuration.
type Config struct {
	Solver Solver `yaml:"solver"`
	Log    Log    `yaml:"log"`
	Batch  Batch  `yaml:"batch"`
}

// Solver selects the strategy and its stop condition.
type Solver struct {
	// Strategy overrides the strategy each problem prefers when not empty.
	Strategy      string  `yaml:"strategy"`
	RelTolerance  float64 `yaml:"rel_tol"`
	AbsTolerance  float64 `yaml:"abs_tol"`
	MaxIterations int     `yaml:"max_iter"`
	// Jacobian is the finite difference scheme, "forward" or "central".
	Jacobian string `yaml:"jacobian"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Batch configures batch solving.
type Batch struct {
	Concurrency      int    `yaml:"concurrency"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Solver: Solver{
			RelTolerance:  1e-6,
			AbsTolerance:  1e-10,
			MaxIterations: 100,
			Jacobian:      numdiff.Forward.String(),
		},
		Log: Log{
			Level:  "warn",
			Format: "text",
		},
		Batch: Batch{
			Concurrency:      4,
			MetricsNamespace: "equilibrium",
		},
	}
}

// Load reads path over the defaults, applies SESOLVE_* environment overrides and
// validates the result. An empty path loads the defaults only. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err = decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := loadFromEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("SESOLVE_STRATEGY"); v != "" {
		cfg.Solver.Strategy = v
	}
	if v := os.Getenv("SESOLVE_MAX_ITER"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SESOLVE_MAX_ITER: %w", err)
		}
		cfg.Solver.MaxIterations = i
	}
	if v := os.Getenv("SESOLVE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	var errs []error
	if c.Solver.Strategy != "" {
		if _, err := sesolve.Default().Lookup(c.Solver.Strategy); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Method(); err != nil {
		errs = append(errs, err)
	}
	if !(c.Solver.RelTolerance >= 0) || !(c.Solver.AbsTolerance >= 0) {
		errs = append(errs, errors.New("tolerances must be non-negative"))
	}
	if c.Solver.MaxIterations <= 0 {
		errs = append(errs, errors.New("max_iter must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Batch.Concurrency < 0 {
		errs = append(errs, errors.New("batch concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// Termination returns the stop condition of the solver section.
func (c *Config) Termination() sesolve.Termination {
	return sesolve.Termination{
		RelTolerance:  c.Solver.RelTolerance,
		AbsTolerance:  c.Solver.AbsTolerance,
		MaxIterations: c.Solver.MaxIterations,
	}
}

// Method returns the Jacobian difference scheme.
func (c *Config) Method() (numdiff.Method, error) {
	return numdiff.ParseMethod(c.Solver.Jacobian)
}

// NewLogger builds the logger described by the log section, writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
