// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads experiment configuration for dcopsim.
//
// Configuration is resolved with priority env > file > defaults. Files are
// YAML, with JSON accepted as a fallback. Every environment override is
// prefixed DCOP_.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDCOP/pkg/logging"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/driver"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/problem"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/telemetry"
)

// Topologies understood by ProblemConfig.
const (
	TopologyLine   = "line"
	TopologyRing   = "ring"
	TopologyRandom = "random"
)

// ExperimentConfig is the complete configuration of one experiment.
type ExperimentConfig struct {
	Problem   ProblemConfig    `yaml:"problem" json:"problem"`
	Protocol  ProtocolConfig   `yaml:"protocol" json:"protocol"`
	Run       RunConfig        `yaml:"run" json:"run"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Results   ResultsConfig    `yaml:"results" json:"results"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
}

// ProblemConfig selects a generated problem instance.
type ProblemConfig struct {
	// Topology is "line", "ring" or "random".
	Topology string `yaml:"topology" json:"topology" validate:"required,oneof=line ring random"`

	// Agents is the number of variables, one agent each.
	Agents int `yaml:"agents" json:"agents" validate:"gte=2"`

	// DomainSize is the number of values per variable, 0..DomainSize-1.
	DomainSize int `yaml:"domain_size" json:"domain_size" validate:"gte=1"`

	// Density is the edge probability for the random topology.
	Density float64 `yaml:"density" json:"density" validate:"gte=0,lte=1"`

	// Seed drives the random topology.
	Seed int64 `yaml:"seed" json:"seed"`
}

// ProtocolConfig selects and tunes the solver.
type ProtocolConfig struct {
	Kind         string  `yaml:"kind" json:"kind" validate:"required"`
	StableRounds int     `yaml:"stable_rounds" json:"stable_rounds" validate:"gte=0"`
	Damping      float64 `yaml:"damping" json:"damping" validate:"gte=0,lt=1"`
	Noise        float64 `yaml:"noise" json:"noise" validate:"gte=0"`
	Bound        int     `yaml:"bound" json:"bound" validate:"gte=0"`
	KeepPreset   bool    `yaml:"keep_preset" json:"keep_preset"`
}

// RunConfig controls the simulation loop.
type RunConfig struct {
	UseRunner           bool          `yaml:"use_runner" json:"use_runner"`
	MaxRounds           int           `yaml:"max_rounds" json:"max_rounds" validate:"gte=1"`
	StallTimeout        time.Duration `yaml:"stall_timeout" json:"stall_timeout" validate:"gt=0"`
	DeliveryProbability float64       `yaml:"delivery_probability" json:"delivery_probability" validate:"gt=0,lte=1"`
	Seed                int64         `yaml:"seed" json:"seed"`
	RoundsPerSecond     float64       `yaml:"rounds_per_second" json:"rounds_per_second" validate:"gte=0"`
	HistorySize         int           `yaml:"history_size" json:"history_size" validate:"gte=0"`
}

// ResultsConfig selects where finished runs are recorded. Empty fields
// disable the corresponding recorder.
type ResultsConfig struct {
	// BadgerDir is the directory of the run archive.
	BadgerDir string `yaml:"badger_dir" json:"badger_dir"`

	InfluxURL    string `yaml:"influx_url" json:"influx_url" validate:"omitempty,url"`
	InfluxToken  string `yaml:"influx_token" json:"influx_token"`
	InfluxOrg    string `yaml:"influx_org" json:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket" json:"influx_bucket"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`
	Dir   string `yaml:"dir" json:"dir"`
}

// Default returns a lossless ten-agent MGM experiment on a line.
func Default() ExperimentConfig {
	return ExperimentConfig{
		Problem: ProblemConfig{
			Topology:   TopologyLine,
			Agents:     10,
			DomainSize: 3,
			Density:    0.3,
			Seed:       1,
		},
		Protocol: ProtocolConfig{
			Kind: protocol.KindMGM.String(),
		},
		Run: RunConfig{
			UseRunner:           true,
			MaxRounds:           driver.DefaultMaxRounds,
			StallTimeout:        driver.DefaultStallTimeout,
			DeliveryProbability: 1,
			Seed:                1,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load resolves an ExperimentConfig.
//
// Description:
//
//	Starts from Default, overlays the file at path when it exists, then
//	applies DCOP_ environment overrides and validates the result.
//
// Inputs:
//
//	path - Config file path. Empty or missing means defaults only.
//
// Outputs:
//
//	ExperimentConfig - The resolved configuration.
//	error - Parse errors, or ErrInvalidConfig when validation fails.
func Load(path string) (ExperimentConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile overlays a YAML or JSON file onto cfg.
func loadFile(path string, cfg *ExperimentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parsing config file (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

// loadFromEnv applies DCOP_ overrides. Unparseable values are ignored.
func loadFromEnv(cfg *ExperimentConfig) {
	// Problem
	if v := os.Getenv("DCOP_TOPOLOGY"); v != "" {
		cfg.Problem.Topology = strings.ToLower(v)
	}
	if v := os.Getenv("DCOP_AGENTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Problem.Agents = i
		}
	}
	if v := os.Getenv("DCOP_DOMAIN_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Problem.DomainSize = i
		}
	}
	if v := os.Getenv("DCOP_DENSITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Problem.Density = f
		}
	}
	if v := os.Getenv("DCOP_PROBLEM_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Problem.Seed = i
		}
	}

	// Protocol
	if v := os.Getenv("DCOP_PROTOCOL"); v != "" {
		cfg.Protocol.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("DCOP_STABLE_ROUNDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Protocol.StableRounds = i
		}
	}
	if v := os.Getenv("DCOP_DAMPING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Protocol.Damping = f
		}
	}

	// Run
	if v := os.Getenv("DCOP_USE_RUNNER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Run.UseRunner = b
		}
	}
	if v := os.Getenv("DCOP_MAX_ROUNDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Run.MaxRounds = i
		}
	}
	if v := os.Getenv("DCOP_STALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.StallTimeout = d
		}
	}
	if v := os.Getenv("DCOP_DELIVERY_PROBABILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Run.DeliveryProbability = f
		}
	}
	if v := os.Getenv("DCOP_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Run.Seed = i
		}
	}
	if v := os.Getenv("DCOP_ROUNDS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Run.RoundsPerSecond = f
		}
	}

	// Results
	if v := os.Getenv("DCOP_BADGER_DIR"); v != "" {
		cfg.Results.BadgerDir = v
	}
	if v := os.Getenv("DCOP_INFLUX_URL"); v != "" {
		cfg.Results.InfluxURL = v
	}
	if v := os.Getenv("DCOP_INFLUX_TOKEN"); v != "" {
		cfg.Results.InfluxToken = v
	}
	if v := os.Getenv("DCOP_INFLUX_ORG"); v != "" {
		cfg.Results.InfluxOrg = v
	}
	if v := os.Getenv("DCOP_INFLUX_BUCKET"); v != "" {
		cfg.Results.InfluxBucket = v
	}

	// Logging
	if v := os.Getenv("DCOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DCOP_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.JSON = b
		}
	}
	if v := os.Getenv("DCOP_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

var validate = validator.New()

// Validate checks struct tags and the constraints between fields.
//
// Outputs:
//
//	error - Nil when valid. Otherwise wraps ErrInvalidConfig and lists
//	every problem found.
func (c ExperimentConfig) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.Problem.Topology == TopologyRing && c.Problem.Agents < 3 {
		errs = append(errs, fmt.Errorf("problem.agents: ring needs at least 3, got %d", c.Problem.Agents))
	}
	if c.Problem.Topology == TopologyRandom && c.Problem.Density <= 0 {
		errs = append(errs, fmt.Errorf("problem.density: random topology needs density > 0"))
	}
	if c.Protocol.Kind != "" {
		if _, err := protocol.Default().Lookup(protocol.Kind(c.Protocol.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("protocol.kind: %w", err))
		}
	}
	if c.Results.InfluxURL != "" && (c.Results.InfluxOrg == "" || c.Results.InfluxBucket == "") {
		errs = append(errs, fmt.Errorf("results: influx_url requires influx_org and influx_bucket"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// BuildProblem generates the configured problem instance.
func (c ProblemConfig) BuildProblem() (*problem.Problem, error) {
	switch c.Topology {
	case TopologyLine:
		return problem.Line(c.Agents, c.DomainSize)
	case TopologyRing:
		return problem.Ring(c.Agents, c.DomainSize)
	case TopologyRandom:
		return problem.RandomGraph(c.Agents, c.Density, c.DomainSize, c.Seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopology, c.Topology)
	}
}

// DriverOptions converts the protocol and run sections. Logger, Emitter and
// RunID are left for the caller.
func (c ExperimentConfig) DriverOptions() driver.Options {
	return driver.Options{
		Protocol: protocol.Kind(c.Protocol.Kind),
		ProtocolOptions: protocol.Options{
			KeepPreset:   c.Protocol.KeepPreset,
			StableRounds: c.Protocol.StableRounds,
			Damping:      c.Protocol.Damping,
			Noise:        c.Protocol.Noise,
			Bound:        c.Protocol.Bound,
		},
		UseRunner:           c.Run.UseRunner,
		MaxRounds:           c.Run.MaxRounds,
		StallTimeout:        c.Run.StallTimeout,
		DeliveryProbability: c.Run.DeliveryProbability,
		Seed:                c.Run.Seed,
		RoundsPerSecond:     c.Run.RoundsPerSecond,
		HistorySize:         c.Run.HistorySize,
	}
}

// LoggerConfig converts the logging section for the named service. An
// unknown level falls back to info; Validate rejects it earlier.
func (c LoggingConfig) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Dir,
		Service: service,
		JSON:    c.JSON,
	}
}
