// Package config defines the engine configuration and its loading.
package config

import (
	"fmt"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab/llm"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/eval"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/gate"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/miner"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// Collaborator backends.
const (
	BackendHeuristic = "heuristic"
	BackendLLM       = "llm"
	BackendGRPC      = "grpc"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DBPath is the SQLite file holding model versions and the run log.
	DBPath string `koanf:"db_path"`

	// Alphabet selects the label set: "extended" (11 labels) or "legacy" (9).
	Alphabet string `koanf:"alphabet"`

	// RulesFile optionally replaces the built-in constraint rules (YAML).
	RulesFile string `koanf:"rules_file"`

	// Collaborators selects the backend: heuristic, llm or grpc.
	Collaborators string `koanf:"collaborators"`

	// GRPCAddr is the remote collaborator service when Collaborators is grpc.
	GRPCAddr string `koanf:"grpc_addr"`

	// ServeAddr is where `nte serve` listens.
	ServeAddr string `koanf:"serve_addr"`

	// MetricsAddr exposes /metrics when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	Constraints Constraints        `koanf:"constraints"`
	Miner       miner.Config       `koanf:"miner"`
	Coordinator coordinator.Config `koanf:"coordinator"`
	Eval        eval.EvalConfig    `koanf:"eval"`
	Gate        gate.GateConfig    `koanf:"gate"`
	LLM         llm.Config         `koanf:"llm"`
}

// Constraints mirrors constraint.Config with koanf tags.
type Constraints struct {
	SelfLoopPenalty float64 `koanf:"self_loop_penalty"`
	CooldownDamping float64 `koanf:"cooldown_damping"`
	Epsilon         float64 `koanf:"epsilon"`
	SafetyLabel     string  `koanf:"safety_label"`
}

// New creates a Config with defaults.
func New() *Config {
	cc := constraint.DefaultConfig()
	return &Config{
		LogLevel:      "info",
		DBPath:        "nte.db",
		Alphabet:      "extended",
		Collaborators: BackendHeuristic,
		GRPCAddr:      "localhost:50061",
		ServeAddr:     ":50061",
		Constraints: Constraints{
			SelfLoopPenalty: cc.SelfLoopPenalty,
			CooldownDamping: cc.CooldownDamping,
			Epsilon:         cc.Epsilon,
			SafetyLabel:     string(cc.SafetyLabel),
		},
		Miner:       miner.DefaultConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Eval:        eval.DefaultEvalConfig(),
		Gate:        gate.DefaultGateConfig(),
		LLM:         llm.DefaultConfig(),
	}
}

// AlphabetSet resolves the configured alphabet.
func (c *Config) AlphabetSet() (*narrative.Alphabet, error) {
	a, err := narrative.AlphabetByName(c.Alphabet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return a, nil
}

// ConstraintConfig converts the koanf mirror to the domain config.
func (c *Config) ConstraintConfig() constraint.Config {
	return constraint.Config{
		SelfLoopPenalty: c.Constraints.SelfLoopPenalty,
		CooldownDamping: c.Constraints.CooldownDamping,
		Epsilon:         c.Constraints.Epsilon,
		SafetyLabel:     narrative.Label(c.Constraints.SafetyLabel),
	}
}

// Rules returns the rules file's contents, or the built-in rules when none is set.
func (c *Config) Rules() (constraint.Rules, error) {
	if c.RulesFile == "" {
		return constraint.DefaultRules(), nil
	}
	return constraint.LoadRules(c.RulesFile)
}

// ConstraintSet builds the constraint set for alpha from the configured rules.
func (c *Config) ConstraintSet(alpha *narrative.Alphabet) (*constraint.Set, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	cs, err := constraint.NewSet(alpha, c.ConstraintConfig(), rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cs, nil
}

// Validate checks settings that do not depend on external files.
func (c *Config) Validate() error {
	alpha, err := c.AlphabetSet()
	if err != nil {
		return err
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	switch c.Collaborators {
	case BackendHeuristic, BackendLLM:
	case BackendGRPC:
		if c.GRPCAddr == "" {
			return fmt.Errorf("%w: grpc_addr required for grpc collaborators", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown collaborators backend %q", ErrInvalidConfig, c.Collaborators)
	}
	if !alpha.Contains(narrative.Label(c.Constraints.SafetyLabel)) {
		return fmt.Errorf("%w: safety label %q not in %s alphabet", ErrInvalidConfig, c.Constraints.SafetyLabel, c.Alphabet)
	}
	if c.Coordinator.MaxRetries < 0 {
		return fmt.Errorf("%w: coordinator.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Coordinator.DefaultLength <= 0 {
		return fmt.Errorf("%w: coordinator.default_length must be positive", ErrInvalidConfig)
	}
	if c.Gate.MaxDrift <= 0 || c.Gate.MaxRecoveredRatio < 0 || c.Gate.MaxCoercedRatio < 0 {
		return fmt.Errorf("%w: gate.max_drift must be positive and gate ratios non-negative", ErrInvalidConfig)
	}
	return nil
}
