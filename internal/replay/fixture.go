package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string            `json:"description"`
	Model       state.ModelRecord `json:"model"`
	Config      FixtureConfig     `json:"config"`
	Cases       []FixtureCase     `json:"cases"`
}

// FixtureConfig pins everything besides the model that shapes sampling.
type FixtureConfig struct {
	StartLabel  narrative.Label         `json:"start_label"`
	Baseline    bool                    `json:"baseline,omitempty"` // replay without constraints
	Constraints FixtureConstraintConfig `json:"constraints"`
	Rules       constraint.Rules        `json:"rules"`
}

// FixtureConstraintConfig mirrors constraint.Config with JSON tags.
type FixtureConstraintConfig struct {
	SelfLoopPenalty float64         `json:"self_loop_penalty"`
	CooldownDamping float64         `json:"cooldown_damping"`
	Epsilon         float64         `json:"epsilon"`
	SafetyLabel     narrative.Label `json:"safety_label"`
}

// FixtureCase is one seeded plan and the labels it must produce.
type FixtureCase struct {
	Name     string                    `json:"name"`
	Seed     uint64                    `json:"seed"`
	Length   int                       `json:"length"`
	Override *narrative.DiscoveredPath `json:"override,omitempty"`
	Expected []narrative.Label         `json:"expected"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// FromConstraintConfig converts a domain config to its fixture form.
func FromConstraintConfig(c constraint.Config) FixtureConstraintConfig {
	return FixtureConstraintConfig{
		SelfLoopPenalty: c.SelfLoopPenalty,
		CooldownDamping: c.CooldownDamping,
		Epsilon:         c.Epsilon,
		SafetyLabel:     c.SafetyLabel,
	}
}

// ToConstraintSet builds the constraint set the fixture was recorded with.
func (fc *FixtureConfig) ToConstraintSet(alpha *narrative.Alphabet) (*constraint.Set, error) {
	if fc.Baseline {
		return constraint.Passthrough(alpha), nil
	}
	cfg := constraint.Config{
		SelfLoopPenalty: fc.Constraints.SelfLoopPenalty,
		CooldownDamping: fc.Constraints.CooldownDamping,
		Epsilon:         fc.Constraints.Epsilon,
		SafetyLabel:     fc.Constraints.SafetyLabel,
	}
	cs, err := constraint.NewSet(alpha, cfg, fc.Rules)
	if err != nil {
		return nil, fmt.Errorf("fixture constraints: %w", err)
	}
	return cs, nil
}

// ToCase converts a FixtureCase to a domain Case.
func (fc *FixtureCase) ToCase() Case {
	return Case{
		Name:     fc.Name,
		Seed:     fc.Seed,
		Length:   fc.Length,
		Override: fc.Override,
		Expected: fc.Expected,
	}
}

// #endregion fixture-loader

// #region fixture-run

// Run validates the embedded model, rebuilds the constraint set and replays
// every case.
func (f *Fixture) Run(ctx context.Context) ([]ReplayResult, error) {
	m, err := f.Model.Model()
	if err != nil {
		return nil, err
	}
	cs, err := f.Config.ToConstraintSet(m.Trajectory.Alphabet())
	if err != nil {
		return nil, err
	}
	cases := make([]Case, len(f.Cases))
	for i := range f.Cases {
		cases[i] = f.Cases[i].ToCase()
	}
	return Replay(ctx, Setup{Model: m.Trajectory, Constraints: cs, StartLabel: f.Config.StartLabel}, cases)
}

// #endregion fixture-run
