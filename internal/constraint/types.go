package constraint

import (
	"errors"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region errors

var (
	ErrInvalidRule   = errors.New("invalid constraint rule")
	ErrInvalidConfig = errors.New("invalid constraint config")
)

// #endregion errors

// #region rule

// Rule restricts when a label may be chosen. Nil fields are unset.
type Rule struct {
	MaxOccurrences      *int             `yaml:"max_occurrences,omitempty" json:"max_occurrences,omitempty"`
	MinProgress         *float64         `yaml:"min_progress,omitempty" json:"min_progress,omitempty"`
	Cooldown            *int             `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	RequiresPredecessor *narrative.Label `yaml:"requires_predecessor,omitempty" json:"requires_predecessor,omitempty"`
}

// Rules maps a label to its rule.
type Rules map[narrative.Label]Rule

// #endregion rule

// #region veto-type

// VetoType names the hard gate that zeroed a weight.
type VetoType string

const (
	VetoPredecessor VetoType = "requires_predecessor"
	VetoMaxCount    VetoType = "max_occurrences"
	VetoProgress    VetoType = "min_progress"
)

// Veto records one hard gate applied to a candidate.
type Veto struct {
	Label  narrative.Label
	Type   VetoType
	Reason string
}

// #endregion veto-type

// #region config

// Config holds the tunables of the constraint layer.
type Config struct {
	SelfLoopPenalty float64         // multiplier when the candidate repeats the previous label
	CooldownDamping float64         // multiplier while a label is cooling down
	Epsilon         float64         // adjusted row totals at or below this trigger the fallback
	SafetyLabel     narrative.Label // last-resort label when no original weight was positive
}

// DefaultConfig returns the stricter self-loop penalty (0.3); 0.5 is the
// alternate value seen in older tuning.
func DefaultConfig() Config {
	return Config{
		SelfLoopPenalty: 0.3,
		CooldownDamping: 0.1,
		Epsilon:         1e-4,
		SafetyLabel:     narrative.Description,
	}
}

// #endregion config

// #region decision

// Decision is the adjusted weight of one candidate label.
type Decision struct {
	Weight float64
	Vetoes []Veto
	Damped bool
}

// RowResult is a fully adjusted and normalized transition row.
type RowResult struct {
	Adjusted      []float64 // weights after constraints, before normalization
	Distribution  []float64 // normalized, always sums to 1
	Vetoes        []Veto
	Fallback      bool
	FallbackLabel narrative.Label
}

// #endregion decision

// #region helpers

func intPtr(v int) *int                           { return &v }
func floatPtr(v float64) *float64                 { return &v }
func labelPtr(v narrative.Label) *narrative.Label { return &v }

// #endregion helpers
