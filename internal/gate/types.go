package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoTooFewStories     VetoType = "too_few_stories"
	VetoClassifierFailure VetoType = "classifier_failure"
	VetoCoercion          VetoType = "label_coercion"
	VetoAlphabetChange    VetoType = "alphabet_change"
	VetoDrift             VetoType = "drift"
)

// Actions a Decision can carry.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType `json:"type"`
	Reason string   `json:"reason"`
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for promoting a model to active.
type GateConfig struct {
	MinStories          int     `koanf:"min_stories"`           // mined models only
	MaxRecoveredRatio   float64 `koanf:"max_recovered_ratio"`   // recovered classifier failures per classified segment
	MaxCoercedRatio     float64 `koanf:"max_coerced_ratio"`     // out-of-alphabet labels per classified segment
	MaxDrift            float64 `koanf:"max_drift"`             // mean L1 row distance to the active model, 0..2
	AllowAlphabetChange bool    `koanf:"allow_alphabet_change"` // accept a model over a different label set
}

// DefaultGateConfig returns the thresholds used when none are configured.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinStories:        3,
		MaxRecoveredRatio: 0.5,
		MaxCoercedRatio:   0.5,
		MaxDrift:          1.5,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string       `json:"action"`                 // "accept" | "reject"
	Reason      string       `json:"reason"`
	Vetoed      bool         `json:"vetoed"`
	VetoSignals []VetoSignal `json:"veto_signals,omitempty"` // non-empty if vetoed
	Drift       float64      `json:"drift"`                  // -1 when not comparable
	SoftScore   float64      `json:"soft_score"`             // 0-1 composite of soft signals (for logging)
}

// #endregion gate-decision
