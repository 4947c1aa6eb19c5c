package constraint

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region set

// Set applies static rules and the self-loop penalty to transition weights.
// A Set is read-only after construction and safe to share between runs.
type Set struct {
	alphabet *narrative.Alphabet
	config   Config
	rules    Rules
}

// NewSet validates rules and config against alpha.
func NewSet(alpha *narrative.Alphabet, config Config, rules Rules) (*Set, error) {
	if config.SelfLoopPenalty < 0 || config.SelfLoopPenalty > 1 {
		return nil, fmt.Errorf("self-loop penalty %v outside [0,1]: %w", config.SelfLoopPenalty, ErrInvalidConfig)
	}
	if config.CooldownDamping < 0 || config.CooldownDamping > 1 {
		return nil, fmt.Errorf("cooldown damping %v outside [0,1]: %w", config.CooldownDamping, ErrInvalidConfig)
	}
	if config.Epsilon < 0 {
		return nil, fmt.Errorf("epsilon %v is negative: %w", config.Epsilon, ErrInvalidConfig)
	}
	if config.SafetyLabel == "" || !alpha.Contains(config.SafetyLabel) {
		return nil, fmt.Errorf("safety label %q not in alphabet: %w", config.SafetyLabel, ErrInvalidConfig)
	}

	kept := make(Rules, len(rules))
	for l, r := range rules {
		if !alpha.Contains(l) {
			// Rules for labels outside the active alphabet are ignored so one
			// rules file serves both alphabet variants.
			continue
		}
		if err := validateRule(alpha, l, r); err != nil {
			return nil, err
		}
		kept[l] = r
	}
	return &Set{alphabet: alpha, config: config, rules: kept}, nil
}

func validateRule(alpha *narrative.Alphabet, l narrative.Label, r Rule) error {
	if r.MaxOccurrences != nil && *r.MaxOccurrences < 0 {
		return fmt.Errorf("%s: max_occurrences %d: %w", l, *r.MaxOccurrences, ErrInvalidRule)
	}
	if r.MinProgress != nil && (*r.MinProgress < 0 || *r.MinProgress > 1) {
		return fmt.Errorf("%s: min_progress %v: %w", l, *r.MinProgress, ErrInvalidRule)
	}
	if r.Cooldown != nil && *r.Cooldown < 0 {
		return fmt.Errorf("%s: cooldown %d: %w", l, *r.Cooldown, ErrInvalidRule)
	}
	if r.RequiresPredecessor != nil && !alpha.Contains(*r.RequiresPredecessor) {
		return fmt.Errorf("%s: predecessor %q not in alphabet: %w", l, *r.RequiresPredecessor, ErrInvalidRule)
	}
	return nil
}

// Passthrough returns a Set with no rules and no self-loop penalty. It is the
// unconstrained baseline used for comparison runs.
func Passthrough(alpha *narrative.Alphabet) *Set {
	cfg := DefaultConfig()
	cfg.SelfLoopPenalty = 1
	if !alpha.Contains(cfg.SafetyLabel) {
		cfg.SafetyLabel = alpha.At(0)
	}
	return &Set{alphabet: alpha, config: cfg, rules: Rules{}}
}

// Alphabet returns the alphabet the set was validated against.
func (s *Set) Alphabet() *narrative.Alphabet { return s.alphabet }

// Config returns the active tunables.
func (s *Set) Config() Config { return s.config }

// Rule returns the rule for l, if any.
func (s *Set) Rule(l narrative.Label) (Rule, bool) {
	r, ok := s.rules[l]
	return r, ok
}

// #endregion set

// #region weight

// Weight adjusts the raw weight w of candidate given the history so far and the
// current progress fraction. Hard gates force the weight to exactly 0; cooldown
// and self-loop adjustments are multiplicative.
func (s *Set) Weight(w float64, candidate narrative.Label, history []narrative.Label, progress float64) Decision {
	var vetoes []Veto

	if r, ok := s.rules[candidate]; ok {
		if r.RequiresPredecessor != nil && !contains(history, *r.RequiresPredecessor) {
			vetoes = append(vetoes, Veto{
				Label:  candidate,
				Type:   VetoPredecessor,
				Reason: fmt.Sprintf("%s requires a prior %s", candidate, *r.RequiresPredecessor),
			})
		}
		if r.MaxOccurrences != nil {
			if n := count(history, candidate); n >= *r.MaxOccurrences {
				vetoes = append(vetoes, Veto{
					Label:  candidate,
					Type:   VetoMaxCount,
					Reason: fmt.Sprintf("%s already used %d/%d times", candidate, n, *r.MaxOccurrences),
				})
			}
		}
		if r.MinProgress != nil && progress < *r.MinProgress {
			vetoes = append(vetoes, Veto{
				Label:  candidate,
				Type:   VetoProgress,
				Reason: fmt.Sprintf("%s needs progress %.2f, at %.2f", candidate, *r.MinProgress, progress),
			})
		}
		if len(vetoes) > 0 {
			return Decision{Weight: 0, Vetoes: vetoes}
		}

		if r.Cooldown != nil {
			if since, seen := sinceLast(history, candidate); seen && since < *r.Cooldown {
				w *= s.config.CooldownDamping
			}
		}
	}

	damped := false
	if n := len(history); n > 0 && history[n-1] == candidate {
		w *= s.config.SelfLoopPenalty
		damped = true
	}
	return Decision{Weight: w, Damped: damped}
}

// #endregion weight

// #region adjust-row

// AdjustRow applies Weight to every entry of row (alphabet order) and
// normalizes the result. When constraints leave no usable mass the
// distribution collapses onto the first label whose original probability was
// positive, or onto the safety label if there is none.
func (s *Set) AdjustRow(row []float64, history []narrative.Label, progress float64) RowResult {
	n := s.alphabet.Len()
	res := RowResult{
		Adjusted:     make([]float64, n),
		Distribution: make([]float64, n),
	}

	var total float64
	for i := 0; i < n && i < len(row); i++ {
		d := s.Weight(row[i], s.alphabet.At(i), history, progress)
		res.Adjusted[i] = d.Weight
		res.Vetoes = append(res.Vetoes, d.Vetoes...)
		total += d.Weight
	}

	if total <= s.config.Epsilon {
		res.Fallback = true
		res.FallbackLabel = s.config.SafetyLabel
		for i := 0; i < n && i < len(row); i++ {
			if row[i] > 0 {
				res.FallbackLabel = s.alphabet.At(i)
				break
			}
		}
		idx, _ := s.alphabet.Index(res.FallbackLabel)
		res.Distribution[idx] = 1
		return res
	}

	for i := range res.Adjusted {
		res.Distribution[i] = res.Adjusted[i] / total
	}
	return res
}

// #endregion adjust-row

// #region defaults

// DefaultRules is the built-in story grammar.
func DefaultRules() Rules {
	return Rules{
		narrative.Introduction:     {MaxOccurrences: intPtr(1)},
		narrative.IncitingIncident: {MaxOccurrences: intPtr(1)},
		narrative.Conflict:         {Cooldown: intPtr(2)},
		narrative.Twist:            {MaxOccurrences: intPtr(2), MinProgress: floatPtr(0.3), Cooldown: intPtr(3)},
		narrative.Revelation:       {MinProgress: floatPtr(0.4), Cooldown: intPtr(4)},
		narrative.Climax:           {MaxOccurrences: intPtr(1), MinProgress: floatPtr(0.6)},
		narrative.Resolution:       {RequiresPredecessor: labelPtr(narrative.Climax), MinProgress: floatPtr(0.7)},
		narrative.StoryEnd:         {MaxOccurrences: intPtr(1), RequiresPredecessor: labelPtr(narrative.Resolution), MinProgress: floatPtr(0.9)},
	}
}

// LoadRules reads a YAML file mapping label names to rules.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rules, nil
}

// #endregion defaults

// #region history-helpers

func contains(history []narrative.Label, l narrative.Label) bool {
	for _, h := range history {
		if h == l {
			return true
		}
	}
	return false
}

func count(history []narrative.Label, l narrative.Label) int {
	n := 0
	for _, h := range history {
		if h == l {
			n++
		}
	}
	return n
}

// sinceLast returns how many positions back the most recent l sits: 1 means
// it is the previous step.
func sinceLast(history []narrative.Label, l narrative.Label) (int, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] == l {
			return len(history) - i, true
		}
	}
	return 0, false
}

// #endregion history-helpers
