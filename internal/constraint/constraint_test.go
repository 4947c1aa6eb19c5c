package constraint

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region helpers

func defaultSet(t *testing.T) *Set {
	t.Helper()
	s, err := NewSet(narrative.ExtendedAlphabet(), DefaultConfig(), DefaultRules())
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

func uniformRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = 1 / float64(n)
	}
	return row
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// #endregion helpers

// #region hard-gates

func TestWeight_MaxOccurrencesGate(t *testing.T) {
	s := defaultSet(t)
	history := []narrative.Label{narrative.Introduction, narrative.Conflict, narrative.Climax, narrative.Dialogue}

	d := s.Weight(0.9, narrative.Climax, history, 0.95)
	if d.Weight != 0 {
		t.Fatalf("Climax weight: got %v, want 0", d.Weight)
	}
	if len(d.Vetoes) == 0 || d.Vetoes[0].Type != VetoMaxCount {
		t.Fatalf("expected max_occurrences veto, got %+v", d.Vetoes)
	}
}

func TestWeight_RequiresPredecessorGate(t *testing.T) {
	s := defaultSet(t)
	history := []narrative.Label{narrative.Introduction, narrative.Conflict}

	d := s.Weight(0.5, narrative.Resolution, history, 0.9)
	if d.Weight != 0 {
		t.Fatalf("Resolution without Climax: got %v, want 0", d.Weight)
	}
	if d.Vetoes[0].Type != VetoPredecessor {
		t.Errorf("veto: got %q, want %q", d.Vetoes[0].Type, VetoPredecessor)
	}

	history = append(history, narrative.Climax)
	if d := s.Weight(0.5, narrative.Resolution, history, 0.9); d.Weight != 0.5 {
		t.Errorf("Resolution after Climax: got %v, want 0.5", d.Weight)
	}
}

func TestWeight_MinProgressGate(t *testing.T) {
	s := defaultSet(t)
	if d := s.Weight(0.4, narrative.Climax, nil, 0.2); d.Weight != 0 {
		t.Errorf("early Climax: got %v, want 0", d.Weight)
	}
	if d := s.Weight(0.4, narrative.Climax, nil, 0.65); d.Weight != 0.4 {
		t.Errorf("late Climax: got %v, want 0.4", d.Weight)
	}
}

func TestWeight_HardGateDominatesDamping(t *testing.T) {
	s := defaultSet(t)
	// previous label is Climax (self-loop) and the max count is exhausted
	history := []narrative.Label{narrative.Climax}
	if d := s.Weight(1, narrative.Climax, history, 0.8); d.Weight != 0 || d.Damped {
		t.Errorf("got weight=%v damped=%v, want 0/false", d.Weight, d.Damped)
	}
}

// #endregion hard-gates

// #region soft-damping

func TestWeight_Cooldown(t *testing.T) {
	s := defaultSet(t)
	// Twist cooldown 3: two positions back is still cooling.
	history := []narrative.Label{narrative.Introduction, narrative.Twist, narrative.Dialogue}
	d := s.Weight(1, narrative.Twist, history, 0.5)
	if math.Abs(d.Weight-0.1) > 1e-12 {
		t.Errorf("cooling Twist: got %v, want 0.1", d.Weight)
	}
	if len(d.Vetoes) != 0 {
		t.Errorf("cooldown must not veto, got %+v", d.Vetoes)
	}

	history = append(history, narrative.Description)
	if d := s.Weight(1, narrative.Twist, history, 0.5); d.Weight != 1 {
		t.Errorf("cooled Twist: got %v, want 1", d.Weight)
	}
}

func TestWeight_SelfLoopPenalty(t *testing.T) {
	s := defaultSet(t)
	history := []narrative.Label{narrative.Introduction, narrative.Dialogue}
	d := s.Weight(0.6, narrative.Dialogue, history, 0.3)
	if !d.Damped {
		t.Fatal("expected self-loop damping")
	}
	if d.Weight >= 0.6 {
		t.Errorf("self-loop weight %v should be below 0.6", d.Weight)
	}
	if math.Abs(d.Weight-0.18) > 1e-12 {
		t.Errorf("self-loop weight: got %v, want 0.18", d.Weight)
	}
}

// #endregion soft-damping

// #region adjust-row

func TestAdjustRow_ScenarioA(t *testing.T) {
	alpha, _ := narrative.NewAlphabet("A", "B", "C")
	cfg := DefaultConfig()
	cfg.SelfLoopPenalty = 0.5
	cfg.SafetyLabel = "A"
	s, err := NewSet(alpha, cfg, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	res := s.AdjustRow([]float64{0.1, 0.8, 0.1}, []narrative.Label{"A"}, 0)
	wantAdj := []float64{0.05, 0.8, 0.1}
	wantDist := []float64{0.0526, 0.8421, 0.1053}
	for i := range wantAdj {
		if math.Abs(res.Adjusted[i]-wantAdj[i]) > 1e-12 {
			t.Errorf("adjusted[%d]: got %v, want %v", i, res.Adjusted[i], wantAdj[i])
		}
		if math.Abs(res.Distribution[i]-wantDist[i]) > 1e-4 {
			t.Errorf("dist[%d]: got %.4f, want %.4f", i, res.Distribution[i], wantDist[i])
		}
	}
	if res.Fallback {
		t.Error("unexpected fallback")
	}
}

func TestAdjustRow_NormalizesAndGates(t *testing.T) {
	s := defaultSet(t)
	alpha := s.Alphabet()
	history := []narrative.Label{narrative.Introduction, narrative.IncitingIncident}

	res := s.AdjustRow(uniformRow(alpha.Len()), history, 0.1)
	if math.Abs(sum(res.Distribution)-1) > 1e-9 {
		t.Fatalf("distribution sums to %v", sum(res.Distribution))
	}
	for _, l := range []narrative.Label{narrative.Introduction, narrative.IncitingIncident, narrative.Climax, narrative.Resolution, narrative.StoryEnd, narrative.Twist} {
		i, _ := alpha.Index(l)
		if res.Distribution[i] != 0 {
			t.Errorf("%s: got %v, want 0", l, res.Distribution[i])
		}
	}
}

func TestAdjustRow_FallbackToFirstPositive(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()
	s, _ := NewSet(alpha, DefaultConfig(), DefaultRules())

	// Only Climax has mass and it is gated by min progress.
	row := make([]float64, alpha.Len())
	ci, _ := alpha.Index(narrative.Climax)
	row[ci] = 1

	res := s.AdjustRow(row, nil, 0.1)
	if !res.Fallback {
		t.Fatal("expected fallback")
	}
	if res.FallbackLabel != narrative.Climax {
		t.Errorf("fallback label: got %s, want Climax", res.FallbackLabel)
	}
	if res.Distribution[ci] != 1 {
		t.Errorf("fallback distribution should be one-hot on Climax")
	}
}

func TestAdjustRow_FallbackToSafetyLabel(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()
	s, _ := NewSet(alpha, DefaultConfig(), nil)

	res := s.AdjustRow(make([]float64, alpha.Len()), nil, 0.5)
	if !res.Fallback || res.FallbackLabel != narrative.Description {
		t.Fatalf("got fallback=%v label=%s, want Description", res.Fallback, res.FallbackLabel)
	}
	if math.Abs(sum(res.Distribution)-1) > 1e-12 {
		t.Errorf("distribution sums to %v", sum(res.Distribution))
	}
}

// #endregion adjust-row

// #region construction

func TestNewSet_Validation(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()

	cfg := DefaultConfig()
	cfg.SelfLoopPenalty = 1.5
	if _, err := NewSet(alpha, cfg, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("penalty > 1: expected ErrInvalidConfig, got %v", err)
	}

	bad := Rules{narrative.Climax: {MinProgress: floatPtr(1.2)}}
	if _, err := NewSet(alpha, DefaultConfig(), bad); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("min_progress > 1: expected ErrInvalidRule, got %v", err)
	}

	// Story_End rules are ignored for the legacy alphabet.
	if _, err := NewSet(narrative.LegacyAlphabet(), DefaultConfig(), DefaultRules()); err != nil {
		t.Errorf("legacy alphabet with default rules: %v", err)
	}
}

func TestPassthrough_NoAdjustment(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()
	s := Passthrough(alpha)
	history := []narrative.Label{narrative.Climax}
	if d := s.Weight(0.4, narrative.Climax, history, 0.1); d.Weight != 0.4 {
		t.Errorf("passthrough: got %v, want 0.4", d.Weight)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
Climax:
  max_occurrences: 1
  min_progress: 0.5
Resolution:
  requires_predecessor: Climax
Conflict:
  cooldown: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if r := rules[narrative.Climax]; r.MaxOccurrences == nil || *r.MaxOccurrences != 1 || *r.MinProgress != 0.5 {
		t.Errorf("Climax rule: got %+v", r)
	}
	if r := rules[narrative.Resolution]; r.RequiresPredecessor == nil || *r.RequiresPredecessor != narrative.Climax {
		t.Errorf("Resolution rule: got %+v", r)
	}
	if r := rules[narrative.Conflict]; r.Cooldown == nil || *r.Cooldown != 3 {
		t.Errorf("Conflict rule: got %+v", r)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// #endregion construction
