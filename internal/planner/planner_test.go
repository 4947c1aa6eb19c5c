package planner

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region helpers

// fixedRand replays a scripted sequence of draws, repeating the last one.
type fixedRand struct {
	draws []float64
	i     int
}

func (f *fixedRand) Float64() float64 {
	v := f.draws[min(f.i, len(f.draws)-1)]
	f.i++
	return v
}

func scenarioModel(t *testing.T) (*narrative.Alphabet, *narrative.Trajectory) {
	t.Helper()
	alpha, _ := narrative.NewAlphabet("A", "B", "C")
	m, err := narrative.NewMatrixFromRows(alpha, [][]float64{
		{0.1, 0.8, 0.1},
		{0.3, 0.3, 0.4},
		{0.4, 0.4, 0.2},
	})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	tr, err := narrative.NewTrajectory(alpha, []*narrative.Matrix{m})
	if err != nil {
		t.Fatalf("trajectory: %v", err)
	}
	return alpha, tr
}

func defaultSelector(t *testing.T, seed uint64) *Selector {
	t.Helper()
	alpha := narrative.ExtendedAlphabet()
	tr, err := narrative.DefaultTrajectory(alpha, 20)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	cs, err := constraint.NewSet(alpha, constraint.DefaultConfig(), constraint.DefaultRules())
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	s, err := NewSelector(tr, cs, rand.New(rand.NewPCG(seed, seed^0x9e3779b9)))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	return s
}

// #endregion helpers

// #region sample-tests

func TestSample_InverseCDF(t *testing.T) {
	labels := []narrative.Label{"A", "B", "C"}
	probs := []float64{0.0526, 0.8421, 0.1053}
	tests := []struct {
		r    float64
		want narrative.Label
	}{
		{0.0, "A"},
		{0.05, "A"},
		{0.5, "B"},
		{0.8947, "B"},
		{0.9, "C"},
		{1.0, "C"},
	}
	for _, tt := range tests {
		if got := Sample(labels, probs, tt.r); got != tt.want {
			t.Errorf("r=%v: got %s, want %s", tt.r, got, tt.want)
		}
	}
}

func TestSample_RoundingFallsBackToLast(t *testing.T) {
	labels := []narrative.Label{"A", "B"}
	if got := Sample(labels, []float64{0.3, 0.3}, 0.99); got != "B" {
		t.Errorf("got %s, want B", got)
	}
}

func TestSample_SkipsZeroProbability(t *testing.T) {
	labels := []narrative.Label{"Introduction", "A", "B", "Story_End"}
	probs := []float64{0, 0.3, 0.7 - 1e-15, 0}
	tests := []struct {
		name string
		r    float64
		want narrative.Label
	}{
		{"zero draw", 0, "A"},
		{"draw past rounded sum", math.Nextafter(1, 0), "B"},
		{"draw of one", 1, "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sample(labels, probs, tt.r); got != tt.want {
				t.Errorf("r=%v: got %s, want %s", tt.r, got, tt.want)
			}
		})
	}
}

func TestSelector_ZeroDrawNeverPicksGatedLabel(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()
	tr, err := narrative.DefaultTrajectory(alpha, 20)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	cs, err := constraint.NewSet(alpha, constraint.DefaultConfig(), constraint.DefaultRules())
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	s, err := NewSelector(tr, cs, &fixedRand{draws: []float64{0}})
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	choices, err := s.Walk(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, ch := range choices[1:] {
		if ch.Fallback {
			continue
		}
		i, _ := alpha.Index(ch.Label)
		if p := ch.Distribution[i]; p <= 0 {
			t.Errorf("position %d: picked %s with probability %v", ch.Position, ch.Label, p)
		}
	}
}

// #endregion sample-tests

// #region scenario-tests

func TestSelector_ScenarioA(t *testing.T) {
	alpha, tr := scenarioModel(t)
	cfg := constraint.DefaultConfig()
	cfg.SelfLoopPenalty = 0.5
	cfg.SafetyLabel = "A"
	cs, err := constraint.NewSet(alpha, cfg, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	s, err := NewSelector(tr, cs, &fixedRand{draws: []float64{0.9}})
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	plan, _ := s.Begin(2, nil)
	first, _ := plan.Next(context.Background(), nil)
	if first.Label != "A" || first.Mode != narrative.ModeStart {
		t.Fatalf("position 0: got %s/%s, want A/start", first.Label, first.Mode)
	}
	c, err := plan.Next(context.Background(), []narrative.Label{"A"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Label != "C" {
		t.Errorf("r=0.9: got %s, want C (dist=%v)", c.Label, c.Distribution)
	}
	if _, err := plan.Next(context.Background(), []narrative.Label{"A", "C"}); !errors.Is(err, ErrPlanComplete) {
		t.Errorf("expected ErrPlanComplete, got %v", err)
	}
}

func TestSelector_ScenarioB_ClimaxNeverResampled(t *testing.T) {
	alpha := narrative.ExtendedAlphabet()
	rows := make([][]float64, alpha.Len())
	ci, _ := alpha.Index(narrative.Climax)
	for i := range rows {
		rows[i] = make([]float64, alpha.Len())
		for j := range rows[i] {
			rows[i][j] = 0.01
		}
		rows[i][ci] = 100 // Climax dominates every row
	}
	m, _ := narrative.NewMatrixFromRows(alpha, rows)
	tr, _ := narrative.NewTrajectory(alpha, []*narrative.Matrix{m})

	cs, _ := constraint.NewSet(alpha, constraint.DefaultConfig(), constraint.Rules{
		narrative.Climax: {MaxOccurrences: ptr(1)},
	})
	s, _ := NewSelector(tr, cs, rand.New(rand.NewPCG(7, 11)))

	history := []narrative.Label{narrative.Introduction, narrative.Conflict, narrative.Climax}
	for i := 0; i < 500; i++ {
		plan, _ := s.Begin(10, nil)
		for plan.Position() < 5 {
			plan.position++
		}
		c, _ := plan.Next(context.Background(), history)
		if c.Label == narrative.Climax {
			t.Fatalf("draw %d selected Climax after max occurrences", i)
		}
		if c.Distribution[ci] != 0 {
			t.Fatalf("Climax probability: got %v, want 0", c.Distribution[ci])
		}
	}
}

func ptr[T any](v T) *T { return &v }

// #endregion scenario-tests

// #region determinism-tests

func TestSelector_DeterministicUnderSeed(t *testing.T) {
	ctx := context.Background()
	a, err := defaultSelector(t, 42).Walk(ctx, 20, nil)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	b, _ := defaultSelector(t, 42).Walk(ctx, 20, nil)
	if len(a) != 20 || len(b) != 20 {
		t.Fatalf("expected 20 choices, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Label != b[i].Label {
			t.Fatalf("position %d: %s vs %s", i, a[i].Label, b[i].Label)
		}
	}
}

func TestSelector_WalkRespectsHardGates(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(0); seed < 50; seed++ {
		choices, err := defaultSelector(t, seed).Walk(ctx, 20, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		seen := map[narrative.Label]int{}
		for i, c := range choices {
			switch {
			case c.Fallback:
			case c.Label == narrative.Resolution:
				if seen[narrative.Climax] == 0 {
					t.Fatalf("seed %d pos %d: Resolution before Climax", seed, i)
				}
			case c.Label == narrative.StoryEnd:
				if seen[narrative.Resolution] == 0 {
					t.Fatalf("seed %d pos %d: Story_End before Resolution", seed, i)
				}
			}
			seen[c.Label]++
		}
		if seen[narrative.Climax] > 1 {
			t.Fatalf("seed %d: Climax chosen %d times", seed, seen[narrative.Climax])
		}
		if choices[0].Label != narrative.Introduction {
			t.Fatalf("seed %d: start label %s", seed, choices[0].Label)
		}
	}
}

// #endregion determinism-tests

// #region override-tests

func TestPlan_OverrideThenDynamic(t *testing.T) {
	s := defaultSelector(t, 1)
	override := &narrative.DiscoveredPath{
		ID:       "p1",
		Sequence: []narrative.Label{narrative.Introduction, narrative.Dialogue, narrative.Conflict},
	}
	choices, err := s.Walk(context.Background(), 6, override)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if choices[0].Mode != narrative.ModeStart {
		t.Errorf("position 0 mode: got %s", choices[0].Mode)
	}
	for i := 1; i < 3; i++ {
		if choices[i].Mode != narrative.ModeOverride || choices[i].Label != override.Sequence[i] {
			t.Errorf("position %d: got %s/%s, want %s/override", i, choices[i].Label, choices[i].Mode, override.Sequence[i])
		}
	}
	for i := 3; i < 6; i++ {
		if choices[i].Mode != narrative.ModeDynamic {
			t.Errorf("position %d: mode %s, want dynamic", i, choices[i].Mode)
		}
	}
}

func TestBegin_InvalidLength(t *testing.T) {
	s := defaultSelector(t, 1)
	if _, err := s.Begin(0, nil); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

// #endregion override-tests

// #region most-likely-next-tests

func TestMostLikelyNext(t *testing.T) {
	alpha, tr := scenarioModel(t)
	s, _ := NewSelector(tr, constraint.Passthrough(alpha), &fixedRand{draws: []float64{0.5}})

	if got, ok := s.MostLikelyNext(0, 5, "A"); !ok || got != "B" {
		t.Errorf("A: got %s/%v, want B", got, ok)
	}
	// tie between A and B resolved by alphabet order
	if got, ok := s.MostLikelyNext(0, 5, "C"); !ok || got != "A" {
		t.Errorf("C: got %s/%v, want A", got, ok)
	}
	if _, ok := s.MostLikelyNext(4, 5, "A"); ok {
		t.Error("final position should return none")
	}
	if _, ok := s.MostLikelyNext(1, 5, "Z"); ok {
		t.Error("unknown label should return none")
	}
}

func TestPlan_ForeshadowPrefersOverride(t *testing.T) {
	s := defaultSelector(t, 3)
	override := &narrative.DiscoveredPath{Sequence: []narrative.Label{narrative.Introduction, narrative.Twist}}
	plan, _ := s.Begin(5, override)
	if got, ok := plan.Foreshadow(0, narrative.Introduction); !ok || got != narrative.Twist {
		t.Errorf("got %s/%v, want Twist", got, ok)
	}
}

// #endregion most-likely-next-tests

func TestNewSelector_AlphabetMismatch(t *testing.T) {
	_, tr := scenarioModel(t)
	cs, _ := constraint.NewSet(narrative.ExtendedAlphabet(), constraint.DefaultConfig(), nil)
	if _, err := NewSelector(tr, cs, &fixedRand{draws: []float64{0}}); !errors.Is(err, ErrAlphabetMismatch) {
		t.Errorf("expected ErrAlphabetMismatch, got %v", err)
	}
}
