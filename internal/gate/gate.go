// Package gate decides whether a newly trained or imported model may replace
// the active one.
package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
)

// #region gate
// Gate evaluates whether a proposed model should be promoted or rejected.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores soft signals. active is the
// current model, nil when none exists. mined selects the corpus-statistics
// checks, which imported models skip.
func (g *Gate) Evaluate(active *state.Model, proposed state.Model, mined bool) GateDecision {
	var vetoes []VetoSignal
	stats := proposed.Stats

	// --- Hard veto pass ---

	// 1. Corpus size
	if mined && stats.StoriesProcessed < g.config.MinStories {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoTooFewStories,
			Reason: fmt.Sprintf("%d stories mined, need %d", stats.StoriesProcessed, g.config.MinStories),
		})
	}

	// 2. Classifier reliability
	if mined && stats.SegmentsClassified > 0 {
		if r := ratio(stats.RecoveredFailures, stats.SegmentsClassified); r > g.config.MaxRecoveredRatio {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoClassifierFailure,
				Reason: fmt.Sprintf("recovered failure ratio %.3f exceeds cap %.3f", r, g.config.MaxRecoveredRatio),
			})
		}
		if r := ratio(stats.CoercedLabels, stats.SegmentsClassified); r > g.config.MaxCoercedRatio {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoCoercion,
				Reason: fmt.Sprintf("coerced label ratio %.3f exceeds cap %.3f", r, g.config.MaxCoercedRatio),
			})
		}
	}

	// 3. Label set and drift against the active model
	drift := -1.0
	if active != nil && active.Trajectory != nil {
		sameAlphabet := active.Trajectory.Alphabet().Equal(proposed.Trajectory.Alphabet())
		if !sameAlphabet && !g.config.AllowAlphabetChange {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoAlphabetChange,
				Reason: fmt.Sprintf("alphabet changes from %d to %d labels", active.Trajectory.Alphabet().Len(), proposed.Trajectory.Alphabet().Len()),
			})
		}
		if sameAlphabet && active.Trajectory.BinCount() == proposed.Trajectory.BinCount() {
			drift = Drift(active.Trajectory, proposed.Trajectory)
			if drift > g.config.MaxDrift {
				vetoes = append(vetoes, VetoSignal{
					Type:   VetoDrift,
					Reason: fmt.Sprintf("drift %.4f exceeds cap %.4f", drift, g.config.MaxDrift),
				})
			}
		}
	}

	// If any hard vetoes, reject immediately
	if len(vetoes) > 0 {
		return GateDecision{
			Action:      ActionReject,
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Drift:       drift,
		}
	}

	// --- Soft scoring ---
	softScore := computeSoftScore(proposed, drift)

	return GateDecision{
		Action:    ActionAccept,
		Reason:    fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		Drift:     drift,
		SoftScore: softScore,
	}
}

// #endregion gate

// #region helpers

// Drift is the mean L1 distance between corresponding rows of two trajectories
// over the same alphabet and bin count. It ranges over [0, 2].
func Drift(a, b *narrative.Trajectory) float64 {
	var sum float64
	var rows int
	for i := 0; i < a.BinCount(); i++ {
		ra, rb := a.Bin(i).Rows(), b.Bin(i).Rows()
		for r := range ra {
			for c := range ra[r] {
				sum += math.Abs(ra[r][c] - rb[r][c])
			}
			rows++
		}
	}
	if rows == 0 {
		return 0
	}
	return sum / float64(rows)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// computeSoftScore produces a 0-1 composite from label coverage, path
// concentration and drift stability. Logged but does not block.
func computeSoftScore(proposed state.Model, drift float64) float64 {
	var score float64

	// Coverage component: share of the alphabet observed in the corpus (weight 0.4)
	if n := proposed.Trajectory.Alphabet().Len(); n > 0 && len(proposed.Stats.LabelDistribution) > 0 {
		seen := 0
		for _, c := range proposed.Stats.LabelDistribution {
			if c > 0 {
				seen++
			}
		}
		score += 0.4 * math.Min(1, float64(seen)/float64(n))
	} else {
		score += 0.2 // neutral without corpus statistics
	}

	// Stability component: smaller drift is better (weight 0.3)
	switch {
	case drift < 0:
		score += 0.15 // nothing to compare against
	default:
		score += 0.3 * math.Max(0, 1-drift/2)
	}

	// Path component: a dominant archetype means a narrow corpus (weight 0.3)
	if len(proposed.Stats.Paths) > 0 {
		score += 0.3 * (1 - proposed.Stats.Paths[0].Percentage/100)
	} else {
		score += 0.15
	}

	return score
}

// #endregion helpers
