// Package planner chooses the structural label for each story position.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #region errors

var (
	ErrPlanComplete     = errors.New("plan already produced every position")
	ErrInvalidLength    = errors.New("story length must be positive")
	ErrAlphabetMismatch = errors.New("constraint set and model use different alphabets")
)

// #endregion errors

// #region rand

// Rand is the randomness source for sampling. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// NewRand returns the seeded source runs and replays share, so a recorded
// seed reproduces the same sampled path.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// #endregion rand

// #region selector

// Selector samples labels from a trajectory snapshot under a constraint set.
// It owns its randomness source, so each run builds its own Selector.
type Selector struct {
	model       *narrative.Trajectory
	constraints *constraint.Set
	rng         Rand
	start       narrative.Label
	log         logger.Logger
	metrics     *metrics.Manager
}

// Option configures a Selector.
type Option func(*Selector)

// WithStartLabel overrides the label emitted at position 0.
func WithStartLabel(l narrative.Label) Option {
	return func(s *Selector) { s.start = l }
}

// WithLogger attaches a logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Selector) { s.log = l }
}

// WithMetrics attaches a metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Selector) { s.metrics = m }
}

// NewSelector binds a model snapshot, constraints and randomness source.
// The start label defaults to the first label of the alphabet.
func NewSelector(model *narrative.Trajectory, constraints *constraint.Set, rng Rand, opts ...Option) (*Selector, error) {
	if model == nil {
		return nil, narrative.ErrEmptyTrajectory
	}
	if constraints == nil {
		constraints = constraint.Passthrough(model.Alphabet())
	}
	if !constraints.Alphabet().Equal(model.Alphabet()) {
		return nil, ErrAlphabetMismatch
	}
	s := &Selector{
		model:       model,
		constraints: constraints,
		rng:         rng,
		start:       model.Alphabet().At(0),
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !model.Alphabet().Contains(s.start) {
		return nil, fmt.Errorf("start label %q: %w", s.start, narrative.ErrUnknownLabel)
	}
	return s, nil
}

// Model returns the trajectory snapshot the selector samples from.
func (s *Selector) Model() *narrative.Trajectory { return s.model }

// #endregion selector

// #region sample

// Sample performs inverse-CDF selection: entries are scanned in order and the
// first with positive probability whose cumulative sum reaches r wins.
// Zero-probability entries are never returned. If rounding leaves r above the
// final cumulative sum, the last positive entry is returned.
func Sample(labels []narrative.Label, probs []float64, r float64) narrative.Label {
	var cum float64
	last := len(labels) - 1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		cum += p
		last = i
		if cum >= r {
			return labels[i]
		}
	}
	return labels[last]
}

// #endregion sample

// #region dynamic

// choose runs Dynamic Mode for position.
func (s *Selector) choose(ctx context.Context, position, length int, history []narrative.Label) Choice {
	alpha := s.model.Alphabet()
	m, ok := s.model.MatrixForPosition(position, length)
	if !ok {
		s.metrics.RecordMatrixFallback()
		s.log.Warn(ctx, "position outside model, using first bin",
			logger.Int("position", position), logger.Int("length", length), logger.Int("bins", s.model.BinCount()))
	}

	prev := s.start
	if n := len(history); n > 0 {
		prev = history[n-1]
	}
	row, ok := m.Row(prev)
	if !ok {
		// previous label came from outside the model (e.g. an override path mined
		// with another alphabet); treat every candidate as equally likely
		row = make([]float64, alpha.Len())
		for i := range row {
			row[i] = 1 / float64(len(row))
		}
	}

	progress := narrative.Progress(position, length)
	adj := s.constraints.AdjustRow(row, history, progress)
	if adj.Fallback {
		s.metrics.RecordRowFallback()
		s.log.Warn(ctx, "constraints emptied transition row",
			logger.Int("position", position), logger.String("previous", string(prev)),
			logger.String("fallback", string(adj.FallbackLabel)))
	}

	r := s.rng.Float64()
	label := Sample(alpha.Labels(), adj.Distribution, r)
	return Choice{
		Position:     position,
		Label:        label,
		Mode:         narrative.ModeDynamic,
		Distribution: adj.Distribution,
		Fallback:     adj.Fallback,
		Draw:         r,
	}
}

// #endregion dynamic

// #region most-likely-next

// MostLikelyNext returns the most probable successor of current in the bin
// used by the following position. Ties go to the earlier alphabet label. It
// returns false at the final position or when current is unknown.
func (s *Selector) MostLikelyNext(position, length int, current narrative.Label) (narrative.Label, bool) {
	next := position + 1
	if length <= 0 || next >= length {
		return "", false
	}
	m, _ := s.model.MatrixForPosition(next, length)
	row, ok := m.Row(current)
	if !ok {
		return "", false
	}
	best := 0
	for i, p := range row {
		if p > row[best] {
			best = i
		}
	}
	return s.model.Alphabet().At(best), true
}

// #endregion most-likely-next
