package narrative

import (
	"errors"
	"fmt"
	"math"
)

// #region constants

const (
	// DefaultBins is the number of progress slices in a trajectory.
	DefaultBins = 20

	// maxProgress keeps the final position inside the last bin.
	maxProgress = 0.999
)

var ErrEmptyTrajectory = errors.New("trajectory has no bins")

// #endregion constants

// #region trajectory

// Trajectory is an ordered sequence of transition matrices, one per
// contiguous slice of story progress. It is never mutated after
// construction; a refresh builds a new Trajectory and swaps the reference.
type Trajectory struct {
	alphabet *Alphabet
	bins     []*Matrix
}

// NewTrajectory validates that every bin shares alpha and is row-valid.
func NewTrajectory(alpha *Alphabet, bins []*Matrix) (*Trajectory, error) {
	if alpha == nil || alpha.Len() == 0 {
		return nil, ErrEmptyAlphabet
	}
	if len(bins) == 0 {
		return nil, ErrEmptyTrajectory
	}
	out := make([]*Matrix, len(bins))
	for i, m := range bins {
		if m == nil {
			return nil, fmt.Errorf("bin %d is nil: %w", i, ErrEmptyTrajectory)
		}
		if !m.Alphabet().Equal(alpha) {
			return nil, fmt.Errorf("bin %d: %w", i, ErrShapeMismatch)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("bin %d: %w", i, err)
		}
		out[i] = m
	}
	return &Trajectory{alphabet: alpha, bins: out}, nil
}

// Alphabet returns the label set shared by every bin.
func (t *Trajectory) Alphabet() *Alphabet { return t.alphabet }

// BinCount returns B.
func (t *Trajectory) BinCount() int { return len(t.bins) }

// Bin returns matrix i.
func (t *Trajectory) Bin(i int) *Matrix { return t.bins[i] }

// Progress maps a 0-based position to a fraction of total length clamped to [0, 0.999].
func Progress(position, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(position) / float64(total)
	return math.Min(math.Max(p, 0), maxProgress)
}

// BinIndex returns floor(progress * B) for a position within total.
func (t *Trajectory) BinIndex(position, total int) int {
	return int(math.Floor(Progress(position, total) * float64(len(t.bins))))
}

// MatrixForPosition returns the matrix valid at position. The second return is
// false when the request could not be mapped (non-positive total or an index
// outside the model); bin 0 is returned in that case and the caller should
// report the fallback.
func (t *Trajectory) MatrixForPosition(position, total int) (*Matrix, bool) {
	if total <= 0 {
		return t.bins[0], false
	}
	idx := t.BinIndex(position, total)
	if idx < 0 || idx >= len(t.bins) {
		return t.bins[0], false
	}
	return t.bins[idx], true
}

// #endregion trajectory
