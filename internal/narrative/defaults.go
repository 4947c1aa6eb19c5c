package narrative

import "math"

// #region affinity

// affinity describes where in the story a label tends to appear.
type affinity struct {
	peak  float64 // progress at which the label is most likely
	width float64 // spread around the peak
	base  float64 // weight that never decays, keeps the label reachable
}

// storyShape is the hand-authored arc used before any corpus has been mined.
var storyShape = map[Label]affinity{
	Introduction:     {peak: 0.00, width: 0.10, base: 0.02},
	IncitingIncident: {peak: 0.15, width: 0.10, base: 0.02},
	RisingAction:     {peak: 0.35, width: 0.20, base: 0.10},
	Conflict:         {peak: 0.50, width: 0.20, base: 0.08},
	Dialogue:         {peak: 0.50, width: 0.60, base: 0.25},
	Description:      {peak: 0.30, width: 0.60, base: 0.20},
	Twist:            {peak: 0.62, width: 0.10, base: 0.02},
	Revelation:       {peak: 0.70, width: 0.10, base: 0.02},
	Climax:           {peak: 0.80, width: 0.08, base: 0.01},
	Resolution:       {peak: 0.90, width: 0.08, base: 0.01},
	StoryEnd:         {peak: 1.00, width: 0.05, base: 0.01},
}

func (a affinity) at(p float64) float64 {
	d := (p - a.peak) / a.width
	return a.base + math.Exp(-d*d)
}

// #endregion affinity

// #region default-trajectory

// DefaultTrajectory builds the startup model for alpha with the given number of
// bins (DefaultBins when bins <= 0). Each row favours labels whose affinity peaks
// near the bin's midpoint; self-transitions are halved. Labels without an
// authored affinity get a flat weight.
func DefaultTrajectory(alpha *Alphabet, bins int) (*Trajectory, error) {
	if bins <= 0 {
		bins = DefaultBins
	}
	n := alpha.Len()
	matrices := make([]*Matrix, bins)
	for b := 0; b < bins; b++ {
		p := (float64(b) + 0.5) / float64(bins)
		rows := make([][]float64, n)
		for i := 0; i < n; i++ {
			rows[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				w := 0.5
				if a, ok := storyShape[alpha.At(j)]; ok {
					w = a.at(p)
				}
				if i == j {
					w *= 0.5
				}
				rows[i][j] = w
			}
		}
		m, err := NewMatrixFromRows(alpha, rows)
		if err != nil {
			return nil, err
		}
		matrices[b] = m
	}
	return NewTrajectory(alpha, matrices)
}

// #endregion default-trajectory
