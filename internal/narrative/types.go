package narrative

import "time"

// #region step-mode

// StepMode records how the planner chose a step's label.
type StepMode string

const (
	ModeStart    StepMode = "start"
	ModeOverride StepMode = "override"
	ModeDynamic  StepMode = "dynamic"
)

// #endregion step-mode

// #region step

// Step is one committed position of a generation run. Steps are appended in
// order and never modified; the slice of steps is the run's history.
type Step struct {
	Index      int       `json:"index"`
	Label      Label     `json:"label"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Verified   bool      `json:"verified"`
	Retries    int       `json:"retries"`
	Mode       StepMode  `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
}

// Labels extracts the label sequence from a history.
func Labels(steps []Step) []Label {
	out := make([]Label, len(steps))
	for i, s := range steps {
		out[i] = s.Label
	}
	return out
}

// #endregion step

// #region discovered-path

// DiscoveredPath is a full label sequence that recurred across a corpus.
type DiscoveredPath struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Sequence   []Label `json:"sequence"`
	Frequency  int     `json:"frequency"`
	Percentage float64 `json:"percentage"`
}

// #endregion discovered-path

// #region dataset-stats

// BinTransition is one observed transition count within a bin.
type BinTransition struct {
	Bin   int   `json:"bin"`
	From  Label `json:"from"`
	To    Label `json:"to"`
	Count int   `json:"count"`
}

// DatasetStats summarizes one mining run.
type DatasetStats struct {
	StoriesProcessed   int              `json:"stories_processed"`
	SegmentsClassified int              `json:"segments_classified"`
	RecoveredFailures  int              `json:"recovered_failures"`
	CoercedLabels      int              `json:"coerced_labels"`
	LabelDistribution  map[Label]int    `json:"label_distribution"`
	TopTransitions     []BinTransition  `json:"top_transitions"`
	Paths              []DiscoveredPath `json:"paths"`
}

// FindPath returns the discovered path with the given id.
func (s *DatasetStats) FindPath(id string) (DiscoveredPath, bool) {
	if s == nil {
		return DiscoveredPath{}, false
	}
	for _, p := range s.Paths {
		if p.ID == id {
			return p, true
		}
	}
	return DiscoveredPath{}, false
}

// #endregion dataset-stats
