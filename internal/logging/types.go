package logging

import (
	"time"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region run-entry
// RunEntry is a single row in the run_log table.
type RunEntry struct {
	RunID        string    `json:"run_id"`
	Variant      string    `json:"variant"` // "constrained" | "baseline"
	ModelVersion string    `json:"model_version"`
	OverrideID   string    `json:"override_id,omitempty"`
	Seed         uint64    `json:"seed"`
	Length       int       `json:"length"`
	Status       string    `json:"status"` // "running" | "completed" | "aborted" | "failed"
	Error        string    `json:"error,omitempty"`
	ScoresJSON   string    `json:"-"`
	EvalJSON     string    `json:"-"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
// #endregion run-entry

// #region step-entry
// StepEntry is a single row in the step_log table.
type StepEntry struct {
	RunID      string
	Position   int
	Label      narrative.Label
	Mode       narrative.StepMode
	Text       string
	Confidence float64
	Verified   bool
	Retries    int
	CreatedAt  time.Time
}

// Step converts the row back to a committed step.
func (e StepEntry) Step() narrative.Step {
	return narrative.Step{
		Index:      e.Position,
		Label:      e.Label,
		Text:       e.Text,
		Confidence: e.Confidence,
		Verified:   e.Verified,
		Retries:    e.Retries,
		Mode:       e.Mode,
		Timestamp:  e.CreatedAt,
	}
}
// #endregion step-entry

// StatusRunning marks a run_log row whose run has not finished.
const StatusRunning = "running"
