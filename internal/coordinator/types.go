package coordinator

// #region imports
import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/eval"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #endregion

// #region errors

var (
	// ErrCollaboratorUnavailable ends a run when no attempt at a position
	// reached the generator and verifier.
	ErrCollaboratorUnavailable = errors.New("generation collaborators unavailable")
	ErrNoModel                 = errors.New("no trajectory model")
	ErrMissingCollaborator     = errors.New("generator and verifier are required")
)

// #endregion

// #region status

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Variant distinguishes a constrained run from its unconstrained baseline.
type Variant string

const (
	VariantConstrained Variant = "constrained"
	VariantBaseline    Variant = "baseline"
)

// #endregion

// #region config

// Config bounds a run.
type Config struct {
	MaxRetries    int `koanf:"max_retries"`    // retries after the first attempt, per position
	DefaultLength int `koanf:"default_length"` // story length when a request leaves it zero
}

// DefaultConfig returns the default bounds: 2 retries, so 3 attempts per position.
func DefaultConfig() Config {
	return Config{MaxRetries: 2, DefaultLength: 15}
}

// #endregion

// #region request

// Request describes one run. Model is a snapshot the caller captured once;
// the run never reloads it.
type Request struct {
	Model        *narrative.Trajectory
	ModelVersion string
	Override     *narrative.DiscoveredPath
	Length       int
	Seed         uint64
}

// #endregion

// #region result

// Result is everything a run produced. Steps are kept on abort and failure.
type Result struct {
	RunID        string           `json:"run_id"`
	Variant      Variant          `json:"variant"`
	ModelVersion string           `json:"model_version,omitempty"`
	OverrideID   string           `json:"override_id,omitempty"`
	Seed         uint64           `json:"seed"`
	Length       int              `json:"length"`
	Status       Status           `json:"status"`
	Steps        []narrative.Step `json:"steps"`
	Text         string           `json:"text"`
	Scores       *collab.Scores   `json:"scores,omitempty"`
	Eval         *eval.EvalResult `json:"eval,omitempty"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Labels returns the committed label sequence.
func (r *Result) Labels() []narrative.Label { return narrative.Labels(r.Steps) }

// Comparison pairs a constrained run with its baseline.
type Comparison struct {
	Constrained *Result `json:"constrained"`
	Baseline    *Result `json:"baseline"`
}

// #endregion

// #region recorder

// Recorder persists run progress. Recording failures are logged and never
// fail the run.
type Recorder interface {
	StartRun(ctx context.Context, res *Result) error
	RecordStep(ctx context.Context, runID string, step narrative.Step) error
	FinishRun(ctx context.Context, res *Result) error
}

// #endregion
