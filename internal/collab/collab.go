// Package collab defines the contracts of the external collaborators the
// engine depends on. The core never produces prose itself.
package collab

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region errors

// ErrUnavailable marks a collaborator that could not be reached or answered
// with a transport-level failure.
var ErrUnavailable = errors.New("collaborator unavailable")

// #endregion errors

// #region contracts

// Classifier labels a text segment with one structural label.
// It may return a label outside the configured alphabet; callers coerce.
type Classifier interface {
	Classify(ctx context.Context, text string) (narrative.Label, error)
}

// GenerateRequest carries everything a Generator sees for one position.
type GenerateRequest struct {
	Context    string          `json:"context"`
	Target     narrative.Label `json:"target"`
	Position   int             `json:"position"`
	Length     int             `json:"length"`
	Foreshadow narrative.Label `json:"foreshadow,omitempty"` // advisory, may be empty
}

// Generator produces the text for one story position.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Verdict is a verifier's judgement of generated text.
type Verdict struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// Verifier decides whether text realizes the target label.
type Verifier interface {
	Verify(ctx context.Context, text string, target narrative.Label) (Verdict, error)
}

// Scores is an evaluator's opinion of a finished story. Keys are evaluator-defined.
type Scores struct {
	Values map[string]float64 `json:"values"`
	Notes  string             `json:"notes,omitempty"`
}

// Evaluator scores a finished story once.
type Evaluator interface {
	Evaluate(ctx context.Context, text string, steps []narrative.Step) (Scores, error)
}

// #endregion contracts

// #region suite

// Suite bundles the collaborators a deployment wires together. Any member may
// be nil when the command using the suite does not need it.
type Suite struct {
	Classifier Classifier
	Generator  Generator
	Verifier   Verifier
	Evaluator  Evaluator
}

// #endregion suite
