// Package coordinator drives generation runs: it plans each story position,
// asks the generator for text, verifies it with bounded retries, commits the
// step and finally scores the story.
package coordinator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/eval"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/planner"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #endregion

// #region coordinator-struct

// Coordinator is safe for concurrent runs: every run owns its selector,
// randomness source and history.
type Coordinator struct {
	generator   collab.Generator
	verifier    collab.Verifier
	evaluator   collab.Evaluator
	constraints *constraint.Set
	cfg         Config
	harness     *eval.EvalHarness
	recorder    Recorder
	startLabel  narrative.Label
	log         logger.Logger
	metrics     *metrics.Manager
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder persists runs and steps as they happen.
func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

// WithEvalConfig replaces the internal evaluation thresholds.
func WithEvalConfig(cfg eval.EvalConfig) Option {
	return func(c *Coordinator) { c.harness = eval.NewEvalHarness(cfg) }
}

// WithStartLabel sets the label emitted at position 0.
func WithStartLabel(l narrative.Label) Option { return func(c *Coordinator) { c.startLabel = l } }

// WithLogger attaches a logger.
func WithLogger(l logger.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithMetrics attaches a metrics manager.
func WithMetrics(m *metrics.Manager) Option { return func(c *Coordinator) { c.metrics = m } }

// #endregion

// #region constructor

// New wires a coordinator. The suite must provide a Generator and Verifier;
// the Evaluator is optional. constraints apply to every constrained run.
func New(suite collab.Suite, constraints *constraint.Set, cfg Config, opts ...Option) (*Coordinator, error) {
	if suite.Generator == nil || suite.Verifier == nil {
		return nil, ErrMissingCollaborator
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries %d: must not be negative", cfg.MaxRetries)
	}
	c := &Coordinator{
		generator:   suite.Generator,
		verifier:    suite.Verifier,
		evaluator:   suite.Evaluator,
		constraints: constraints,
		cfg:         cfg,
		harness:     eval.NewEvalHarness(eval.DefaultEvalConfig()),
		startLabel:  narrative.Introduction,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// #endregion

// #region run

// Run executes one constrained run. A cancelled run returns StatusAborted with
// its committed steps and a nil error. A run whose collaborators could not be
// reached returns StatusFailed and an error wrapping ErrCollaboratorUnavailable.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	return c.run(ctx, req, c.constraints, VariantConstrained)
}

// Compare runs the constrained variant and an unconstrained baseline
// concurrently over the same model snapshot and seed.
func (c *Coordinator) Compare(ctx context.Context, req Request) (*Comparison, error) {
	if req.Model == nil {
		return nil, ErrNoModel
	}
	var cmp Comparison
	var g errgroup.Group
	g.Go(func() error {
		res, err := c.run(ctx, req, c.constraints, VariantConstrained)
		cmp.Constrained = res
		return err
	})
	g.Go(func() error {
		res, err := c.run(ctx, req, constraint.Passthrough(req.Model.Alphabet()), VariantBaseline)
		cmp.Baseline = res
		return err
	})
	err := g.Wait()
	return &cmp, err
}

func (c *Coordinator) run(ctx context.Context, req Request, cs *constraint.Set, variant Variant) (*Result, error) {
	if req.Model == nil {
		return nil, ErrNoModel
	}
	length := req.Length
	if length == 0 {
		length = c.cfg.DefaultLength
	}

	res := &Result{
		RunID:        uuid.NewString(),
		Variant:      variant,
		ModelVersion: req.ModelVersion,
		Seed:         req.Seed,
		Length:       length,
		StartedAt:    c.now(),
	}
	if req.Override != nil {
		res.OverrideID = req.Override.ID
	}
	log := c.log.Named(string(variant))

	if cs == nil {
		cs = constraint.Passthrough(req.Model.Alphabet())
	}
	sel, err := planner.NewSelector(req.Model, cs, planner.NewRand(req.Seed),
		planner.WithStartLabel(c.startLabel), planner.WithLogger(log), planner.WithMetrics(c.metrics))
	if err != nil {
		return nil, fmt.Errorf("new selector: %w", err)
	}
	plan, err := sel.Begin(length, req.Override)
	if err != nil {
		return nil, err
	}

	c.record(ctx, log, "start run", func() error { return c.recorder.StartRun(ctx, res) })
	log.Info(ctx, "run started", logger.String("run_id", res.RunID), logger.Int("length", length),
		logger.String("model_version", req.ModelVersion), logger.String("override", res.OverrideID))

	var story strings.Builder
	history := make([]narrative.Label, 0, length)
	for !plan.Done() {
		// Plan
		if ctx.Err() != nil {
			return c.abort(ctx, log, res, story.String()), nil
		}
		choice, err := plan.Next(ctx, history)
		if err != nil {
			return c.fail(ctx, log, res, story.String(), err)
		}
		foreshadow, _ := plan.Foreshadow(choice.Position, choice.Label)

		// Generate / Verify
		out, err := c.attempt(ctx, log, collab.GenerateRequest{
			Context:    story.String(),
			Target:     choice.Label,
			Position:   choice.Position,
			Length:     length,
			Foreshadow: foreshadow,
		})
		switch {
		case errors.Is(err, errAborted):
			return c.abort(ctx, log, res, story.String()), nil
		case err != nil:
			return c.fail(ctx, log, res, story.String(), err)
		}

		// Commit
		step := narrative.Step{
			Index:      choice.Position,
			Label:      choice.Label,
			Text:       out.text,
			Confidence: out.verdict.Confidence,
			Verified:   out.verdict.Verified,
			Retries:    out.retries,
			Mode:       choice.Mode,
			Timestamp:  c.now(),
		}
		res.Steps = append(res.Steps, step)
		history = append(history, step.Label)
		if story.Len() > 0 && step.Text != "" {
			story.WriteString("\n\n")
		}
		story.WriteString(step.Text)
		c.metrics.RecordStep(string(step.Mode), step.Verified)
		c.record(ctx, log, "record step", func() error { return c.recorder.RecordStep(ctx, res.RunID, step) })
		if !step.Verified {
			log.Warn(ctx, "committed unverified step", logger.Int("position", step.Index),
				logger.String("label", string(step.Label)), logger.Int("retries", step.Retries))
		}
	}
	res.Text = story.String()

	// Score
	if ctx.Err() != nil {
		return c.abort(ctx, log, res, res.Text), nil
	}
	if c.evaluator != nil {
		scores, err := c.evaluator.Evaluate(ctx, res.Text, res.Steps)
		switch {
		case err != nil && ctx.Err() != nil:
			return c.abort(ctx, log, res, res.Text), nil
		case err != nil:
			c.metrics.RecordAttemptError("evaluate")
			log.Warn(ctx, "evaluator failed, story left unscored", logger.Error(err))
		default:
			res.Scores = &scores
		}
	}
	ev := c.harness.Run(res.Steps, req.Model)
	res.Eval = &ev

	return c.finish(ctx, log, res, StatusCompleted), nil
}

// #endregion

// #region attempt

var errAborted = errors.New("run aborted")

// attemptOutcome pairs the newest generated text with its verdict. retries
// counts every retry spent at the position, so when later attempts fail on
// transport the text and verdict come from an earlier attempt than retries
// suggests.
type attemptOutcome struct {
	text    string
	verdict collab.Verdict
	retries int
}

// attempt runs Generate then Verify up to MaxRetries+1 times. It returns the
// first verified text, or the last attempt's text unverified once retries are
// exhausted. Collaborator errors use up an attempt; if every attempt errored
// the position cannot be committed.
func (c *Coordinator) attempt(ctx context.Context, log logger.Logger, req collab.GenerateRequest) (attemptOutcome, error) {
	var last attemptOutcome
	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	transportErrors := 0

	for i := 0; i < attempts; i++ {
		last.retries = i
		if ctx.Err() != nil {
			return last, errAborted
		}
		c.metrics.RecordAttempt(i > 0)

		text, err := c.generator.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return last, errAborted
			}
			c.metrics.RecordAttemptError("generate")
			log.Warn(ctx, "generate failed", logger.Int("position", req.Position), logger.Int("attempt", i), logger.Error(err))
			transportErrors++
			lastErr = err
			continue
		}
		last.text = text
		last.verdict = collab.Verdict{}

		if strings.TrimSpace(text) == "" {
			log.Debug(ctx, "empty text rejected", logger.Int("position", req.Position), logger.Int("attempt", i))
			continue
		}

		if ctx.Err() != nil {
			return last, errAborted
		}
		v, err := c.verifier.Verify(ctx, text, req.Target)
		if err != nil {
			if ctx.Err() != nil {
				return last, errAborted
			}
			c.metrics.RecordAttemptError("verify")
			log.Warn(ctx, "verify failed", logger.Int("position", req.Position), logger.Int("attempt", i), logger.Error(err))
			transportErrors++
			lastErr = err
			continue
		}
		last.verdict = v
		if v.Verified {
			return last, nil
		}
		log.Debug(ctx, "verification rejected", logger.Int("position", req.Position),
			logger.String("target", string(req.Target)), logger.Int("attempt", i))
	}

	if transportErrors == attempts {
		return last, fmt.Errorf("position %d: %w: %w", req.Position, ErrCollaboratorUnavailable, lastErr)
	}
	last.verdict.Verified = false
	return last, nil
}

// #endregion

// #region terminal-states

func (c *Coordinator) abort(ctx context.Context, log logger.Logger, res *Result, text string) *Result {
	res.Text = text
	res.Error = context.Cause(ctx).Error()
	return c.finish(ctx, log, res, StatusAborted)
}

func (c *Coordinator) fail(ctx context.Context, log logger.Logger, res *Result, text string, err error) (*Result, error) {
	res.Text = text
	res.Error = err.Error()
	return c.finish(ctx, log, res, StatusFailed), err
}

func (c *Coordinator) finish(ctx context.Context, log logger.Logger, res *Result, status Status) *Result {
	res.Status = status
	res.FinishedAt = c.now()
	c.metrics.RecordRun(string(status))
	// the run may have ended because ctx was cancelled; the record must still land
	rctx := context.WithoutCancel(ctx)
	c.record(rctx, log, "finish run", func() error { return c.recorder.FinishRun(rctx, res) })

	fields := []logger.Field{
		logger.String("run_id", res.RunID), logger.String("status", string(status)),
		logger.Int("steps", len(res.Steps)),
	}
	if res.Eval != nil {
		fields = append(fields, logger.Bool("eval_passed", res.Eval.Passed), logger.String("eval_reason", res.Eval.Reason))
	}
	log.Info(ctx, "run finished", fields...)
	return res
}

func (c *Coordinator) record(ctx context.Context, log logger.Logger, what string, fn func() error) {
	if c.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		log.Error(ctx, what+" failed", logger.Error(err))
	}
}

// #endregion
