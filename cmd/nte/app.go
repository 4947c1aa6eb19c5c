package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/codec"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab/heuristic"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab/llm"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/config"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #region app

// app is what every command shares once configuration is loaded.
type app struct {
	cfg     *config.Config
	alpha   *narrative.Alphabet
	log     logger.Logger
	metrics *metrics.Manager
	out     io.Writer
}

var cli app

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.Init()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	alpha, err := cfg.AlphabetSet()
	if err != nil {
		return err
	}
	cli = app{
		cfg:     cfg,
		alpha:   alpha,
		log:     logger.Named("nte"),
		metrics: metrics.NewManager(),
		out:     cmd.OutOrStdout(),
	}
	return nil
}

// #endregion app

// #region wiring

func (a *app) openStore() (*state.Store, error) {
	return state.NewStore(a.cfg.DBPath)
}

// suite builds the configured collaborators. close releases any connection.
func (a *app) suite() (collab.Suite, func() error, error) {
	noop := func() error { return nil }
	switch a.cfg.Collaborators {
	case config.BackendLLM:
		c, err := llm.New(a.cfg.LLM, a.alpha, logger.Named("llm"), a.metrics)
		if err != nil {
			return collab.Suite{}, noop, err
		}
		return c.Suite(), noop, nil
	case config.BackendGRPC:
		c, err := codec.NewClient(a.cfg.GRPCAddr)
		if err != nil {
			return collab.Suite{}, noop, err
		}
		return c.Suite(), c.Close, nil
	default:
		return collab.Suite{
			Classifier: heuristic.NewClassifier(a.alpha),
			Verifier:   heuristic.NewVerifier(a.alpha),
			Evaluator:  heuristic.NewEvaluator(),
		}, noop, nil
	}
}

// activeModel returns the active stored version. Without one it falls back to
// the built-in default trajectory, reported with an empty version id.
func (a *app) activeModel(store *state.Store) (state.ModelVersion, error) {
	v, err := store.GetCurrent()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, state.ErrNoActiveModel) {
		return state.ModelVersion{}, err
	}
	traj, err := narrative.DefaultTrajectory(a.alpha, narrative.DefaultBins)
	if err != nil {
		return state.ModelVersion{}, err
	}
	a.log.Warn(context.Background(), "no trained model, using the default trajectory", logger.String("db", a.cfg.DBPath))
	return state.ModelVersion{Source: "default", Model: state.Model{Trajectory: traj}}, nil
}

// #endregion wiring

// #region output

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
