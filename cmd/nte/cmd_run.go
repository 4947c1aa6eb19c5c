package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/planner"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
)

var errAmbiguousPath = errors.New("ambiguous path id")

// #region plan

type planRow struct {
	Position int                `json:"position"`
	Label    narrative.Label    `json:"label"`
	Mode     narrative.StepMode `json:"mode"`
	Fallback bool               `json:"fallback,omitempty"`
	Draw     float64            `json:"draw,omitempty"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	v, err := cli.activeModel(store)
	if err != nil {
		return err
	}
	override, err := resolvePath(v.Model.Stats, pathID)
	if err != nil {
		return err
	}
	cs, err := cli.cfg.ConstraintSet(v.Model.Trajectory.Alphabet())
	if err != nil {
		return err
	}
	seed := seedFlag(cmd)
	sel, err := planner.NewSelector(v.Model.Trajectory, cs, planner.NewRand(seed),
		planner.WithStartLabel(cli.cfg.Miner.StartLabel), planner.WithLogger(logger.Named("planner")),
		planner.WithMetrics(cli.metrics))
	if err != nil {
		return err
	}
	choices, err := sel.Walk(cmd.Context(), lengthFlag(), override)
	if err != nil {
		return err
	}

	rows := make([]planRow, len(choices))
	for i, c := range choices {
		rows[i] = planRow{Position: c.Position, Label: c.Label, Mode: c.Mode, Fallback: c.Fallback, Draw: c.Draw}
	}
	if jsonOut {
		return cli.printJSON(map[string]any{"seed": seed, "model_version": v.VersionID, "steps": rows})
	}
	fmt.Fprintf(cli.out, "model=%s seed=%d\n", shortID(v.VersionID), seed)
	for _, r := range rows {
		note := ""
		if r.Fallback {
			note = "fallback"
		}
		fmt.Fprintf(cli.out, "%3d  %-18s %-8s %s\n", r.Position, r.Label, r.Mode, note)
	}
	return nil
}

// #endregion plan

// #region run

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cli.log.Error(ctx, "metrics server failed", logger.Error(err))
			}
		}()
		defer srv.Close()
	}

	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	v, err := cli.activeModel(store)
	if err != nil {
		return err
	}
	holder := state.NewHolder(cli.metrics)
	holder.SwapVersion(v)

	suite, closeSuite, err := cli.suite()
	if err != nil {
		return err
	}
	defer closeSuite()

	newCoordinator := func(alpha *narrative.Alphabet) (*coordinator.Coordinator, error) {
		cs, err := cli.cfg.ConstraintSet(alpha)
		if err != nil {
			return nil, err
		}
		return coordinator.New(suite, cs, cli.cfg.Coordinator,
			coordinator.WithRecorder(logging.NewRunLog(store.DB())),
			coordinator.WithEvalConfig(cli.cfg.Eval),
			coordinator.WithStartLabel(cli.cfg.Miner.StartLabel),
			coordinator.WithLogger(logger.Named("coordinator")),
			coordinator.WithMetrics(cli.metrics),
		)
	}
	alpha := v.Model.Trajectory.Alphabet()
	coord, err := newCoordinator(alpha)
	if err != nil {
		return err
	}

	seed := seedFlag(cmd)
	for i := 0; i < runCount; i++ {
		// pick up a train, import or rollback made while earlier runs were going
		if i > 0 {
			swapped, err := holder.Refresh(store)
			if err != nil {
				return err
			}
			if swapped {
				cli.log.Info(ctx, "active model changed", logger.String("version", holder.Load().VersionID))
			}
		}
		snap := holder.Load()
		if next := snap.Model.Trajectory.Alphabet(); !next.Equal(alpha) {
			if coord, err = newCoordinator(next); err != nil {
				return err
			}
			alpha = next
		}
		override, err := resolvePath(snap.Model.Stats, pathID)
		if err != nil {
			return err
		}
		req := coordinator.Request{
			Model:        snap.Model.Trajectory,
			ModelVersion: snap.VersionID,
			Override:     override,
			Length:       planLength,
			Seed:         seed + uint64(i),
		}
		if err := generateOnce(ctx, coord, req); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func generateOnce(ctx context.Context, coord *coordinator.Coordinator, req coordinator.Request) error {
	if !baseline {
		res, err := coord.Run(ctx, req)
		if res != nil {
			if perr := printResult(res); perr != nil {
				return perr
			}
		}
		return err
	}
	cmp, err := coord.Compare(ctx, req)
	if cmp != nil {
		if jsonOut {
			if perr := cli.printJSON(cmp); perr != nil {
				return perr
			}
		} else {
			for _, res := range []*coordinator.Result{cmp.Constrained, cmp.Baseline} {
				if res != nil {
					if perr := printResult(res); perr != nil {
						return perr
					}
				}
			}
		}
	}
	return err
}

func printResult(res *coordinator.Result) error {
	if jsonOut {
		return cli.printJSON(res)
	}
	fmt.Fprintf(cli.out, "=== %s run %s (%s, seed %d) ===\n", res.Variant, shortID(res.RunID), res.Status, res.Seed)
	fmt.Fprintln(cli.out, res.Text)
	labels := make([]string, len(res.Steps))
	for i, s := range res.Steps {
		labels[i] = string(s.Label)
	}
	fmt.Fprintf(cli.out, "\nlabels: %s\n", strings.Join(labels, " > "))
	if res.Eval != nil {
		fmt.Fprintf(cli.out, "eval:   passed=%v %s\n", res.Eval.Passed, res.Eval.Reason)
	}
	if res.Scores != nil {
		fmt.Fprintf(cli.out, "scores: %v\n", res.Scores.Values)
	}
	if res.Error != "" {
		fmt.Fprintf(cli.out, "error:  %s\n", res.Error)
	}
	fmt.Fprintln(cli.out)
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", cli.metrics.Handler())
	return mux
}

// #endregion run

// #region flags-helpers

func seedFlag(cmd *cobra.Command) uint64 {
	if cmd.Flags().Changed("seed") {
		return planSeed
	}
	return uint64(time.Now().UnixNano())
}

func lengthFlag() int {
	if planLength > 0 {
		return planLength
	}
	return cli.cfg.Coordinator.DefaultLength
}

// resolvePath finds a discovered path by id or unique id prefix. An empty id
// means no override.
func resolvePath(stats narrative.DatasetStats, id string) (*narrative.DiscoveredPath, error) {
	if id == "" {
		return nil, nil
	}
	if p, ok := stats.FindPath(id); ok {
		return &p, nil
	}
	var found *narrative.DiscoveredPath
	for i := range stats.Paths {
		if strings.HasPrefix(stats.Paths[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("%s: %w", id, errAmbiguousPath)
			}
			found = &stats.Paths[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("path %s not found in active model", id)
	}
	p := *found
	return &p, nil
}

// #endregion flags-helpers
