package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/gate"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/miner"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
)

// #region train

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stories, err := miner.LoadCorpusFile(corpusPath)
	if err != nil {
		return err
	}
	suite, closeSuite, err := cli.suite()
	if err != nil {
		return err
	}
	defer closeSuite()

	m, err := miner.New(suite.Classifier, cli.alpha, cli.cfg.Miner,
		miner.WithLogger(logger.Named("miner")), miner.WithMetrics(cli.metrics))
	if err != nil {
		return err
	}
	res, err := m.Mine(ctx, stories)
	if err != nil {
		return err
	}

	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	model := state.Model{Trajectory: res.Trajectory, Stats: res.Stats}
	if modelOut != "" {
		if err := state.SaveFile(modelOut, model, time.Now()); err != nil {
			return err
		}
	}
	v, err := promote(ctx, store, model, "train:"+filepath.Base(corpusPath), true)
	if err != nil {
		return err
	}

	if jsonOut {
		return cli.printJSON(versionSummary(v))
	}
	fmt.Fprintf(cli.out, "Trained version %s from %d stories (%d segments, %d recovered, %d coerced)\n",
		v.VersionID, res.Stats.StoriesProcessed, res.Stats.SegmentsClassified,
		res.Stats.RecoveredFailures, res.Stats.CoercedLabels)
	fmt.Fprintf(cli.out, "Discovered %d paths\n", len(res.Stats.Paths))
	if modelOut != "" {
		fmt.Fprintf(cli.out, "Wrote %s\n", modelOut)
	}
	return nil
}

// #endregion train

// #region promote

var errGateRejected = errors.New("model rejected by promotion gate")

// promote runs the promotion gate against the active model and stores m as
// the new active version. --force stores a rejected model anyway.
func promote(ctx context.Context, store *state.Store, m state.Model, source string, mined bool) (state.ModelVersion, error) {
	var active *state.Model
	cur, err := store.GetCurrent()
	switch {
	case err == nil:
		active = &cur.Model
	case !errors.Is(err, state.ErrNoActiveModel):
		return state.ModelVersion{}, err
	}

	d := gate.NewGate(cli.cfg.Gate).Evaluate(active, m, mined)
	cli.log.Info(ctx, "promotion gate", logger.String("action", d.Action), logger.String("reason", d.Reason),
		logger.Float64("drift", d.Drift), logger.Float64("soft_score", d.SoftScore))
	if d.Vetoed {
		if !force {
			return state.ModelVersion{}, fmt.Errorf("%w: %s (use --force to override)", errGateRejected, d.Reason)
		}
		cli.log.Warn(ctx, "gate rejection overridden", logger.String("source", source))
	}
	return store.CreateVersion(m, source)
}

// #endregion promote

// #region files

func runImport(cmd *cobra.Command, args []string) error {
	m, err := state.LoadFile(args[0])
	if err != nil {
		return err
	}
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	v, err := promote(cmd.Context(), store, m, "import:"+filepath.Base(args[0]), false)
	if err != nil {
		return err
	}
	if jsonOut {
		return cli.printJSON(versionSummary(v))
	}
	fmt.Fprintf(cli.out, "Imported %s as version %s\n", args[0], v.VersionID)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var v state.ModelVersion
	if versionID != "" {
		v, err = store.GetVersion(versionID)
	} else {
		v, err = store.GetCurrent()
	}
	if err != nil {
		return err
	}
	if err := state.SaveFile(args[0], v.Model, time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Exported version %s to %s\n", v.VersionID, args[0])
	return nil
}

// #endregion files

// #region versions

type versionRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Source    string `json:"source"`
	Labels    int    `json:"labels"`
	Bins      int    `json:"bins"`
	Stories   int    `json:"stories"`
	Paths     int    `json:"paths"`
	CreatedAt string `json:"created_at"`
}

func versionSummary(v state.ModelVersion) versionRow {
	return versionRow{
		VersionID: v.VersionID,
		ParentID:  v.ParentID,
		Source:    v.Source,
		Labels:    v.Model.Trajectory.Alphabet().Len(),
		Bins:      v.Model.Trajectory.BinCount(),
		Stories:   v.Model.Stats.StoriesProcessed,
		Paths:     len(v.Model.Stats.Paths),
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
	}
}

func runVersions(cmd *cobra.Command, args []string) error {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	versions, err := store.ListVersions(listLast)
	if err != nil {
		return err
	}
	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		rows[i] = versionSummary(v)
	}
	if jsonOut {
		return cli.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cli.out, "no versions stored")
		return nil
	}
	var activeID string
	if cur, err := store.GetCurrent(); err == nil {
		activeID = cur.VersionID
	}
	for _, r := range rows {
		mark := " "
		if r.VersionID == activeID {
			mark = "*"
		}
		fmt.Fprintf(cli.out, "%s %-8s  %-20s  bins=%-3d stories=%-5d paths=%-3d %s\n",
			mark, shortID(r.VersionID), r.CreatedAt, r.Bins, r.Stories, r.Paths, r.Source)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Rollback(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Active version is now %s\n", args[0])
	return nil
}

// #endregion versions

// #region paths

func runPaths(cmd *cobra.Command, args []string) error {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	v, err := cli.activeModel(store)
	if err != nil {
		return err
	}
	paths := v.Model.Stats.Paths
	if jsonOut {
		if paths == nil {
			paths = []narrative.DiscoveredPath{}
		}
		return cli.printJSON(paths)
	}
	if len(paths) == 0 {
		fmt.Fprintln(cli.out, "no discovered paths")
		return nil
	}
	for _, p := range paths {
		fmt.Fprintf(cli.out, "%-8s  %-22s %5.1f%%  (%d)  %v\n",
			shortID(p.ID), p.Name, p.Percentage, p.Frequency, p.Sequence)
	}
	return nil
}

// #endregion paths
