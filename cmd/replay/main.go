package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/config"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/replay"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to nte.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	configPath := flag.String("config", "", "config file for constraint rules (DB mode)")
	runID := flag.String("run", "", "replay a single logged run (DB mode)")
	last := flag.Int("last", 20, "number of most recent runs to replay (DB mode)")
	update := flag.Bool("update", false, "pin replayed labels into the fixture (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/nte.db [--config nte.yaml] [--run id | --last N]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--update]")
		os.Exit(2)
	}

	ctx := context.Background()
	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(ctx, *fixturePath, *update)
	} else {
		exitCode = runDBMode(ctx, *dbPath, *configPath, *runID, *last)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(ctx context.Context, path string, update bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	results, err := f.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay fixture: %v\n", err)
		return 2
	}

	if update {
		replay.Pin(f, results)
		if err := replay.WriteFixture(path, f); err != nil {
			fmt.Fprintf(os.Stderr, "update fixture: %v\n", err)
			return 2
		}
		fmt.Printf("pinned %d cases into %s\n", len(results), path)
		return 0
	}
	return printComparison(results)
}

// #endregion fixture-mode

// #region db-mode

func runDBMode(ctx context.Context, dbPath, configPath, runID string, last int) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()
	runLog := logging.NewRunLog(store.DB())

	var runs []logging.RunEntry
	if runID != "" {
		run, _, err := runLog.GetRun(ctx, runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get run: %v\n", err)
			return 2
		}
		runs = []logging.RunEntry{run}
	} else {
		runs, err = runLog.ListRuns(ctx, last)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
			return 2
		}
	}

	var results []replay.ReplayResult
	skipped := 0
	versions := make(map[string]state.ModelVersion)
	// ListRuns is newest first, replay chronologically
	for i := len(runs) - 1; i >= 0; i-- {
		r, err := replayRun(ctx, store, runLog, cfg, versions, runs[i])
		if errors.Is(err, replay.ErrNotReplayable) {
			fmt.Fprintf(os.Stderr, "skip: %v\n", err)
			skipped++
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay run %s: %v\n", runs[i].RunID, err)
			return 2
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		fmt.Fprintf(os.Stderr, "no replayable runs found (%d skipped)\n", skipped)
		return 2
	}
	return printComparison(results)
}

// replayRun re-plans one logged run against the model version it used.
// Constraint rules come from the current config, so a divergence also flags
// a config drift since the run was recorded.
func replayRun(ctx context.Context, store *state.Store, runLog *logging.RunLog, cfg *config.Config,
	versions map[string]state.ModelVersion, run logging.RunEntry) (replay.ReplayResult, error) {
	if run.ModelVersion == "" {
		return replay.ReplayResult{}, fmt.Errorf("run %s has no model version: %w", run.RunID, replay.ErrNotReplayable)
	}
	v, ok := versions[run.ModelVersion]
	if !ok {
		var err error
		v, err = store.GetVersion(run.ModelVersion)
		if err != nil {
			return replay.ReplayResult{}, err
		}
		versions[run.ModelVersion] = v
	}

	_, steps, err := runLog.GetRun(ctx, run.RunID)
	if err != nil {
		return replay.ReplayResult{}, err
	}
	fc, err := replay.RecordedCase(run, steps, v.Model.Stats)
	if err != nil {
		return replay.ReplayResult{}, err
	}

	alpha := v.Model.Trajectory.Alphabet()
	var cs *constraint.Set
	if run.Variant == string(coordinator.VariantBaseline) {
		cs = constraint.Passthrough(alpha)
	} else if cs, err = cfg.ConstraintSet(alpha); err != nil {
		return replay.ReplayResult{}, err
	}

	results, err := replay.Replay(ctx, replay.Setup{
		Model:       v.Model.Trajectory,
		Constraints: cs,
		StartLabel:  cfg.Miner.StartLabel,
	}, []replay.Case{fc.ToCase()})
	if err != nil {
		return replay.ReplayResult{}, err
	}
	return results[0], nil
}

// #endregion db-mode

// #region output

// printComparison outputs a comparison table and returns the exit code:
// 0 when every pinned case matched, 1 on any divergence.
func printComparison(results []replay.ReplayResult) int {
	fmt.Printf("%-12s| %-8s| %-30s| %s\n", "Case", "Match", "Replayed", "Detail")
	fmt.Printf("%-12s+%-9s+%-31s+%s\n",
		"------------", "---------", "-------------------------------", "--------")

	for _, r := range results {
		match := "DIFF"
		switch {
		case r.Expected == nil:
			match = "-"
		case r.Match:
			match = "OK"
		}
		fmt.Printf("%-12s| %-8s| %-30s| %s\n", shortName(r.Name), match, joinLabels(r.Actual), r.Reason)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d unpinned, %d fallbacks\n",
		s.TotalCases, s.Matched, s.Mismatched, s.Unpinned, s.Fallbacks)

	if s.Mismatched > 0 {
		return 1
	}
	return 0
}

// joinLabels abbreviates labels to their first three letters.
func joinLabels(labels []narrative.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		s := string(l)
		if len(s) > 3 {
			s = s[:3]
		}
		parts[i] = s
	}
	out := strings.Join(parts, " ")
	if len(out) > 30 {
		out = out[:27] + "..."
	}
	return out
}

func shortName(name string) string {
	if len(name) > 12 {
		return name[:12]
	}
	return name
}

// #endregion output
