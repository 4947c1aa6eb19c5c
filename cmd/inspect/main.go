package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to nte.db")
	last := flag.Int("last", 20, "show N most recent versions or runs")
	version := flag.String("version", "", "show single model version detail")
	runs := flag.Bool("runs", false, "list recent runs instead of model versions")
	run := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/nte.db [--last N] [--version id] [--runs] [--run id] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runLog := logging.NewRunLog(store.DB())
	ctx := context.Background()

	switch {
	case *run != "":
		err = runDetailMode(ctx, runLog, *run, *jsonOut)
	case *runs:
		err = runListRunsMode(ctx, runLog, *last, *jsonOut)
	case *version != "":
		err = versionDetailMode(store, *version, *jsonOut)
	default:
		err = versionListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region version-list

type versionRow struct {
	VersionID string `json:"version_id"`
	Active    bool   `json:"active"`
	Source    string `json:"source"`
	Labels    int    `json:"labels"`
	Bins      int    `json:"bins"`
	Stories   int    `json:"stories"`
	Paths     int    `json:"paths"`
	CreatedAt string `json:"created_at"`
}

func versionListMode(store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}
	var activeID string
	if cur, err := store.GetCurrent(); err == nil {
		activeID = cur.VersionID
	}

	// Store returns DESC, reverse for chronological
	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = versionRow{
			VersionID: v.VersionID,
			Active:    v.VersionID == activeID,
			Source:    v.Source,
			Labels:    v.Model.Trajectory.Alphabet().Len(),
			Bins:      v.Model.Trajectory.BinCount(),
			Stories:   v.Model.Stats.StoriesProcessed,
			Paths:     len(v.Model.Stats.Paths),
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-1s %-12s  %6s  %4s  %7s  %5s  %-20s  %s\n",
		"", "Version", "Labels", "Bins", "Stories", "Paths", "Time", "Source")
	fmt.Printf("%-1s %-12s+-%6s+-%4s+-%7s+-%5s+-%-20s+-%s\n",
		"", "------------", "------", "----", "-------", "-----", "--------------------", "--------")
	for _, r := range rows {
		mark := ""
		if r.Active {
			mark = "*"
		}
		fmt.Printf("%-1s %-12s  %6d  %4d  %7d  %5d  %-20s  %s\n",
			mark, shortID(r.VersionID), r.Labels, r.Bins, r.Stories, r.Paths, r.CreatedAt, r.Source)
	}
	return nil
}

// #endregion version-list

// #region version-detail

type versionDetail struct {
	VersionID         string                     `json:"version_id"`
	ParentID          string                     `json:"parent_id"`
	Source            string                     `json:"source"`
	CreatedAt         string                     `json:"created_at"`
	Alphabet          []narrative.Label          `json:"alphabet"`
	Bins              int                        `json:"bins"`
	Stats             narrative.DatasetStats     `json:"stats"`
	MostLikelyByLabel map[narrative.Label]string `json:"most_likely_first_bin"`
}

func versionDetailMode(store *state.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	traj := v.Model.Trajectory
	out := versionDetail{
		VersionID:         v.VersionID,
		ParentID:          v.ParentID,
		Source:            v.Source,
		CreatedAt:         v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Alphabet:          traj.Alphabet().Labels(),
		Bins:              traj.BinCount(),
		Stats:             v.Model.Stats,
		MostLikelyByLabel: make(map[narrative.Label]string),
	}
	first := traj.Bin(0)
	for _, from := range out.Alphabet {
		row, _ := first.Row(from)
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out.MostLikelyByLabel[from] = fmt.Sprintf("%s (%.3f)", traj.Alphabet().At(best), row[best])
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:  %s\n", out.VersionID)
	fmt.Printf("Parent:   %s\n", out.ParentID)
	fmt.Printf("Source:   %s\n", out.Source)
	fmt.Printf("Created:  %s\n", out.CreatedAt)
	fmt.Printf("Bins:     %d\n", out.Bins)
	fmt.Printf("Stories:  %d (%d segments, %d recovered, %d coerced)\n",
		out.Stats.StoriesProcessed, out.Stats.SegmentsClassified, out.Stats.RecoveredFailures, out.Stats.CoercedLabels)

	fmt.Printf("\nLabel distribution:\n")
	labels := make([]narrative.Label, 0, len(out.Stats.LabelDistribution))
	for l := range out.Stats.LabelDistribution {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return out.Stats.LabelDistribution[labels[i]] > out.Stats.LabelDistribution[labels[j]]
	})
	for _, l := range labels {
		fmt.Printf("  %-18s %d\n", l, out.Stats.LabelDistribution[l])
	}

	fmt.Printf("\nMost likely next label (bin 0):\n")
	for _, l := range out.Alphabet {
		fmt.Printf("  %-18s -> %s\n", l, out.MostLikelyByLabel[l])
	}

	if len(out.Stats.Paths) > 0 {
		fmt.Printf("\nDiscovered paths:\n")
		for _, p := range out.Stats.Paths {
			fmt.Printf("  %-8s  %-20s  %5.1f%%  (%d)\n", shortID(p.ID), p.Name, p.Percentage, p.Frequency)
		}
	}
	return nil
}

// #endregion version-detail

// #region runs

type runRow struct {
	RunID        string `json:"run_id"`
	Variant      string `json:"variant"`
	Status       string `json:"status"`
	ModelVersion string `json:"model_version"`
	Seed         uint64 `json:"seed"`
	Length       int    `json:"length"`
	StartedAt    string `json:"started_at"`
	Error        string `json:"error,omitempty"`
}

func runListRunsMode(ctx context.Context, runLog *logging.RunLog, last int, jsonOut bool) error {
	entries, err := runLog.ListRuns(ctx, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}
	rows := make([]runRow, len(entries))
	for i, e := range entries {
		rows[len(entries)-1-i] = runRow{
			RunID:        e.RunID,
			Variant:      e.Variant,
			Status:       e.Status,
			ModelVersion: e.ModelVersion,
			Seed:         e.Seed,
			Length:       e.Length,
			StartedAt:    e.StartedAt.Format("2006-01-02T15:04:05Z"),
			Error:        e.Error,
		}
	}
	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-12s  %-11s  %-9s  %-12s  %6s  %-20s  %s\n",
		"Run", "Variant", "Status", "Model", "Length", "Time", "Seed")
	fmt.Printf("%-12s+-%-11s+-%-9s+-%-12s+-%6s+-%-20s+-%s\n",
		"------------", "-----------", "---------", "------------", "------", "--------------------", "--------")
	for _, r := range rows {
		fmt.Printf("%-12s  %-11s  %-9s  %-12s  %6d  %-20s  %d\n",
			shortID(r.RunID), r.Variant, r.Status, shortID(r.ModelVersion), r.Length, r.StartedAt, r.Seed)
	}
	return nil
}

type runDetail struct {
	Run    logging.RunEntry `json:"run"`
	Scores json.RawMessage  `json:"scores,omitempty"`
	Eval   json.RawMessage  `json:"eval,omitempty"`
	Steps  []narrative.Step `json:"steps"`
}

func runDetailMode(ctx context.Context, runLog *logging.RunLog, runID string, jsonOut bool) error {
	run, entries, err := runLog.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	out := runDetail{Run: run, Steps: make([]narrative.Step, len(entries))}
	if run.ScoresJSON != "" {
		out.Scores = json.RawMessage(run.ScoresJSON)
	}
	if run.EvalJSON != "" {
		out.Eval = json.RawMessage(run.EvalJSON)
	}
	for i, e := range entries {
		out.Steps[i] = e.Step()
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:      %s\n", run.RunID)
	fmt.Printf("Variant:  %s\n", run.Variant)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Model:    %s\n", run.ModelVersion)
	fmt.Printf("Override: %s\n", run.OverrideID)
	fmt.Printf("Seed:     %d\n", run.Seed)
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	fmt.Printf("\n%4s  %-18s  %-8s  %-8s  %7s  %s\n", "Pos", "Label", "Mode", "Verified", "Retries", "Confidence")
	for _, s := range out.Steps {
		fmt.Printf("%4d  %-18s  %-8s  %-8v  %7d  %.2f\n", s.Index, s.Label, s.Mode, s.Verified, s.Retries, s.Confidence)
	}
	if out.Scores != nil {
		fmt.Printf("\nScores: %s\n", out.Scores)
	}
	if out.Eval != nil {
		fmt.Printf("Eval:   %s\n", out.Eval)
	}
	return nil
}

// #endregion runs

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
