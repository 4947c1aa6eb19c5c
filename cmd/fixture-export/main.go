package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/config"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/replay"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to nte.db")
	configPath := flag.String("config", "", "config file the runs were recorded with")
	last := flag.Int("last", 4, "number of most recent runs to consider")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/nte.db --out path/to/fixture.json [--config nte.yaml] [--last N]")
		os.Exit(2)
	}

	if err := run(context.Background(), *dbPath, *configPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(ctx context.Context, dbPath, configPath string, last int, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()
	runLog := logging.NewRunLog(store.DB())

	entries, err := runLog.ListRuns(ctx, last)
	if err != nil {
		return err
	}

	// The newest completed run fixes the model version and variant; a
	// fixture carries exactly one of each.
	var anchor *logging.RunEntry
	for i := range entries {
		if entries[i].Status == string(coordinator.StatusCompleted) && entries[i].ModelVersion != "" {
			anchor = &entries[i]
			break
		}
	}
	if anchor == nil {
		return fmt.Errorf("no completed runs in the last %d entries", last)
	}
	version, err := store.GetVersion(anchor.ModelVersion)
	if err != nil {
		return fmt.Errorf("get model version: %w", err)
	}

	var cases []replay.FixtureCase
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ModelVersion != anchor.ModelVersion || e.Variant != anchor.Variant {
			continue
		}
		_, steps, err := runLog.GetRun(ctx, e.RunID)
		if err != nil {
			return err
		}
		c, err := replay.RecordedCase(e, steps, version.Model.Stats)
		if errors.Is(err, replay.ErrNotReplayable) {
			fmt.Fprintf(os.Stderr, "skip: %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
		cases = append(cases, c)
	}

	fmt.Printf("Found %d replayable runs for model %s\n", len(cases), version.VersionID)

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	fixture := buildFixture(cfg, rules, version, anchor.Variant == string(coordinator.VariantBaseline), cases)
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region output

func buildFixture(cfg *config.Config, rules constraint.Rules, v state.ModelVersion, baseline bool, cases []replay.FixtureCase) *replay.Fixture {
	return &replay.Fixture{
		Description: fmt.Sprintf("Exported %d runs against model %s (%s)", len(cases), v.VersionID, v.Source),
		Model:       state.NewRecord(v.Model, time.Now()),
		Config: replay.FixtureConfig{
			StartLabel:  cfg.Miner.StartLabel,
			Baseline:    baseline,
			Constraints: replay.FromConstraintConfig(cfg.ConstraintConfig()),
			Rules:       rules,
		},
		Cases: cases,
	}
}

func writeFixture(f *replay.Fixture, outPath string) error {
	if err := replay.WriteFixture(outPath, f); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d cases)\n", outPath, len(f.Cases))
	return nil
}

// #endregion output
