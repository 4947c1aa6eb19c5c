package replay

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// ErrNotReplayable marks a logged run that cannot be re-planned.
var ErrNotReplayable = errors.New("run is not replayable")

// #region recorded-case

// RecordedCase turns a logged run into a replay case pinned to the labels it
// committed. Only completed runs qualify: an aborted run stopped before its
// planned length. stats resolves the run's override path.
func RecordedCase(run logging.RunEntry, steps []logging.StepEntry, stats narrative.DatasetStats) (FixtureCase, error) {
	if run.Status != string(coordinator.StatusCompleted) {
		return FixtureCase{}, fmt.Errorf("run %s is %s: %w", run.RunID, run.Status, ErrNotReplayable)
	}
	if len(steps) != run.Length {
		return FixtureCase{}, fmt.Errorf("run %s logged %d of %d steps: %w", run.RunID, len(steps), run.Length, ErrNotReplayable)
	}

	c := FixtureCase{
		Name:     run.RunID,
		Seed:     run.Seed,
		Length:   run.Length,
		Expected: make([]narrative.Label, len(steps)),
	}
	if run.OverrideID != "" {
		p, ok := stats.FindPath(run.OverrideID)
		if !ok {
			return FixtureCase{}, fmt.Errorf("run %s: override %s not in model stats: %w", run.RunID, run.OverrideID, ErrNotReplayable)
		}
		c.Override = &p
	}
	for i, s := range steps {
		c.Expected[i] = s.Label
	}
	return c, nil
}

// #endregion recorded-case
