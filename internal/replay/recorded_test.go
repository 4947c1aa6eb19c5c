package replay

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/logging"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

func loggedSteps(labels ...narrative.Label) []logging.StepEntry {
	out := make([]logging.StepEntry, len(labels))
	for i, l := range labels {
		out[i] = logging.StepEntry{RunID: "r", Position: i, Label: l}
	}
	return out
}

func TestRecordedCase(t *testing.T) {
	stats := narrative.DatasetStats{Paths: []narrative.DiscoveredPath{
		{ID: "p1", Sequence: []narrative.Label{"A", "C"}},
	}}
	steps := loggedSteps("A", "C", "D")

	tests := []struct {
		name    string
		run     logging.RunEntry
		steps   []logging.StepEntry
		wantErr bool
	}{
		{"completed", logging.RunEntry{RunID: "r", Status: "completed", Seed: 5, Length: 3}, steps, false},
		{"with override", logging.RunEntry{RunID: "r", Status: "completed", Seed: 5, Length: 3, OverrideID: "p1"}, steps, false},
		{"aborted", logging.RunEntry{RunID: "r", Status: "aborted", Length: 3}, steps[:2], true},
		{"missing steps", logging.RunEntry{RunID: "r", Status: "completed", Length: 4}, steps, true},
		{"unknown override", logging.RunEntry{RunID: "r", Status: "completed", Length: 3, OverrideID: "nope"}, steps, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := RecordedCase(tc.run, tc.steps, stats)
			if tc.wantErr {
				if !errors.Is(err, ErrNotReplayable) {
					t.Fatalf("expected ErrNotReplayable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RecordedCase: %v", err)
			}
			if c.Seed != tc.run.Seed || c.Length != 3 || len(c.Expected) != 3 || c.Expected[2] != "D" {
				t.Fatalf("unexpected case: %+v", c)
			}
			if (tc.run.OverrideID != "") != (c.Override != nil) {
				t.Fatalf("override mismatch: %+v", c.Override)
			}
		})
	}
}
