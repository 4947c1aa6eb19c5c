package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/constraint"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/planner"
)

// #region types
// Setup is the fixed part of a replay: one model snapshot and one
// constraint set shared by every case.
type Setup struct {
	Model       *narrative.Trajectory
	Constraints *constraint.Set
	StartLabel  narrative.Label // empty means the alphabet's first label
}

// Case is one seeded plan and, optionally, the labels it must produce.
type Case struct {
	Name     string
	Seed     uint64
	Length   int
	Override *narrative.DiscoveredPath
	Expected []narrative.Label
}

// ReplayResult captures the outcome of re-planning one case.
type ReplayResult struct {
	Name          string
	Expected      []narrative.Label
	Actual        []narrative.Label
	Match         bool
	FirstMismatch int // -1 when the paths match
	Fallbacks     int // positions where constraints emptied the row
	Reason        string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases int
	Matched    int
	Mismatched int
	Unpinned   int // cases without expected labels
	Fallbacks  int
}

// #endregion types

// #region replay
// Replay re-plans every case from its seed with a fresh selector and compares
// the labels to the expected ones. Operates entirely in-memory and never calls
// a collaborator.
func Replay(ctx context.Context, setup Setup, cases []Case) ([]ReplayResult, error) {
	results := make([]ReplayResult, 0, len(cases))
	for _, c := range cases {
		var opts []planner.Option
		if setup.StartLabel != "" {
			opts = append(opts, planner.WithStartLabel(setup.StartLabel))
		}
		sel, err := planner.NewSelector(setup.Model, setup.Constraints, planner.NewRand(c.Seed), opts...)
		if err != nil {
			return results, fmt.Errorf("case %s: %w", c.Name, err)
		}
		choices, err := sel.Walk(ctx, c.Length, c.Override)
		if err != nil {
			return results, fmt.Errorf("case %s: %w", c.Name, err)
		}

		r := ReplayResult{
			Name:          c.Name,
			Expected:      c.Expected,
			Actual:        make([]narrative.Label, len(choices)),
			FirstMismatch: -1,
		}
		for i, ch := range choices {
			r.Actual[i] = ch.Label
			if ch.Fallback {
				r.Fallbacks++
			}
		}
		r.Match, r.FirstMismatch, r.Reason = compare(c.Expected, r.Actual)
		results = append(results, r)
	}
	return results, nil
}

func compare(expected, actual []narrative.Label) (bool, int, string) {
	if expected == nil {
		return false, -1, "no expected labels"
	}
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			return false, i, fmt.Sprintf("position %d: expected %s, got %s", i, expected[i], actual[i])
		}
	}
	if len(expected) != len(actual) {
		return false, n, fmt.Sprintf("expected %d labels, got %d", len(expected), len(actual))
	}
	return true, -1, "match"
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalCases: len(results)}
	for _, r := range results {
		s.Fallbacks += r.Fallbacks
		switch {
		case r.Expected == nil:
			s.Unpinned++
		case r.Match:
			s.Matched++
		default:
			s.Mismatched++
		}
	}
	return s
}

// Pin copies every result's actual labels into the matching fixture case.
// It is how a fixture's expectations are recorded or refreshed.
func Pin(f *Fixture, results []ReplayResult) {
	for i := range f.Cases {
		if i < len(results) && results[i].Name == f.Cases[i].Name {
			f.Cases[i].Expected = results[i].Actual
		}
	}
}

// #endregion replay
