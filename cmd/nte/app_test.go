package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/config"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/state"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
)

// #region helpers

// testApp points the shared cli state at a temp database and resets flags.
func testApp(t *testing.T) *bytes.Buffer {
	t.Helper()
	cfg := config.New()
	cfg.DBPath = filepath.Join(t.TempDir(), "nte.db")
	alpha, err := cfg.AlphabetSet()
	if err != nil {
		t.Fatalf("AlphabetSet: %v", err)
	}
	var out bytes.Buffer
	cli = app{cfg: cfg, alpha: alpha, log: logger.Nop(), out: &out}
	jsonOut, force, pathID, versionID, planLength, planSeed, listLast = false, false, "", "", 0, 0, 20
	return &out
}

func writeModelFile(t *testing.T, paths ...narrative.DiscoveredPath) string {
	t.Helper()
	traj, err := narrative.DefaultTrajectory(narrative.ExtendedAlphabet(), narrative.DefaultBins)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	m := state.Model{Trajectory: traj, Stats: narrative.DatasetStats{StoriesProcessed: 3, Paths: paths}}
	if err := state.SaveFile(path, m, time.Now()); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	return path
}

func newCmd() *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	return c
}

func seededCmd(t *testing.T, seed string) *cobra.Command {
	t.Helper()
	c := newCmd()
	c.Flags().Uint64Var(&planSeed, "seed", 0, "")
	if err := c.Flags().Set("seed", seed); err != nil {
		t.Fatalf("set seed: %v", err)
	}
	return c
}

// #endregion helpers

// #region command-tests

func TestImportVersionsRollback(t *testing.T) {
	out := testApp(t)
	file := writeModelFile(t)

	if err := runImport(newCmd(), []string{file}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if err := runImport(newCmd(), []string{file}); err != nil {
		t.Fatalf("second import: %v", err)
	}

	out.Reset()
	jsonOut = true
	if err := runVersions(newCmd(), nil); err != nil {
		t.Fatalf("runVersions: %v", err)
	}
	var rows []versionRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode versions: %v\n%s", err, out.String())
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(rows))
	}
	if !strings.HasPrefix(rows[0].Source, "import:") || rows[0].Labels != narrative.ExtendedAlphabet().Len() {
		t.Errorf("unexpected row: %+v", rows[0])
	}

	oldest := rows[1].VersionID
	if err := runRollback(newCmd(), []string{oldest}); err != nil {
		t.Fatalf("runRollback: %v", err)
	}
	store, err := cli.openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()
	cur, err := store.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != oldest {
		t.Errorf("expected active %s, got %s", oldest, cur.VersionID)
	}
}

func TestImportGateRejectsAlphabetChange(t *testing.T) {
	testApp(t)
	if err := runImport(newCmd(), []string{writeModelFile(t)}); err != nil {
		t.Fatalf("runImport: %v", err)
	}

	legacy, err := narrative.DefaultTrajectory(narrative.LegacyAlphabet(), narrative.DefaultBins)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := state.SaveFile(path, state.Model{Trajectory: legacy}, time.Now()); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	if err := runImport(newCmd(), []string{path}); !errors.Is(err, errGateRejected) {
		t.Fatalf("expected gate rejection, got %v", err)
	}
	force = true
	if err := runImport(newCmd(), []string{path}); err != nil {
		t.Fatalf("forced import: %v", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	testApp(t)
	file := writeModelFile(t)
	if err := runImport(newCmd(), []string{file}); err != nil {
		t.Fatalf("runImport: %v", err)
	}
	exported := filepath.Join(t.TempDir(), "exported.json")
	if err := runExport(newCmd(), []string{exported}); err != nil {
		t.Fatalf("runExport: %v", err)
	}
	m, err := state.LoadFile(exported)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.Trajectory.BinCount() != narrative.DefaultBins || m.Stats.StoriesProcessed != 3 {
		t.Errorf("unexpected exported model: bins=%d stats=%+v", m.Trajectory.BinCount(), m.Stats)
	}
}

func TestExportWithoutModel(t *testing.T) {
	testApp(t)
	err := runExport(newCmd(), []string{filepath.Join(t.TempDir(), "x.json")})
	if !errors.Is(err, state.ErrNoActiveModel) {
		t.Fatalf("expected ErrNoActiveModel, got %v", err)
	}
}

func TestPlanDeterministic(t *testing.T) {
	out := testApp(t)
	jsonOut = true
	planLength = 12

	if err := runPlan(seededCmd(t, "42"), nil); err != nil {
		t.Fatalf("first plan: %v", err)
	}
	first := out.String()
	out.Reset()
	if err := runPlan(seededCmd(t, "42"), nil); err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if first != out.String() {
		t.Fatalf("same seed produced different plans:\n%s\n%s", first, out.String())
	}

	var got struct {
		Seed  uint64    `json:"seed"`
		Steps []planRow `json:"steps"`
	}
	if err := json.Unmarshal([]byte(first), &got); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if got.Seed != 42 || len(got.Steps) != 12 {
		t.Fatalf("unexpected plan: seed=%d steps=%d", got.Seed, len(got.Steps))
	}
	if got.Steps[0].Label != narrative.Introduction || got.Steps[0].Mode != narrative.ModeStart {
		t.Errorf("position 0 should be the start label, got %+v", got.Steps[0])
	}
}

func TestPlanFollowsPath(t *testing.T) {
	out := testApp(t)
	seq := []narrative.Label{narrative.Introduction, narrative.Conflict, narrative.Climax}
	file := writeModelFile(t, narrative.DiscoveredPath{ID: "abcdef0123", Name: "test", Sequence: seq})
	if err := runImport(newCmd(), []string{file}); err != nil {
		t.Fatalf("runImport: %v", err)
	}

	out.Reset()
	jsonOut = true
	planLength = 3
	pathID = "abcdef"
	if err := runPlan(seededCmd(t, "1"), nil); err != nil {
		t.Fatalf("runPlan: %v", err)
	}
	var got struct {
		Steps []planRow `json:"steps"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(got.Steps) != 3 || got.Steps[0].Mode != narrative.ModeStart {
		t.Fatalf("unexpected plan: %+v", got.Steps)
	}
	for i, s := range got.Steps[1:] {
		if s.Label != seq[i+1] || s.Mode != narrative.ModeOverride {
			t.Errorf("position %d: got %+v", i+1, s)
		}
	}
}

func TestPathsWithoutModel(t *testing.T) {
	out := testApp(t)
	if err := runPaths(newCmd(), nil); err != nil {
		t.Fatalf("runPaths: %v", err)
	}
	if !strings.Contains(out.String(), "no discovered paths") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

// #endregion command-tests

// #region helper-tests

func TestResolvePath(t *testing.T) {
	stats := narrative.DatasetStats{Paths: []narrative.DiscoveredPath{
		{ID: "aaaa1111", Sequence: []narrative.Label{narrative.Introduction}},
		{ID: "aaaa2222", Sequence: []narrative.Label{narrative.Conflict}},
		{ID: "bbbb3333", Sequence: []narrative.Label{narrative.Climax}},
	}}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"exact", "aaaa2222", "aaaa2222", false},
		{"unique prefix", "bbbb", "bbbb3333", false},
		{"ambiguous prefix", "aaaa", "", true},
		{"missing", "cccc", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := resolvePath(stats, tc.id)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePath: %v", err)
			}
			if tc.want == "" {
				if p != nil {
					t.Fatalf("expected no override, got %+v", p)
				}
				return
			}
			if p == nil || p.ID != tc.want {
				t.Fatalf("got %+v, want %s", p, tc.want)
			}
		})
	}
}

func TestSuiteSelection(t *testing.T) {
	testApp(t)

	suite, closeSuite, err := cli.suite()
	if err != nil {
		t.Fatalf("heuristic suite: %v", err)
	}
	if suite.Classifier == nil || suite.Verifier == nil || suite.Evaluator == nil || suite.Generator != nil {
		t.Errorf("heuristic suite should provide every role except generation: %+v", suite)
	}
	_ = closeSuite()

	cli.cfg.Collaborators = config.BackendLLM
	cli.cfg.LLM.APIKey, cli.cfg.LLM.BaseURL = "", ""
	if _, _, err := cli.suite(); err == nil {
		t.Error("expected llm suite without credentials to fail")
	}

	cli.cfg.Collaborators = config.BackendGRPC
	suite, closeSuite, err = cli.suite()
	if err != nil {
		t.Fatalf("grpc suite: %v", err)
	}
	if suite.Generator == nil || suite.Classifier == nil {
		t.Errorf("grpc suite should provide every role: %+v", suite)
	}
	if err := closeSuite(); err != nil {
		t.Errorf("close grpc suite: %v", err)
	}
}

func TestActiveModelFallback(t *testing.T) {
	testApp(t)
	store, err := cli.openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	v, err := cli.activeModel(store)
	if err != nil {
		t.Fatalf("activeModel: %v", err)
	}
	if v.VersionID != "" || v.Source != "default" || v.Model.Trajectory.BinCount() != narrative.DefaultBins {
		t.Errorf("unexpected fallback: %+v", v)
	}
}

// #endregion helper-tests
