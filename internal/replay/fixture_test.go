package replay

import (
	"context"
	"path/filepath"
	"testing"
)

// #region fixture-tests

// TestFixture_LinearArc loads the linear_arc fixture, replays every case and
// compares the planned labels against the pinned ones. If sampling or the
// constraint layer changes behavior, this catches drift.
func TestFixture_LinearArc(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "linear_arc.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(f.Cases) {
		t.Fatalf("expected %d results, got %d", len(f.Cases), len(results))
	}
	for i, r := range results {
		if r.Name != f.Cases[i].Name {
			t.Errorf("case %d: expected name=%s, got %s", i, f.Cases[i].Name, r.Name)
		}
		if !r.Match {
			t.Errorf("case %s: %s (actual %v)", r.Name, r.Reason, r.Actual)
		}
	}

	s := Summarize(results)
	if s.Matched != 2 || s.Mismatched != 0 || s.Fallbacks != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestFixture_BaselineIgnoresRules(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "linear_arc.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Config.Baseline = true
	f.Cases = f.Cases[:1]
	f.Cases[0].Length = 4 // A B C D holds with or without rules

	results, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Match {
		t.Fatalf("baseline: %s", results[0].Reason)
	}
}

func TestFixture_InvalidModel(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "linear_arc.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Model.Type = "other"
	if _, err := f.Run(context.Background()); err == nil {
		t.Fatal("expected invalid model error")
	}
}

func TestFixture_InvalidConstraints(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "linear_arc.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Config.Constraints.SafetyLabel = "Z"
	if _, err := f.Run(context.Background()); err == nil {
		t.Fatal("expected constraint config error")
	}
}

func TestLoadFixture_Errors(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "missing.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := writeFile(bad, "{"); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteFixtureRoundTrip(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "linear_arc.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "copy.json")
	if err := WriteFixture(path, f); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	g, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture copy: %v", err)
	}
	results, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := Summarize(results); s.Matched != len(g.Cases) {
		t.Fatalf("copy no longer matches: %+v", s)
	}
}

// #endregion fixture-tests
