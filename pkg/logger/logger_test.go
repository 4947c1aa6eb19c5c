package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)

	Named("planner").Info(context.Background(), "step chosen", String("label", "Climax"), Int("position", 7))

	out := buf.String()
	for _, want := range []string{"step chosen", "component=planner", "label=Climax", "position=7", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("SetLevelString: %v", err)
	}
	Get().Debug(ctx, "visible", Error(errors.New("boom")))
	if !strings.Contains(buf.String(), "visible") || !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("debug line missing: %q", buf.String())
	}
	SetLevelString("info")
}

func TestSetLevelString_Unknown(t *testing.T) {
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop().Named("x")
	l.Error(context.Background(), "discarded")
}
