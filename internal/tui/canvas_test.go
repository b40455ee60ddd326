package tui

import (
	"strings"
	"testing"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

func TestDrawBlocksAndEdge(t *testing.T) {
	s := editor.NewSession(editor.Options{PropagationDelay: -1})
	defer s.Close()
	s.PlaceBlock("query", 0, 0)
	s.PlaceBlock("display", 400, 0)
	if err := s.Connect("query-1", "display-1", "Input"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	lines := Draw(s.Render(), 80, 12)
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if n := len([]rune(l)); n != 80 {
			t.Fatalf("line %d: expected width 80, got %d", i, n)
		}
	}

	out := strings.Join(lines, "\n")
	for _, want := range []string{"Query", "Display", "Input", "·"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in drawing:\n%s", want, out)
		}
	}
	if !strings.HasPrefix(lines[0], "+") {
		t.Errorf("expected block corner at origin, got %q", lines[0])
	}
}

func TestDrawSelectedEdge(t *testing.T) {
	s := editor.NewSession(editor.Options{PropagationDelay: -1})
	defer s.Close()
	s.PlaceBlock("query", 0, 0)
	s.PlaceBlock("display", 400, 0)
	c := editor.Connection{Source: "query-1", Target: "display-1", InputID: "Input"}
	s.Connect(c.Source, c.Target, c.InputID)
	if _, err := s.ClickEdge(c); err != nil {
		t.Fatalf("click failed: %v", err)
	}

	out := strings.Join(Draw(s.Render(), 80, 12), "\n")
	if !strings.Contains(out, "*") {
		t.Errorf("expected selected edge marks:\n%s", out)
	}
}

func TestDrawClipsOffscreen(t *testing.T) {
	s := editor.NewSession(editor.Options{PropagationDelay: -1})
	defer s.Close()
	s.PlaceBlock("query", -2000, -2000)

	out := strings.Join(Draw(s.Render(), 20, 5), "")
	if strings.TrimSpace(out) != "" {
		t.Errorf("expected empty drawing, got %q", out)
	}
}
