package tui

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	s := editor.NewSession(editor.Options{PropagationDelay: -1})
	t.Cleanup(s.Close)
	m := New(s, filepath.Join(t.TempDir(), "pipeline.json"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 32})
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestPaletteKeyPlacesBlockAtCursor(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(m, tea.MouseMsg{X: 10, Y: 5, Type: tea.MouseMotion})
	m, _ = update(m, key("1"))

	b, ok := m.session.Block("query-1")
	if !ok {
		t.Fatal("expected query-1 to be placed")
	}
	// cell (10,5) centre is (105,110), snapped to the 40 grid
	if b.Position != (editor.Point{X: 120, Y: 120}) {
		t.Errorf("expected position (120,120), got %v", b.Position)
	}
	if m.failed || !strings.Contains(m.message, "query-1") {
		t.Errorf("expected placement message, got %q", m.message)
	}
}

func TestUnknownPaletteKeyIgnored(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(m, key("9"))
	if m.session.Len() != 0 {
		t.Errorf("expected no blocks, got %d", m.session.Len())
	}
}

func TestMouseDragMovesBlock(t *testing.T) {
	m := newTestModel(t)
	if _, err := m.session.PlaceBlock("query", 80, 80); err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// header row of the block sits at cells y=4, x=8..31
	m, _ = update(m, tea.MouseMsg{X: 10, Y: 4, Type: tea.MouseLeft})
	if m.ctrl.State() != editor.StateDraggingBlock {
		t.Fatalf("expected dragging state, got %s", m.ctrl.State())
	}
	m, _ = update(m, tea.MouseMsg{X: 22, Y: 4, Type: tea.MouseMotion})
	m, _ = update(m, tea.MouseMsg{X: 22, Y: 4, Type: tea.MouseRelease})

	b, _ := m.session.Block("query-1")
	if b.Position != (editor.Point{X: 200, Y: 80}) {
		t.Errorf("expected position (200,80), got %v", b.Position)
	}
	if m.ctrl.State() != editor.StateIdle {
		t.Errorf("expected idle after release, got %s", m.ctrl.State())
	}
}

func TestZoomKeys(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(m, key("+"))
	if z := m.session.Viewport().Zoom; z < 1.09 || z > 1.11 {
		t.Errorf("expected zoom 1.1, got %v", z)
	}
	m, _ = update(m, key("0"))
	if z := m.session.Viewport().Zoom; z != 1 {
		t.Errorf("expected reset zoom 1, got %v", z)
	}
}

func TestDebugToggle(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(m, key("d"))
	if !m.session.Debug() {
		t.Error("expected debug on")
	}
	if !strings.Contains(m.View(), "DEBUG") {
		t.Error("expected DEBUG marker in view")
	}
}

func TestValidateKeyReportsError(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(m, key("v"))
	if !m.failed || !strings.Contains(m.message, "empty") {
		t.Errorf("expected empty pipeline error, got %q", m.message)
	}
}

func TestRemoveBlockUnderCursor(t *testing.T) {
	m := newTestModel(t)
	m.session.PlaceBlock("display", 80, 80)
	m, _ = update(m, tea.MouseMsg{X: 12, Y: 5, Type: tea.MouseMotion})
	m, _ = update(m, key("x"))
	if m.session.Len() != 0 {
		t.Errorf("expected block removed, got %d blocks", m.session.Len())
	}
}

func TestSaveWritesTemplate(t *testing.T) {
	m := newTestModel(t)
	m.session.PlaceBlock("query", 0, 0)

	m, cmd := update(m, key("s"))
	if cmd == nil {
		t.Fatal("expected save command")
	}
	m, _ = update(m, cmd())
	if m.failed {
		t.Fatalf("unexpected save error: %s", m.message)
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		t.Fatalf("failed to read saved template: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved template is not JSON: %v", err)
	}
	if doc["name"] != "pipeline" {
		t.Errorf("expected name 'pipeline', got %v", doc["name"])
	}
}

func TestCopyTemplate(t *testing.T) {
	var copied string
	orig := writeClipboard
	writeClipboard = func(s string) error { copied = s; return nil }
	defer func() { writeClipboard = orig }()

	m := newTestModel(t)
	m, _ = update(m, key("y"))
	if m.failed || !strings.Contains(copied, `"blocks"`) {
		t.Errorf("expected template JSON copied, got %q (%s)", copied, m.message)
	}

	writeClipboard = func(string) error { return errors.New("no clipboard") }
	m, _ = update(m, key("y"))
	if !m.failed || !strings.Contains(m.message, "no clipboard") {
		t.Errorf("expected clipboard error, got %q", m.message)
	}
}

func TestRunKeyReportsFailure(t *testing.T) {
	m := newTestModel(t)
	m, cmd := update(m, key("r"))
	if cmd == nil || !m.running {
		t.Fatal("expected run command")
	}
	m, _ = update(m, cmd())
	if m.running || !m.failed {
		t.Errorf("expected finished failed run, got running=%v message=%q", m.running, m.message)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t)
	_, cmd := update(m, key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}
