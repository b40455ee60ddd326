// Package tui is a terminal front-end for an editor session. Mouse input is
// fed to the editor's interaction controller; keys cover the palette, the
// view and the pipeline actions.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

var (
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

var writeClipboard = clipboard.WriteAll

const refreshInterval = 250 * time.Millisecond

type refreshMsg struct{}

type runDoneMsg struct {
	report *editor.RunReport
	err    error
}

type savedMsg struct {
	path string
	err  error
}

// Model is the bubbletea model of the terminal editor.
type Model struct {
	session *editor.Session
	ctrl    *editor.Controller
	path    string

	width, height int
	cursor        editor.Point
	running       bool

	message string
	failed  bool
}

// New creates the editor model. Templates are saved to path.
func New(s *editor.Session, path string) Model {
	return Model{
		session: s,
		ctrl:    editor.NewController(s),
		path:    path,
	}
}

// Run starts the terminal editor and blocks until it exits.
func Run(s *editor.Session, path string) error {
	p := tea.NewProgram(
		New(s, path),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return refresh()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) canvasRows() int {
	if m.height < 3 {
		return 1
	}
	return m.height - 2
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.session.SetViewportSize(float64(m.width)*CellW, float64(m.canvasRows())*CellH)
		return m, nil

	case refreshMsg:
		return m, refresh()

	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setInfo(fmt.Sprintf("ran %d blocks in %s", len(msg.report.Processed), msg.report.Duration.Round(time.Millisecond)))
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setInfo("saved " + msg.path)
		}
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	p := cellPoint(msg.X, msg.Y)
	m.cursor = p
	ev := editor.PointerEvent{X: p.X, Y: p.Y, Alt: msg.Alt}

	switch msg.Type {
	case tea.MouseLeft:
		m.ctrl.PointerDown(ev)
	case tea.MouseMiddle:
		ev.Button = editor.ButtonMiddle
		m.ctrl.PointerDown(ev)
	case tea.MouseRight:
		ev.Button = editor.ButtonRight
		m.ctrl.PointerDown(ev)
	case tea.MouseMotion:
		m.ctrl.PointerMove(ev)
	case tea.MouseRelease:
		m.ctrl.PointerUp(ev)
	case tea.MouseWheelUp:
		m.session.Wheel(p, 1)
	case tea.MouseWheelDown:
		m.session.Wheel(p, -1)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc":
		m.ctrl.Cancel()
	case "+", "=":
		m.session.ZoomIn()
	case "-":
		m.session.ZoomOut()
	case "0":
		m.session.ResetView()
	case "f":
		m.session.FitToView()
	case "d":
		m.session.SetDebug(!m.session.Debug())
	case "v":
		res := m.session.Validate(m.session.Debug())
		if res.Valid {
			m.setInfo("pipeline is valid")
		} else {
			m.setError(fmt.Errorf("%s", res.Error))
		}
	case "r":
		if m.running {
			return m, nil
		}
		m.running = true
		m.setInfo("running...")
		return m, m.run()
	case "x", "delete":
		if id, ok := m.blockAtCursor(); ok {
			if err := m.session.RemoveBlock(id); err != nil {
				m.setError(err)
			} else {
				m.setInfo("removed " + id)
			}
		}
	case "p":
		if id, ok := m.blockAtCursor(); ok {
			s := m.session
			return m, func() tea.Msg {
				err := s.Engine().ProcessBlock(context.Background(), id)
				return runDoneMsg{report: &editor.RunReport{Processed: []string{id}}, err: err}
			}
		}
	case "s":
		return m, m.save()
	case "y":
		m.copyTemplate()
	default:
		if len(key) == 1 {
			if i := int(key[0]) - '1'; i >= 0 && i < len(editor.KindTypes()) {
				m.place(editor.KindTypes()[i])
			}
		}
	}
	return m, nil
}

func (m *Model) place(typ string) {
	at := m.session.ScreenToCanvas(m.cursor)
	b, err := m.session.PlaceBlock(typ, at.X, at.Y)
	if err != nil {
		m.setError(err)
		return
	}
	m.setInfo("placed " + b.ID)
}

func (m Model) blockAtCursor() (string, bool) {
	scene := m.session.Render()
	for i := len(scene.Blocks) - 1; i >= 0; i-- {
		if scene.Blocks[i].Rect.Contains(m.cursor) {
			return scene.Blocks[i].ID, true
		}
	}
	return "", false
}

func (m Model) run() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		report, err := s.Engine().RunAll(context.Background())
		if err == nil {
			s.Engine().Wait()
		}
		return runDoneMsg{report: report, err: err}
	}
}

func (m Model) templateJSON() ([]byte, error) {
	name := strings.TrimSuffix(filepath.Base(m.path), ".json")
	if m.path == "" {
		name = "pipeline"
	}
	return template.Marshal(template.Save(m.session, name))
}

func (m Model) save() tea.Cmd {
	path := m.path
	if path == "" {
		path = "pipeline.json"
	}
	data, err := m.templateJSON()
	return func() tea.Msg {
		if err != nil {
			return savedMsg{path: path, err: err}
		}
		return savedMsg{path: path, err: os.WriteFile(path, data, 0o644)}
	}
}

func (m *Model) copyTemplate() {
	data, err := m.templateJSON()
	if err == nil {
		err = writeClipboard(string(data))
	}
	if err != nil {
		m.setError(fmt.Errorf("copy failed: %w", err))
		return
	}
	m.setInfo("template copied to clipboard")
}

func (m *Model) setInfo(s string) {
	m.message, m.failed = s, false
}

func (m *Model) setError(err error) {
	m.message, m.failed = err.Error(), true
}

const keyHelp = "1-8 place  +/- zoom  0 reset  f fit  r run  p process  v validate  d debug  x delete  s save  y copy  q quit"

func (m Model) View() string {
	cols := m.width
	if cols < 1 {
		cols = 80
	}
	lines := Draw(m.ctrl.Scene(), cols, m.canvasRows())

	vp := m.session.Viewport()
	status := fmt.Sprintf(" %s  %d blocks  zoom %.0f%%  %s ", m.session.ID(), m.session.Len(), vp.Zoom*100, m.ctrl.State())
	bar := barStyle.Render(status)
	if m.session.Debug() {
		bar += " " + debugStyle.Render("DEBUG")
	}
	if m.message != "" {
		if m.failed {
			bar += " " + errStyle.Render(m.message)
		} else {
			bar += " " + okStyle.Render(m.message)
		}
	}

	return strings.Join(lines, "\n") + "\n" + bar + "\n" + hintStyle.Render(keyHelp)
}
