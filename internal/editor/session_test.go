package editor

import (
	"errors"
	"strings"
	"testing"
)

func newTestSession(t *testing.T, p Processor) *Session {
	t.Helper()
	s := NewSession(Options{Processor: p, PropagationDelay: -1})
	t.Cleanup(s.Close)
	return s
}

func place(t *testing.T, s *Session, typ string, x, y float64) *Block {
	t.Helper()
	b, err := s.PlaceBlock(typ, x, y)
	if err != nil {
		t.Fatalf("place %s: %v", typ, err)
	}
	return b
}

func connect(t *testing.T, s *Session, source, target, input string) {
	t.Helper()
	if err := s.Connect(source, target, input); err != nil {
		t.Fatalf("connect %s -> %s.%s: %v", source, target, input, err)
	}
}

func TestPlaceBlockSnapsAndNumbers(t *testing.T) {
	s := newTestSession(t, nil)

	a := place(t, s, TypeVectorStore, 99, 119)
	b := place(t, s, TypeVectorStore, 0, 0)
	c := place(t, s, TypeAIModel, 0, 0)

	if a.ID != "vector_store-1" || b.ID != "vector_store-2" || c.ID != "ai_model-1" {
		t.Errorf("unexpected ids: %s %s %s", a.ID, b.ID, c.ID)
	}
	if a.Position != (Point{80, 120}) {
		t.Errorf("expected snapped position {80 120}, got %v", a.Position)
	}
	if got := c.Config["model"]; got != "llama3" {
		t.Errorf("expected default model llama3, got %v", got)
	}
	if len(c.InputNodes) != 2 || c.InputNodes[0] != "Query" || c.InputNodes[1] != "Context" {
		t.Errorf("unexpected ai_model inputs: %v", c.InputNodes)
	}

	if _, err := s.PlaceBlock("teleporter", 0, 0); err == nil {
		t.Error("expected error for unknown block type")
	}
}

func TestRemoveBlockCascadesConnections(t *testing.T) {
	s := newTestSession(t, nil)
	q := place(t, s, TypeQuery, 0, 0)
	v := place(t, s, TypeVectorStore, 0, 200)
	p := place(t, s, TypePromptTemplate, 400, 0)
	m := place(t, s, TypeAIModel, 800, 0)

	connect(t, s, q.ID, p.ID, "Query")
	connect(t, s, v.ID, p.ID, "Context")
	connect(t, s, q.ID, m.ID, "Query")
	connect(t, s, p.ID, m.ID, "Context")

	for _, id := range []string{p.ID, q.ID} {
		if err := s.RemoveBlock(id); err != nil {
			t.Fatalf("remove %s: %v", id, err)
		}
		for _, c := range s.Connections() {
			if c.Source == id || c.Target == id {
				t.Errorf("connection %+v still references removed block %s", c, id)
			}
		}
	}
	if n := len(s.Connections()); n != 0 {
		t.Errorf("expected no connections left, got %d", n)
	}
	if err := s.RemoveBlock(q.ID); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestLastConnectionWins(t *testing.T) {
	s := newTestSession(t, nil)
	q1 := place(t, s, TypeQuery, 0, 0)
	q2 := place(t, s, TypeQuery, 0, 120)
	q3 := place(t, s, TypeQuery, 0, 240)
	m := place(t, s, TypeAIModel, 400, 0)

	connect(t, s, q1.ID, m.ID, "Query")
	connect(t, s, q2.ID, m.ID, "Query")
	connect(t, s, q3.ID, m.ID, "Query")
	connect(t, s, q1.ID, m.ID, "Context")

	var onQuery []Connection
	for _, c := range s.Connections() {
		if c.Target == m.ID && c.InputID == "Query" {
			onQuery = append(onQuery, c)
		}
	}
	if len(onQuery) != 1 {
		t.Fatalf("expected exactly one connection on Query, got %d", len(onQuery))
	}
	if onQuery[0].Source != q3.ID {
		t.Errorf("expected most recent source %s, got %s", q3.ID, onQuery[0].Source)
	}
	if n := len(s.Connections()); n != 2 {
		t.Errorf("expected 2 connections total, got %d", n)
	}
}

func TestConnectRejections(t *testing.T) {
	s := newTestSession(t, nil)
	p := place(t, s, TypePromptTemplate, 0, 0)
	d := place(t, s, TypeDisplay, 400, 0)

	tests := []struct {
		name                  string
		source, target, input string
	}{
		{"self loop", p.ID, p.ID, "Query"},
		{"unknown source", "nope-1", p.ID, "Query"},
		{"unknown target", p.ID, "nope-1", "Input"},
		{"undeclared input", p.ID, d.ID, "Banana"},
		{"source without output", d.ID, p.ID, "Query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Connect(tt.source, tt.target, tt.input)
			if !IsConnectionRejected(err) {
				t.Errorf("expected ConnectionRejectedError, got %v", err)
			}
		})
	}
	if n := len(s.Connections()); n != 0 {
		t.Errorf("rejected connections must not be stored, got %d", n)
	}
}

func TestValidateStrict(t *testing.T) {
	s := newTestSession(t, nil)

	if res := s.Validate(false); res.Valid || res.Error != msgEmpty {
		t.Errorf("expected empty pipeline error, got %+v", res)
	}
	if res := s.Validate(true); res.Valid {
		t.Errorf("debug mode still requires a block, got %+v", res)
	}

	a := place(t, s, TypeVectorStore, 100, 100)
	if res := s.Validate(false); res.Valid || res.Error != msgNoGeneration {
		t.Errorf("expected missing AI model error, got %+v", res)
	}
	if res := s.Validate(true); !res.Valid {
		t.Errorf("debug mode should accept a non-empty pipeline, got %+v", res)
	}

	b := place(t, s, TypeAIModel, 400, 100)
	connect(t, s, a.ID, b.ID, "Context")

	res := s.Validate(false)
	if res.Valid {
		t.Fatal("expected invalid pipeline with Query unconnected")
	}
	if !strings.Contains(res.Error, "ai_model") || !strings.Contains(res.Error, "Query") {
		t.Errorf("expected error naming ai_model and Query, got %q", res.Error)
	}

	q := place(t, s, TypeQuery, 100, 300)
	connect(t, s, q.ID, b.ID, "Query")
	if res := s.Validate(false); !res.Valid {
		t.Errorf("expected valid pipeline, got %+v", res)
	}
}

func TestValidateNeedsRetrieval(t *testing.T) {
	s := newTestSession(t, nil)
	place(t, s, TypeAIModel, 0, 0)
	if res := s.Validate(false); res.Valid || res.Error != msgNoRetrieval {
		t.Errorf("expected missing vector store error, got %+v", res)
	}
}

func TestValidateCountsCustomCategories(t *testing.T) {
	s := newTestSession(t, nil)
	s.Palette().Register(CustomClass{
		ClassName: "Chroma",
		Outputs:   []string{"Results"},
		Category:  CategoryRetrieval,
	})
	s.Palette().Register(CustomClass{
		ClassName: "ChatOllama",
		Inputs:    []string{"Prompt"},
		Outputs:   []string{"Completion"},
		Category:  CategoryGeneration,
	})
	c, err := s.PlaceCustom("Chroma", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := s.PlaceCustom("ChatOllama", 400, 0)
	if err != nil {
		t.Fatal(err)
	}

	res := s.Validate(false)
	want := "custom block is missing a connection to its Prompt input"
	if res.Valid || res.Error != want {
		t.Errorf("expected %q, got %+v", want, res)
	}
	connect(t, s, c.ID, m.ID, "Prompt")
	if res := s.Validate(false); !res.Valid {
		t.Errorf("expected valid pipeline, got %+v", res)
	}
}

func TestPlaceCustomCarriesConstructor(t *testing.T) {
	s := newTestSession(t, nil)
	s.Palette().Register(CustomClass{
		ClassName:  "RecursiveCharacterTextSplitter",
		ModuleInfo: ModuleInfo{Library: "langchain_text_splitters", Module: "langchain_text_splitters"},
		Inputs:     []string{"Documents"},
		Outputs:    []string{"Chunks"},
		Methods:    []string{"split_documents"},
	})

	b, err := s.PlaceCustom("RecursiveCharacterTextSplitter", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != TypeCustom || b.ID != "custom-1" {
		t.Errorf("unexpected block %s of type %s", b.ID, b.Type)
	}
	if b.Custom.Methods[0] != ConstructorMethod {
		t.Errorf("expected constructor first, got %v", b.Custom.Methods)
	}
	if b.Custom.SelectedMethod != ConstructorMethod {
		t.Errorf("expected constructor selected, got %s", b.Custom.SelectedMethod)
	}
	if _, err := s.PlaceCustom("Unknown", 0, 0); err == nil {
		t.Error("expected error for unregistered class")
	}
}

func TestClickEdgeSelectsThenDeletes(t *testing.T) {
	s := newTestSession(t, nil)
	q := place(t, s, TypeQuery, 0, 0)
	m := place(t, s, TypeAIModel, 400, 0)
	connect(t, s, q.ID, m.ID, "Query")
	c := Connection{Source: q.ID, Target: m.ID, InputID: "Query"}

	deleted, err := s.ClickEdge(c)
	if err != nil || deleted {
		t.Fatalf("first click should select, got deleted=%v err=%v", deleted, err)
	}
	if !s.Selected(c) {
		t.Error("expected edge to be selected")
	}
	if scene := s.Render(); len(scene.Edges) != 1 || !scene.Edges[0].Selected {
		t.Error("expected rendered edge to be selected")
	}

	deleted, err = s.ClickEdge(c)
	if err != nil || !deleted {
		t.Fatalf("second click should delete, got deleted=%v err=%v", deleted, err)
	}
	if n := len(s.Connections()); n != 0 {
		t.Errorf("expected edge removed, %d left", n)
	}
	if _, err := s.ClickEdge(c); err == nil {
		t.Error("expected error clicking a missing edge")
	}
}

func TestDisconnectInputResetsDisplay(t *testing.T) {
	s := newTestSession(t, nil)
	q := place(t, s, TypeQuery, 0, 0)
	d := place(t, s, TypeDisplay, 400, 0)
	connect(t, s, q.ID, d.ID, "Input")

	s.mu.Lock()
	blk, _ := s.reg.get(d.ID)
	blk.Content = "shown"
	blk.Output = "shown"
	blk.HasOutput = true
	s.mu.Unlock()

	if !s.DisconnectInput(d.ID, "Input") {
		t.Fatal("expected a connection to be removed")
	}
	got, _ := s.Block(d.ID)
	if got.Content != "" || got.HasOutput {
		t.Errorf("expected display reset, got content=%q hasOutput=%v", got.Content, got.HasOutput)
	}
	if s.DisconnectInput(d.ID, "Input") {
		t.Error("second disconnect should report nothing removed")
	}
}

func TestReplacingDisplayInputResetsDisplay(t *testing.T) {
	s := newTestSession(t, nil)
	a := place(t, s, TypeQuery, 0, 0)
	b := place(t, s, TypeQuery, 0, 200)
	d := place(t, s, TypeDisplay, 400, 0)
	connect(t, s, a.ID, d.ID, "Input")

	s.mu.Lock()
	blk, _ := s.reg.get(d.ID)
	blk.Content = "from a"
	blk.Output = "from a"
	blk.HasOutput = true
	s.mu.Unlock()

	// reconnecting the same edge keeps what is shown
	connect(t, s, a.ID, d.ID, "Input")
	if got, _ := s.Block(d.ID); got.Content != "from a" {
		t.Errorf("expected content kept on identical reconnect, got %q", got.Content)
	}

	connect(t, s, b.ID, d.ID, "Input")
	got, _ := s.Block(d.ID)
	if got.Content != "" || got.HasOutput {
		t.Errorf("expected display reset after input replaced, got content=%q hasOutput=%v", got.Content, got.HasOutput)
	}
}

func TestRenderEdgeGeometry(t *testing.T) {
	s := newTestSession(t, nil)
	q := place(t, s, TypeQuery, 0, 0)
	m := place(t, s, TypeAIModel, 400, 0)
	connect(t, s, q.ID, m.ID, "Context")

	scene := s.Render()
	if len(scene.Blocks) != 2 || len(scene.Edges) != 1 {
		t.Fatalf("expected 2 blocks and 1 edge, got %d and %d", len(scene.Blocks), len(scene.Edges))
	}
	e := scene.Edges[0]
	if e.From != (Point{240, 56}) {
		t.Errorf("expected edge from output anchor {240 56}, got %v", e.From)
	}
	if e.To != (Point{400, 88}) {
		t.Errorf("expected edge to Context anchor {400 88}, got %v", e.To)
	}

	// moving the target and zooming both redraw the edge
	if _, err := s.MoveBlock(m.ID, 800, 0); err != nil {
		t.Fatal(err)
	}
	s.ZoomAt(Point{0, 0}, 0.5)
	e = s.Render().Edges[0]
	if e.To != (Point{400, 44}) {
		t.Errorf("expected redrawn edge end {400 44}, got %v", e.To)
	}
	if i, ok := s.Render().EdgeAt(e.Mid); !ok || i != 0 {
		t.Error("expected edge hit at its midpoint")
	}
}

func TestFitToViewShowsEveryBlock(t *testing.T) {
	s := newTestSession(t, nil)
	s.SetViewportSize(1024, 768)
	place(t, s, TypeQuery, -1000, -400)
	place(t, s, TypeAIModel, 1500, 900)

	s.FitToView()
	scene := s.Render()
	for _, b := range scene.Blocks {
		if b.Rect.X < 0 || b.Rect.Y < 0 || b.Rect.X+b.Rect.W > 1024 || b.Rect.Y+b.Rect.H > 768 {
			t.Errorf("block %s at %+v is off screen", b.ID, b.Rect)
		}
	}
}
