package editor

import (
	"fmt"
	"sync"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
)

const (
	DefaultGridSize         = 40.0
	DefaultPropagationDelay = 100 * time.Millisecond
)

// Options configures a new Session. Zero values fall back to the defaults.
type Options struct {
	ID               string
	GridSize         float64
	ZoomMin          float64
	ZoomMax          float64
	ZoomStep         float64
	PropagationDelay time.Duration
	Debug            bool
	Processor        Processor
	Palette          *Palette
}

// Session is one editor: viewport, blocks, connections and the engine that
// processes them. All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	id       string
	grid     float64
	debug    bool
	vp       *Viewport
	reg      *registry
	conns    *connectionStore
	selected map[Connection]bool
	palette  *Palette
	engine   *Engine
}

var sessionSeq struct {
	sync.Mutex
	n int
}

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	if opts.ID == "" {
		sessionSeq.Lock()
		sessionSeq.n++
		opts.ID = fmt.Sprintf("session-%d", sessionSeq.n)
		sessionSeq.Unlock()
	}
	if opts.GridSize <= 0 {
		opts.GridSize = DefaultGridSize
	}
	if opts.PropagationDelay < 0 {
		opts.PropagationDelay = 0
	} else if opts.PropagationDelay == 0 {
		opts.PropagationDelay = DefaultPropagationDelay
	}
	if opts.Palette == nil {
		opts.Palette = NewPalette()
	}

	s := &Session{
		id:       opts.ID,
		grid:     opts.GridSize,
		debug:    opts.Debug,
		vp:       NewViewport(opts.ZoomMin, opts.ZoomMax, opts.ZoomStep),
		reg:      newRegistry(),
		conns:    newConnectionStore(),
		selected: make(map[Connection]bool),
		palette:  opts.Palette,
	}
	s.engine = newEngine(s, opts.Processor, opts.PropagationDelay)
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Palette() *Palette { return s.palette }
func (s *Session) Engine() *Engine   { return s.engine }
func (s *Session) GridSize() float64 { return s.grid }

// Debug reports whether debug mode (relaxed validation) is on.
func (s *Session) Debug() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug
}

func (s *Session) SetDebug(on bool) {
	s.mu.Lock()
	s.debug = on
	s.mu.Unlock()
}

func (s *Session) emit(level, name, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["session_id"] = s.id
	events.Emit(level, name, msg, fields)
}

// --- viewport ---

// Viewport returns a copy of the current transform.
func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.vp
}

func (s *Session) SetViewportSize(w, h float64) {
	s.mu.Lock()
	s.vp.SetSize(w, h)
	s.mu.Unlock()
}

// SetTransform sets zoom and translation directly; zoom is clamped.
func (s *Session) SetTransform(zoom float64, translate Point) {
	s.mu.Lock()
	s.vp.Zoom = s.vp.clamp(zoom)
	s.vp.Translate = translate
	s.mu.Unlock()
}

func (s *Session) ZoomIn() {
	s.mu.Lock()
	s.vp.ZoomIn()
	s.mu.Unlock()
}

func (s *Session) ZoomOut() {
	s.mu.Lock()
	s.vp.ZoomOut()
	s.mu.Unlock()
}

// ZoomAt zooms to zoom keeping the canvas point under anchor in place.
func (s *Session) ZoomAt(anchor Point, zoom float64) {
	s.mu.Lock()
	s.vp.ZoomAt(anchor, zoom)
	s.mu.Unlock()
}

// Wheel zooms one step around anchor; dir > 0 zooms in.
func (s *Session) Wheel(anchor Point, dir int) {
	s.mu.Lock()
	s.vp.ZoomStepAt(anchor, dir)
	s.mu.Unlock()
}

// ResetView returns to zoom 1 at the origin.
func (s *Session) ResetView() {
	s.mu.Lock()
	s.vp.Reset()
	s.mu.Unlock()
}

// FitToView zooms and centres so every block is visible. It needs a
// viewport size and at least one block.
func (s *Session) FitToView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bounds, ok := CanvasBounds(s.reg.list()); ok {
		s.vp.Fit(bounds)
	}
}

func (s *Session) ScreenToCanvas(p Point) Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp.ScreenToCanvas(p)
}

func (s *Session) CanvasToScreen(p Point) Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp.CanvasToScreen(p)
}

func (s *Session) startPan(pointer Point) {
	s.mu.Lock()
	s.vp.StartPan(pointer)
	s.mu.Unlock()
}

func (s *Session) panTo(pointer Point) {
	s.mu.Lock()
	s.vp.PanTo(pointer)
	s.mu.Unlock()
}

// --- blocks ---

// PlaceBlock creates a built-in block at a canvas position snapped to the
// grid.
func (s *Session) PlaceBlock(typ string, x, y float64) (*Block, error) {
	kind, err := LookupKind(typ)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	b := &Block{
		ID:          s.reg.nextID(typ),
		Type:        typ,
		Position:    SnapPoint(Point{x, y}, s.grid),
		Config:      cloneMap(kind.Defaults),
		InputNodes:  append([]string(nil), kind.Inputs...),
		OutputNodes: append([]string(nil), kind.Outputs...),
		Status:      StatusIdle,
	}
	s.reg.add(b)
	out := b.clone()
	s.mu.Unlock()

	s.emit("info", "block.placed", "", map[string]interface{}{
		"block_id": out.ID,
		"type":     out.Type,
		"x":        out.Position.X,
		"y":        out.Position.Y,
	})
	return out, nil
}

// PlaceCustom creates a block of a class registered on the palette.
func (s *Session) PlaceCustom(className string, x, y float64) (*Block, error) {
	class, ok := s.palette.Get(className)
	if !ok {
		return nil, fmt.Errorf("custom class not registered: %s", className)
	}

	s.mu.Lock()
	b := newCustomBlock(s.reg.nextID(TypeCustom), class)
	b.Position = SnapPoint(Point{x, y}, s.grid)
	s.reg.add(b)
	out := b.clone()
	s.mu.Unlock()

	s.emit("info", "block.placed", "", map[string]interface{}{
		"block_id":   out.ID,
		"type":       out.Type,
		"class_name": className,
		"x":          out.Position.X,
		"y":          out.Position.Y,
	})
	return out, nil
}

func newCustomBlock(id string, class CustomClass) *Block {
	info := &CustomInfo{
		ClassName:      class.ClassName,
		ModuleInfo:     class.ModuleInfo,
		Methods:        append([]string(nil), class.Methods...),
		SelectedMethod: ConstructorMethod,
		Parameters:     cloneParams(class.Parameters),
	}
	info.ensureConstructor()
	return &Block{
		ID:          id,
		Type:        TypeCustom,
		Config:      map[string]any{},
		InputNodes:  append([]string(nil), class.Inputs...),
		OutputNodes: append([]string(nil), class.Outputs...),
		Status:      StatusIdle,
		Custom:      info,
	}
}

// RestoreBlock adds a block with a caller-chosen id, as template loading
// does. Missing ports and config are filled from the kind or the palette;
// the position is snapped.
func (s *Session) RestoreBlock(b Block) (*Block, error) {
	nb := b.clone()
	nb.Position = SnapPoint(b.Position, s.grid)
	nb.Status = StatusIdle
	nb.Output, nb.HasOutput, nb.Error, nb.Content = nil, false, "", ""

	if nb.Type == TypeCustom {
		if nb.Custom == nil {
			return nil, fmt.Errorf("custom block %s has no class", b.ID)
		}
		if class, ok := s.palette.Get(nb.Custom.ClassName); ok {
			if len(nb.InputNodes) == 0 && len(nb.OutputNodes) == 0 {
				nb.InputNodes = class.Inputs
				nb.OutputNodes = class.Outputs
			}
			if nb.Custom.ModuleInfo == (ModuleInfo{}) {
				nb.Custom.ModuleInfo = class.ModuleInfo
			}
		}
		nb.Custom.ensureConstructor()
		if nb.Custom.SelectedMethod == "" {
			nb.Custom.SelectedMethod = ConstructorMethod
		}
	} else {
		kind, err := LookupKind(nb.Type)
		if err != nil {
			return nil, err
		}
		if len(nb.InputNodes) == 0 && len(nb.OutputNodes) == 0 {
			nb.InputNodes = append([]string(nil), kind.Inputs...)
			nb.OutputNodes = append([]string(nil), kind.Outputs...)
		}
		for k, v := range kind.Defaults {
			if _, ok := nb.Config[k]; !ok {
				nb.Config[k] = v
			}
		}
	}

	s.mu.Lock()
	if nb.ID == "" {
		nb.ID = s.reg.nextID(nb.Type)
	}
	if err := s.reg.add(nb); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	out := nb.clone()
	s.mu.Unlock()

	s.emit("info", "block.placed", "", map[string]interface{}{
		"block_id": out.ID,
		"type":     out.Type,
		"restored": true,
	})
	return out, nil
}

// MoveBlock sets a block's canvas position, snapped to the grid.
func (s *Session) MoveBlock(id string, x, y float64) (Point, error) {
	s.mu.Lock()
	b, ok := s.reg.get(id)
	if !ok {
		s.mu.Unlock()
		return Point{}, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	pos := SnapPoint(Point{x, y}, s.grid)
	moved := pos != b.Position
	b.Position = pos
	s.mu.Unlock()

	if moved {
		s.emit("info", "block.moved", "", map[string]interface{}{
			"block_id": id,
			"x":        pos.X,
			"y":        pos.Y,
		})
	}
	return pos, nil
}

// RemoveBlock deletes a block and every connection touching it. Display
// blocks that lose their input go back to the no-input state.
func (s *Session) RemoveBlock(id string) error {
	s.mu.Lock()
	if !s.reg.remove(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	removed := s.conns.removeBlock(id)
	for _, c := range removed {
		delete(s.selected, c)
		s.resetDisplayLocked(c.Target)
	}
	s.mu.Unlock()

	s.emit("info", "block.removed", "", map[string]interface{}{
		"block_id":    id,
		"connections": len(removed),
	})
	for _, c := range removed {
		s.emitConnection("connection.removed", c)
	}
	return nil
}

// resetDisplayLocked clears a display block's content. s.mu must be held.
func (s *Session) resetDisplayLocked(id string) {
	b, ok := s.reg.get(id)
	if !ok || b.Type != TypeDisplay {
		return
	}
	b.Content = ""
	b.Output = nil
	b.HasOutput = false
	b.Status = StatusIdle
	b.Error = ""
}

// Block returns a copy of the block.
func (s *Session) Block(id string) (*Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.reg.get(id)
	if !ok {
		return nil, false
	}
	return b.clone(), true
}

// Blocks returns copies of all blocks in registration order.
func (s *Session) Blocks() []*Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.reg.list()
	out := make([]*Block, len(list))
	for i, b := range list {
		out[i] = b.clone()
	}
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.len()
}

// UpdateConfig merges values into a block's config.
func (s *Session) UpdateConfig(id string, values map[string]any) error {
	s.mu.Lock()
	b, ok := s.reg.get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	keys := make([]string, 0, len(values))
	for k, v := range values {
		b.Config[k] = v
		keys = append(keys, k)
	}
	s.mu.Unlock()

	s.emit("info", "block.config_changed", "", map[string]interface{}{
		"block_id": id,
		"keys":     keys,
	})
	return nil
}

// EditConfig merges values like UpdateConfig and then processes the block,
// so the edit flows downstream the way a new connection does.
func (s *Session) EditConfig(id string, values map[string]any) error {
	if err := s.UpdateConfig(id, values); err != nil {
		return err
	}
	s.engine.Trigger(id)
	return nil
}

// SelectMethod sets the selected method of a custom block, adding it to
// the method list if needed.
func (s *Session) SelectMethod(id, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if b.Custom == nil {
		return fmt.Errorf("block %s is not a custom block", id)
	}
	found := false
	for _, m := range b.Custom.Methods {
		if m == method {
			found = true
			break
		}
	}
	if !found {
		b.Custom.Methods = append(b.Custom.Methods, method)
	}
	b.Custom.SelectedMethod = method
	return nil
}

// SetParameter sets one parameter value of a custom block method.
func (s *Session) SetParameter(id, method, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if b.Custom == nil {
		return fmt.Errorf("block %s is not a custom block", id)
	}
	if b.Custom.Parameters == nil {
		b.Custom.Parameters = map[string]map[string]any{}
	}
	if b.Custom.Parameters[method] == nil {
		b.Custom.Parameters[method] = map[string]any{}
	}
	b.Custom.Parameters[method][name] = value
	return nil
}

// --- connections ---

// Connect adds an edge from source to target's input. An existing edge on
// the same input is replaced.
func (s *Session) Connect(source, target, inputID string) error {
	c := Connection{Source: source, Target: target, InputID: inputID}

	s.mu.Lock()
	if source == target {
		s.mu.Unlock()
		return &ConnectionRejectedError{Connection: c, Reason: "self-loop"}
	}
	src, ok := s.reg.get(source)
	if !ok {
		s.mu.Unlock()
		return &ConnectionRejectedError{Connection: c, Reason: "unknown source block"}
	}
	if len(src.OutputNodes) == 0 {
		s.mu.Unlock()
		return &ConnectionRejectedError{Connection: c, Reason: "source has no output"}
	}
	dst, ok := s.reg.get(target)
	if !ok {
		s.mu.Unlock()
		return &ConnectionRejectedError{Connection: c, Reason: "unknown target block"}
	}
	if !dst.HasInput(inputID) {
		s.mu.Unlock()
		return &ConnectionRejectedError{Connection: c, Reason: "no such input"}
	}
	old, replaced := s.conns.add(c)
	if replaced {
		delete(s.selected, old)
		if old != c {
			s.resetDisplayLocked(target)
		}
	}
	s.mu.Unlock()

	if replaced && old != c {
		s.emitConnection("connection.removed", old)
	}
	s.emitConnection("connection.created", c)
	return nil
}

// Link connects like Connect, notifies the backend and processes the
// target, the way a dropped connection does in the editor.
func (s *Session) Link(source, target, inputID string) error {
	if err := s.Connect(source, target, inputID); err != nil {
		return err
	}
	s.engine.notifyConnect(source, target)
	s.engine.Trigger(target)
	return nil
}

// DisconnectInput removes the edge feeding target's input and resets
// display targets.
func (s *Session) DisconnectInput(target, inputID string) bool {
	s.mu.Lock()
	c, ok := s.conns.removeInput(target, inputID)
	if ok {
		delete(s.selected, c)
		s.resetDisplayLocked(target)
	}
	s.mu.Unlock()

	if ok {
		s.emitConnection("connection.removed", c)
	}
	return ok
}

// RemoveConnection deletes an exact edge.
func (s *Session) RemoveConnection(c Connection) bool {
	s.mu.Lock()
	ok := s.conns.remove(c)
	if ok {
		delete(s.selected, c)
		s.resetDisplayLocked(c.Target)
	}
	s.mu.Unlock()

	if ok {
		s.emitConnection("connection.removed", c)
	}
	return ok
}

// ClickEdge selects an unselected edge; clicking a selected edge deletes
// it. It reports whether the edge was deleted.
func (s *Session) ClickEdge(c Connection) (bool, error) {
	s.mu.Lock()
	if cur, ok := s.conns.byInput(c.Target, c.InputID); !ok || cur != c {
		s.mu.Unlock()
		return false, fmt.Errorf("connection not found: %s -> %s.%s", c.Source, c.Target, c.InputID)
	}
	if !s.selected[c] {
		s.selected[c] = true
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return s.RemoveConnection(c), nil
}

// Connections returns all edges in creation order.
func (s *Session) Connections() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns.all()
}

// Selected reports whether an edge is selected.
func (s *Session) Selected(c Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[c]
}

func (s *Session) emitConnection(name string, c Connection) {
	s.emit("info", name, "", map[string]interface{}{
		"source":   c.Source,
		"target":   c.Target,
		"input_id": c.InputID,
	})
}

// --- whole graph ---

// Render lays out the whole graph in screen space.
func (s *Session) Render() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render(s.vp, s.reg.list(), s.conns.all(), s.selected)
}

// Validate checks the pipeline rules; debug relaxes them to "not empty".
func (s *Session) Validate(debug bool) ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validate(s.reg.list(), s.conns, s.palette, debug)
}

// Clear removes every block and connection and resets the id counters.
// The palette and viewport are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	s.reg.clear()
	s.conns.clear()
	s.selected = make(map[Connection]bool)
	s.mu.Unlock()
}

// Close stops pending propagation and waits for it to drain.
func (s *Session) Close() {
	s.engine.stop()
}
