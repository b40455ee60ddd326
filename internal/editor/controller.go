package editor

import (
	"math"
	"sync"
)

// State is the interaction mode of a Controller.
type State int

const (
	StateIdle State = iota
	StatePanningCanvas
	StateDraggingBlock
	StateDrawingConnection
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePanningCanvas:
		return "panning"
	case StateDraggingBlock:
		return "dragging"
	case StateDrawingConnection:
		return "connecting"
	default:
		return "unknown"
	}
}

// Button is a pointer button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// PointerEvent is a pointer position in screen space plus the pressed
// button and modifier.
type PointerEvent struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button Button  `json:"button"`
	Alt    bool    `json:"alt"`
}

func (ev PointerEvent) point() Point { return Point{ev.X, ev.Y} }

// hitKind classifies what lies under the pointer.
type hitKind int

const (
	hitNone hitKind = iota
	hitOutput
	hitInput
	hitHeader
	hitBody
	hitEdge
)

type hit struct {
	kind  hitKind
	block string
	port  string
	edge  Connection
}

// Controller turns pointer events into session edits. Exactly one state is
// active at a time; moves and releases that do not belong to the active
// state are ignored.
type Controller struct {
	s *Session

	mu         sync.Mutex
	state      State
	dragID     string
	dragOffset Point
	source     string
	pointer    Point
	hover      *hit
}

func NewController(s *Session) *Controller {
	return &Controller{s: s}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PointerDown starts a pan, a block drag or a pending connection, or clicks
// an edge.
func (c *Controller) PointerDown(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return
	}

	p := ev.point()
	h := c.hitTest(p)

	if ev.Button == ButtonMiddle || (ev.Button == ButtonLeft && ev.Alt && h.kind == hitNone) {
		c.state = StatePanningCanvas
		c.s.startPan(p)
		return
	}
	if ev.Button != ButtonLeft {
		return
	}

	switch h.kind {
	case hitOutput:
		c.state = StateDrawingConnection
		c.source = h.block
		c.pointer = p
		c.hover = nil
	case hitHeader:
		b, ok := c.s.Block(h.block)
		if !ok {
			return
		}
		c.state = StateDraggingBlock
		c.dragID = h.block
		c.dragOffset = c.s.ScreenToCanvas(p).Sub(b.Position)
	case hitEdge:
		c.s.ClickEdge(h.edge)
	}
}

// PointerMove updates the active interaction.
func (c *Controller) PointerMove(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := ev.point()
	switch c.state {
	case StatePanningCanvas:
		c.s.panTo(p)
	case StateDraggingBlock:
		pos := c.s.ScreenToCanvas(p).Sub(c.dragOffset)
		c.s.MoveBlock(c.dragID, pos.X, pos.Y)
	case StateDrawingConnection:
		c.pointer = p
		c.hover = nil
		if h := c.hitTest(p); h.kind == hitInput && h.block != c.source {
			c.hover = &h
		}
	}
}

// PointerUp finishes the active interaction. A pending connection released
// over an input of another block is committed and the target processed;
// anything else is dropped without side effects.
func (c *Controller) PointerUp(ev PointerEvent) {
	c.mu.Lock()
	state := c.state
	source := c.source
	c.state = StateIdle
	c.dragID = ""
	c.source = ""
	c.hover = nil
	var target hit
	if state == StateDrawingConnection {
		target = c.hitTest(ev.point())
	}
	c.mu.Unlock()

	if state == StateDrawingConnection && target.kind == hitInput && target.block != source {
		// self-loops and unknown inputs come back as ConnectionRejectedError
		_ = c.s.Link(source, target.block, target.port)
	}
}

// Cancel abandons the active interaction.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.state = StateIdle
	c.dragID = ""
	c.source = ""
	c.hover = nil
	c.mu.Unlock()
}

// Scene renders the session plus the pending connection and highlighted
// input ports.
func (c *Controller) Scene() Scene {
	scene := c.s.Render()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDrawingConnection {
		return scene
	}
	for i := range scene.Blocks {
		bv := &scene.Blocks[i]
		if bv.ID == c.source && bv.Output != nil {
			e := curve(bv.Output.Anchor, c.pointer, scene.Viewport.Zoom)
			e.Connection = Connection{Source: c.source}
			scene.Pending = &e
			continue
		}
		if c.hover == nil || bv.ID != c.hover.block {
			continue
		}
		for j := range bv.Inputs {
			if bv.Inputs[j].Name == c.hover.port {
				bv.Inputs[j].Highlighted = true
			}
		}
	}
	return scene
}

// hitTest finds what lies under a screen point. Later blocks are on top;
// ports win over headers, headers over bodies, blocks over edges.
func (c *Controller) hitTest(p Point) hit {
	scene := c.s.Render()
	radius := math.Max(PortRadius*scene.Viewport.Zoom, 6)

	for i := len(scene.Blocks) - 1; i >= 0; i-- {
		bv := scene.Blocks[i]
		if bv.Output != nil && near(p, bv.Output.Anchor, radius) {
			return hit{kind: hitOutput, block: bv.ID, port: bv.Output.Name}
		}
		for _, in := range bv.Inputs {
			if near(p, in.Anchor, radius) {
				return hit{kind: hitInput, block: bv.ID, port: in.Name}
			}
		}
	}
	for i := len(scene.Blocks) - 1; i >= 0; i-- {
		bv := scene.Blocks[i]
		if bv.Header.Contains(p) {
			return hit{kind: hitHeader, block: bv.ID}
		}
		if bv.Rect.Contains(p) {
			return hit{kind: hitBody, block: bv.ID}
		}
	}
	if i, ok := scene.EdgeAt(p); ok {
		return hit{kind: hitEdge, edge: scene.Edges[i].Connection}
	}
	return hit{kind: hitNone}
}

func near(p, q Point, r float64) bool {
	return math.Hypot(p.X-q.X, p.Y-q.Y) <= r
}
