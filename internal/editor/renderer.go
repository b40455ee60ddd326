package editor

import "math"

// Block layout in canvas units.
const (
	BlockWidth    = 240.0
	HeaderHeight  = 40.0
	PortSpacing   = 32.0
	BodyPadding   = 16.0
	PortRadius    = 8.0
	edgeHitRadius = 6.0
	edgeSamples   = 24
	minCurvePull  = 40.0
)

// BlockRect is the canvas-space rectangle of b.
func BlockRect(b *Block) Rect {
	rows := math.Max(float64(len(b.InputNodes)), float64(len(b.OutputNodes)))
	if rows < 1 {
		rows = 1
	}
	return Rect{
		X: b.Position.X,
		Y: b.Position.Y,
		W: BlockWidth,
		H: HeaderHeight + rows*PortSpacing + BodyPadding,
	}
}

// HeaderRect is the drag handle of b in canvas space.
func HeaderRect(b *Block) Rect {
	return Rect{X: b.Position.X, Y: b.Position.Y, W: BlockWidth, H: HeaderHeight}
}

// InputAnchor is the canvas position of the i-th input port of b.
func InputAnchor(b *Block, i int) Point {
	return Point{
		X: b.Position.X,
		Y: b.Position.Y + HeaderHeight + PortSpacing/2 + float64(i)*PortSpacing,
	}
}

// OutputAnchor is the canvas position of the single output anchor of b. All
// output ports share it.
func OutputAnchor(b *Block) Point {
	return Point{
		X: b.Position.X + BlockWidth,
		Y: b.Position.Y + HeaderHeight + PortSpacing/2,
	}
}

// inputAnchorByName resolves a named input.
func inputAnchorByName(b *Block, name string) (Point, bool) {
	for i, n := range b.InputNodes {
		if n == name {
			return InputAnchor(b, i), true
		}
	}
	return Point{}, false
}

// PortView is a port anchor in screen space.
type PortView struct {
	Name        string `json:"name"`
	Anchor      Point  `json:"anchor"`
	Highlighted bool   `json:"highlighted,omitempty"`
}

// BlockView is a block laid out in screen space.
type BlockView struct {
	ID      string     `json:"id"`
	Type    string     `json:"type"`
	Title   string     `json:"title"`
	Rect    Rect       `json:"rect"`
	Header  Rect       `json:"header"`
	Inputs  []PortView `json:"inputs"`
	Outputs []string   `json:"outputs"`
	Output  *PortView  `json:"output,omitempty"`
	Status  Status     `json:"status"`
	Error   string     `json:"error,omitempty"`
	Content string     `json:"content,omitempty"`
}

// EdgeView is a rendered connection: a cubic curve from the source output
// anchor to the target input anchor, in screen space.
type EdgeView struct {
	Connection Connection `json:"connection"`
	From       Point      `json:"from"`
	C1         Point      `json:"c1"`
	C2         Point      `json:"c2"`
	To         Point      `json:"to"`
	Mid        Point      `json:"mid"`
	Selected   bool       `json:"selected,omitempty"`
}

// Scene is a full redraw of the canvas.
type Scene struct {
	Viewport Viewport    `json:"viewport"`
	Blocks   []BlockView `json:"blocks"`
	Edges    []EdgeView  `json:"edges"`
	Pending  *EdgeView   `json:"pending,omitempty"`
}

// curve builds the edge geometry between two screen points.
func curve(from, to Point, zoom float64) EdgeView {
	pull := math.Max(math.Abs(to.X-from.X)/2, minCurvePull*zoom)
	c1 := Point{from.X + pull, from.Y}
	c2 := Point{to.X - pull, to.Y}
	return EdgeView{
		From: from, C1: c1, C2: c2, To: to,
		Mid: bezier(from, c1, c2, to, 0.5),
	}
}

func bezier(p0, p1, p2, p3 Point, t float64) Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// Near reports whether p is within radius of the curve.
func (e EdgeView) Near(p Point, radius float64) bool {
	prev := e.From
	for i := 1; i <= edgeSamples; i++ {
		cur := bezier(e.From, e.C1, e.C2, e.To, float64(i)/edgeSamples)
		if segmentDistance(p, prev, cur) <= radius {
			return true
		}
		prev = cur
	}
	return false
}

func segmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / l2
	t = math.Max(0, math.Min(1, t))
	q := a.Add(ab.Scale(t))
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// render lays out every block and edge through the viewport. It is a pure
// function of block positions, connections and the viewport.
func render(vp *Viewport, blocks []*Block, conns []Connection, selected map[Connection]bool) Scene {
	scene := Scene{Viewport: *vp}
	byID := make(map[string]*Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
		view := BlockView{
			ID:      b.ID,
			Type:    b.Type,
			Title:   title(b),
			Rect:    vp.CanvasRectToScreen(BlockRect(b)),
			Header:  vp.CanvasRectToScreen(HeaderRect(b)),
			Outputs: append([]string(nil), b.OutputNodes...),
			Status:  b.Status,
			Error:   b.Error,
			Content: b.Content,
		}
		for i, name := range b.InputNodes {
			view.Inputs = append(view.Inputs, PortView{Name: name, Anchor: vp.CanvasToScreen(InputAnchor(b, i))})
		}
		if len(b.OutputNodes) > 0 {
			view.Output = &PortView{Name: b.OutputNodes[0], Anchor: vp.CanvasToScreen(OutputAnchor(b))}
		}
		scene.Blocks = append(scene.Blocks, view)
	}

	for _, c := range conns {
		src, ok := byID[c.Source]
		if !ok {
			continue
		}
		dst, ok := byID[c.Target]
		if !ok {
			continue
		}
		to, ok := inputAnchorByName(dst, c.InputID)
		if !ok {
			continue
		}
		e := curve(vp.CanvasToScreen(OutputAnchor(src)), vp.CanvasToScreen(to), vp.Zoom)
		e.Connection = c
		e.Selected = selected[c]
		scene.Edges = append(scene.Edges, e)
	}
	return scene
}

func title(b *Block) string {
	if b.Custom != nil {
		return b.Custom.ClassName
	}
	if k, ok := kinds[b.Type]; ok {
		return k.Title
	}
	return b.Type
}

// CanvasBounds is the union of all block rectangles in canvas space.
func CanvasBounds(blocks []*Block) (Rect, bool) {
	if len(blocks) == 0 {
		return Rect{}, false
	}
	r := BlockRect(blocks[0])
	for _, b := range blocks[1:] {
		r = r.Union(BlockRect(b))
	}
	return r, true
}

// EdgeAt returns the index of the topmost edge near the screen point p.
func (s Scene) EdgeAt(p Point) (int, bool) {
	for i := len(s.Edges) - 1; i >= 0; i-- {
		if s.Edges[i].Near(p, edgeHitRadius) {
			return i, true
		}
	}
	return -1, false
}
