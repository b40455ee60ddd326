package editor

import "math"

// Point is a 2D position, in canvas or screen space depending on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p*f.
func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether p lies inside r (right/bottom edges exclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.W, o.X+o.W)
	maxY := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

const (
	DefaultZoom     = 1.0
	DefaultZoomMin  = 0.1
	DefaultZoomMax  = 2.0
	DefaultZoomStep = 0.1

	fitPadding = 0.2
	fitMinZoom = 0.2
	fitMaxZoom = 2.0
)

// Viewport is the pan/zoom transform between canvas and screen space:
// screen = canvas*Zoom + Translate.
type Viewport struct {
	Zoom      float64 `json:"zoom"`
	Translate Point   `json:"translate"`

	MinZoom float64 `json:"-"`
	MaxZoom float64 `json:"-"`
	Step    float64 `json:"-"`

	// Width and Height are the screen size of the canvas element.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	panOrigin  Point
	panPointer Point
}

// NewViewport returns a viewport at zoom 1 with no translation.
func NewViewport(minZoom, maxZoom, step float64) *Viewport {
	if minZoom <= 0 {
		minZoom = DefaultZoomMin
	}
	if maxZoom < minZoom {
		maxZoom = DefaultZoomMax
	}
	if step <= 0 {
		step = DefaultZoomStep
	}
	return &Viewport{Zoom: DefaultZoom, MinZoom: minZoom, MaxZoom: maxZoom, Step: step}
}

// ScreenToCanvas converts a screen position to canvas coordinates.
func (v *Viewport) ScreenToCanvas(p Point) Point {
	return Point{(p.X - v.Translate.X) / v.Zoom, (p.Y - v.Translate.Y) / v.Zoom}
}

// CanvasToScreen converts a canvas position to screen coordinates.
func (v *Viewport) CanvasToScreen(p Point) Point {
	return Point{p.X*v.Zoom + v.Translate.X, p.Y*v.Zoom + v.Translate.Y}
}

// CanvasRectToScreen converts a canvas rectangle to screen space.
func (v *Viewport) CanvasRectToScreen(r Rect) Rect {
	o := v.CanvasToScreen(Point{r.X, r.Y})
	return Rect{X: o.X, Y: o.Y, W: r.W * v.Zoom, H: r.H * v.Zoom}
}

// DeltaToCanvas converts a screen-space pointer delta to a canvas-space move.
func (v *Viewport) DeltaToCanvas(d Point) Point {
	return d.Scale(1 / v.Zoom)
}

func (v *Viewport) clamp(z float64) float64 {
	// one decimal place keeps repeated steps from drifting (0.1+0.2...)
	z = math.Round(z*1000) / 1000
	return math.Max(v.MinZoom, math.Min(v.MaxZoom, z))
}

// ZoomIn raises the zoom by one step, keeping the translation.
func (v *Viewport) ZoomIn() { v.Zoom = v.clamp(v.Zoom + v.Step) }

// ZoomOut lowers the zoom by one step, keeping the translation.
func (v *Viewport) ZoomOut() { v.Zoom = v.clamp(v.Zoom - v.Step) }

// ZoomAt changes the zoom while keeping the canvas point under the screen
// position anchor fixed on screen.
func (v *Viewport) ZoomAt(anchor Point, zoom float64) {
	old := v.Zoom
	zoom = v.clamp(zoom)
	if zoom == old {
		return
	}
	ratio := zoom / old
	v.Translate = Point{
		X: anchor.X - (anchor.X-v.Translate.X)*ratio,
		Y: anchor.Y - (anchor.Y-v.Translate.Y)*ratio,
	}
	v.Zoom = zoom
}

// ZoomStepAt zooms one step in (dir > 0) or out (dir < 0) around anchor, the
// wheel behaviour.
func (v *Viewport) ZoomStepAt(anchor Point, dir int) {
	switch {
	case dir > 0:
		v.ZoomAt(anchor, v.Zoom+v.Step)
	case dir < 0:
		v.ZoomAt(anchor, v.Zoom-v.Step)
	}
}

// StartPan records the pointer position where a pan drag begins.
func (v *Viewport) StartPan(pointer Point) {
	v.panOrigin = v.Translate
	v.panPointer = pointer
}

// PanTo sets the translation relative to the drag start.
func (v *Viewport) PanTo(pointer Point) {
	v.Translate = v.panOrigin.Add(pointer.Sub(v.panPointer))
}

// SetSize records the screen size of the canvas.
func (v *Viewport) SetSize(w, h float64) {
	v.Width, v.Height = w, h
}

// Fit centres the canvas-space bounds on screen with 20% padding, choosing
// the zoom that fits both axes, floored at 0.2 and capped at 2.0. It does
// nothing without a screen size or with empty bounds.
func (v *Viewport) Fit(bounds Rect) {
	if v.Width <= 0 || v.Height <= 0 || bounds.W <= 0 || bounds.H <= 0 {
		return
	}
	padW := bounds.W * (1 + fitPadding)
	padH := bounds.H * (1 + fitPadding)
	zoom := math.Min(v.Width/padW, v.Height/padH)
	zoom = math.Max(fitMinZoom, math.Min(fitMaxZoom, zoom))

	center := Point{bounds.X + bounds.W/2, bounds.Y + bounds.H/2}
	v.Zoom = zoom
	v.Translate = Point{
		X: v.Width/2 - center.X*zoom,
		Y: v.Height/2 - center.Y*zoom,
	}
}

// Reset returns to zoom 1 with no translation.
func (v *Viewport) Reset() {
	v.Zoom = DefaultZoom
	v.Translate = Point{}
}

// Snap rounds a canvas coordinate to the nearest grid line.
func Snap(value, grid float64) float64 {
	if grid <= 0 {
		return value
	}
	return math.Round(value/grid) * grid
}

// SnapPoint snaps both coordinates of p.
func SnapPoint(p Point, grid float64) Point {
	return Point{Snap(p.X, grid), Snap(p.Y, grid)}
}
