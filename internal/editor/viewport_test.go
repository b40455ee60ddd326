package editor

import (
	"math"
	"testing"
)

const eps = 1e-9

func closeTo(a, b Point) bool {
	return math.Abs(a.X-b.X) < 1e-6 && math.Abs(a.Y-b.Y) < 1e-6
}

func TestScreenCanvasRoundTrip(t *testing.T) {
	points := []Point{{0, 0}, {123.5, -40}, {-999, 1e4}, {0.1, 0.2}}
	views := []Viewport{
		{Zoom: 1},
		{Zoom: 0.1, Translate: Point{300, -20}},
		{Zoom: 2, Translate: Point{-1500.25, 42}},
		{Zoom: 1.3, Translate: Point{7, 7}},
	}
	for _, v := range views {
		for _, p := range points {
			got := v.ScreenToCanvas(v.CanvasToScreen(p))
			if !closeTo(got, p) {
				t.Errorf("zoom=%v translate=%v: round trip of %v gave %v", v.Zoom, v.Translate, p, got)
			}
			got = v.CanvasToScreen(v.ScreenToCanvas(p))
			if !closeTo(got, p) {
				t.Errorf("zoom=%v translate=%v: inverse round trip of %v gave %v", v.Zoom, v.Translate, p, got)
			}
		}
	}
}

func TestZoomAtKeepsAnchorFixed(t *testing.T) {
	v := NewViewport(0.1, 2.0, 0.1)
	anchor := Point{300, 300}
	before := v.ScreenToCanvas(anchor)

	v.ZoomAt(anchor, 2.0)

	if v.Zoom != 2.0 {
		t.Fatalf("expected zoom 2.0, got %v", v.Zoom)
	}
	if got := v.CanvasToScreen(before); !closeTo(got, anchor) {
		t.Errorf("expected canvas point %v to stay under %v, got %v", before, anchor, got)
	}
}

func TestZoomAtWithExistingTranslate(t *testing.T) {
	v := NewViewport(0.1, 2.0, 0.1)
	v.Translate = Point{-120, 75}
	v.Zoom = 0.5
	anchor := Point{410, 90}
	before := v.ScreenToCanvas(anchor)

	v.ZoomStepAt(anchor, 1)

	if math.Abs(v.Zoom-0.6) > eps {
		t.Fatalf("expected zoom 0.6, got %v", v.Zoom)
	}
	if got := v.CanvasToScreen(before); !closeTo(got, anchor) {
		t.Errorf("anchor moved: want %v, got %v", anchor, got)
	}
}

func TestZoomClamp(t *testing.T) {
	v := NewViewport(0.1, 2.0, 0.1)
	for i := 0; i < 30; i++ {
		v.ZoomIn()
	}
	if v.Zoom != 2.0 {
		t.Errorf("expected zoom capped at 2.0, got %v", v.Zoom)
	}
	for i := 0; i < 30; i++ {
		v.ZoomOut()
	}
	if v.Zoom != 0.1 {
		t.Errorf("expected zoom floored at 0.1, got %v", v.Zoom)
	}

	v.Translate = Point{5, 5}
	v.ZoomAt(Point{100, 100}, 0.01)
	if v.Zoom != 0.1 || v.Translate != (Point{5, 5}) {
		t.Errorf("zooming past the floor should be a no-op, got zoom=%v translate=%v", v.Zoom, v.Translate)
	}
}

func TestPanIsRelativeToDragStart(t *testing.T) {
	v := NewViewport(0, 0, 0)
	v.Translate = Point{10, 10}
	v.StartPan(Point{100, 100})
	v.PanTo(Point{130, 90})
	v.PanTo(Point{150, 120})

	if v.Translate != (Point{60, 30}) {
		t.Errorf("expected translate {60 30}, got %v", v.Translate)
	}
}

func TestFitCentresContent(t *testing.T) {
	v := NewViewport(0.1, 2.0, 0.1)
	v.SetSize(800, 600)

	bounds := Rect{X: 0, Y: 0, W: 2000, H: 1000}
	v.Fit(bounds)

	// 800 / (2000*1.2)
	want := 800.0 / 2400.0
	if math.Abs(v.Zoom-want) > eps {
		t.Errorf("expected zoom %v, got %v", want, v.Zoom)
	}
	center := v.CanvasToScreen(Point{1000, 500})
	if !closeTo(center, Point{400, 300}) {
		t.Errorf("expected content centred at {400 300}, got %v", center)
	}
}

func TestFitLimits(t *testing.T) {
	v := NewViewport(0.1, 2.0, 0.1)
	v.SetSize(800, 600)

	v.Fit(Rect{W: 10, H: 10})
	if v.Zoom != 2.0 {
		t.Errorf("expected small content capped at 2.0, got %v", v.Zoom)
	}

	v.Fit(Rect{W: 100000, H: 100000})
	if v.Zoom != 0.2 {
		t.Errorf("expected huge content floored at 0.2, got %v", v.Zoom)
	}

	before := *v
	empty := NewViewport(0.1, 2.0, 0.1)
	empty.Fit(Rect{W: 100, H: 100})
	if empty.Zoom != 1.0 || empty.Translate != (Point{}) {
		t.Errorf("fit without a size should be a no-op, got %+v", empty)
	}
	v.Fit(Rect{})
	if v.Zoom != before.Zoom || v.Translate != before.Translate {
		t.Errorf("fit with empty bounds should be a no-op")
	}
}

func TestSnapIdempotent(t *testing.T) {
	values := []float64{0, 19.9, 20, 20.1, -19, -21, 39.99, 1234.5, -1e6 + 3}
	for _, v := range values {
		once := Snap(v, 40)
		if twice := Snap(once, 40); twice != once {
			t.Errorf("snap(snap(%v)) = %v, want %v", v, twice, once)
		}
		if math.Mod(once, 40) != 0 {
			t.Errorf("snap(%v) = %v is not on the grid", v, once)
		}
	}
	if got := Snap(59, 40); got != 40 {
		t.Errorf("snap(59) = %v, want 40", got)
	}
	if got := Snap(61, 40); got != 80 {
		t.Errorf("snap(61) = %v, want 80", got)
	}
}
