package tui

import (
	"math"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

// One terminal cell covers CellW x CellH screen units.
const (
	CellW = 10.0
	CellH = 20.0
)

// cellPoint is the screen point at the centre of a terminal cell.
func cellPoint(col, row int) editor.Point {
	return editor.Point{X: (float64(col) + 0.5) * CellW, Y: (float64(row) + 0.5) * CellH}
}

func toCell(p editor.Point) (int, int) {
	return int(math.Floor(p.X / CellW)), int(math.Floor(p.Y / CellH))
}

type grid struct {
	cells [][]rune
	w, h  int
}

func newGrid(w, h int) *grid {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	g := &grid{cells: make([][]rune, h), w: w, h: h}
	for i := range g.cells {
		g.cells[i] = make([]rune, w)
		for j := range g.cells[i] {
			g.cells[i][j] = ' '
		}
	}
	return g
}

func (g *grid) set(x, y int, r rune) {
	if x >= 0 && y >= 0 && x < g.w && y < g.h {
		g.cells[y][x] = r
	}
}

func (g *grid) text(x, y, n int, s string) {
	i := 0
	for _, r := range s {
		if i >= n {
			return
		}
		g.set(x+i, y, r)
		i++
	}
}

func (g *grid) lines() []string {
	out := make([]string, g.h)
	for i, row := range g.cells {
		out[i] = string(row)
	}
	return out
}

// Draw lays a scene out on a cols x rows character grid. Edges are drawn
// first so blocks cover them.
func Draw(scene editor.Scene, cols, rows int) []string {
	g := newGrid(cols, rows)

	for _, e := range scene.Edges {
		drawEdge(g, e)
	}
	if scene.Pending != nil {
		drawEdge(g, *scene.Pending)
	}
	for _, b := range scene.Blocks {
		drawBlock(g, b)
	}
	return g.lines()
}

func drawEdge(g *grid, e editor.EdgeView) {
	mark := '·'
	if e.Selected {
		mark = '*'
	}
	steps := int(math.Max(math.Abs(e.To.X-e.From.X)/CellW, math.Abs(e.To.Y-e.From.Y)/CellH))*2 + 8
	for i := 0; i <= steps; i++ {
		x, y := toCell(cubic(e.From, e.C1, e.C2, e.To, float64(i)/float64(steps)))
		g.set(x, y, mark)
	}
	x, y := toCell(e.To)
	g.set(x, y, '▶')
}

func cubic(p0, p1, p2, p3 editor.Point, t float64) editor.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return editor.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func statusMark(s editor.Status) rune {
	switch s {
	case editor.StatusProcessing:
		return '~'
	case editor.StatusSuccess:
		return '✓'
	case editor.StatusError:
		return '✗'
	}
	return ' '
}

func drawBlock(g *grid, b editor.BlockView) {
	x0, y0 := toCell(editor.Point{X: b.Rect.X, Y: b.Rect.Y})
	x1, y1 := toCell(editor.Point{X: b.Rect.X + b.Rect.W, Y: b.Rect.Y + b.Rect.H})
	if x1-x0 < 3 {
		x1 = x0 + 3
	}
	if y1-y0 < 2 {
		y1 = y0 + 2
	}

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			switch {
			case (y == y0 || y == y1) && (x == x0 || x == x1):
				g.set(x, y, '+')
			case y == y0 || y == y1:
				g.set(x, y, '-')
			case x == x0 || x == x1:
				g.set(x, y, '|')
			default:
				g.set(x, y, ' ')
			}
		}
	}

	inner := x1 - x0 - 1
	g.set(x0+1, y0+1, statusMark(b.Status))
	g.text(x0+2, y0+1, inner-1, b.Title)

	for _, p := range b.Inputs {
		px, py := toCell(p.Anchor)
		if p.Highlighted {
			g.set(x0, py, '◉')
		} else {
			g.set(x0, py, 'o')
		}
		g.text(px+1, py, inner, p.Name)
	}
	if b.Output != nil {
		px, py := toCell(b.Output.Anchor)
		g.set(x1, py, 'o')
		name := b.Output.Name
		g.text(px-len([]rune(name)), py, len(name), name)
	}
	if b.Error != "" && y1-1 > y0+1 {
		g.text(x0+1, y1-1, inner, b.Error)
	}
}
