// Package snapshot rasterises a rendered editor scene to PNG.
package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

// Options controls the output image. A zero size fits the image to the
// scene content.
type Options struct {
	Width    int
	Height   int
	Padding  float64
	FontSize float64
}

var (
	background   = color.RGBA{0xf7, 0xf7, 0xf9, 0xff}
	gridColor    = color.RGBA{0xe4, 0xe4, 0xea, 0xff}
	blockFill    = color.White
	blockBorder  = color.RGBA{0x9a, 0x9a, 0xa8, 0xff}
	textColor    = color.RGBA{0x22, 0x22, 0x2a, 0xff}
	edgeColor    = color.RGBA{0x55, 0x6b, 0xd6, 0xff}
	selectedEdge = color.RGBA{0xe0, 0x45, 0x45, 0xff}
	portColor    = color.RGBA{0x55, 0x6b, 0xd6, 0xff}
	portHot      = color.RGBA{0x2e, 0xb8, 0x6b, 0xff}
)

// statusColors tint the block header.
var statusColors = map[editor.Status]color.Color{
	editor.StatusIdle:       color.RGBA{0xdd, 0xe1, 0xf0, 0xff},
	editor.StatusProcessing: color.RGBA{0xf5, 0xd7, 0x6e, 0xff},
	editor.StatusSuccess:    color.RGBA{0xa8, 0xe0, 0xb5, 0xff},
	editor.StatusError:      color.RGBA{0xf2, 0xa5, 0xa5, 0xff},
}

// Render draws the scene. Without an explicit size the content is shifted
// so that everything fits with padding.
func Render(scene editor.Scene, opts Options) (image.Image, error) {
	if opts.Padding <= 0 {
		opts.Padding = 40
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}

	offset := editor.Point{}
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		bounds, ok := sceneBounds(scene)
		if !ok {
			return nil, fmt.Errorf("nothing to export")
		}
		offset = editor.Point{X: opts.Padding - bounds.X, Y: opts.Padding - bounds.Y}
		width = int(math.Ceil(bounds.W + 2*opts.Padding))
		height = int(math.Ceil(bounds.H + 2*opts.Padding))
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	ttfFont, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %v", err)
	}
	dc.SetFontFace(truetype.NewFace(ttfFont, &truetype.Options{
		Size:    opts.FontSize * math.Max(scene.Viewport.Zoom, 0.5),
		DPI:     72,
		Hinting: font.HintingFull,
	}))

	drawGrid(dc, scene.Viewport, offset)

	// edges behind blocks
	for _, e := range scene.Edges {
		c := edgeColor
		if e.Selected {
			c = selectedEdge
		}
		drawEdge(dc, e, offset, c, false)
	}
	for _, b := range scene.Blocks {
		drawBlock(dc, b, offset)
	}
	if scene.Pending != nil {
		drawEdge(dc, *scene.Pending, offset, edgeColor, true)
	}
	return dc.Image(), nil
}

// Encode renders the scene and writes it as PNG.
func Encode(w io.Writer, scene editor.Scene, opts Options) error {
	img, err := Render(scene, opts)
	if err != nil {
		return err
	}
	return gg.NewContextForImage(img).EncodePNG(w)
}

// SavePNG renders the scene to a file.
func SavePNG(path string, scene editor.Scene, opts Options) error {
	img, err := Render(scene, opts)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}

func sceneBounds(scene editor.Scene) (editor.Rect, bool) {
	if len(scene.Blocks) == 0 {
		return editor.Rect{}, false
	}
	r := scene.Blocks[0].Rect
	for _, b := range scene.Blocks[1:] {
		r = r.Union(b.Rect)
	}
	for _, e := range scene.Edges {
		for _, p := range []editor.Point{e.C1, e.C2} {
			r = r.Union(editor.Rect{X: p.X, Y: p.Y})
		}
	}
	return r, true
}

func drawGrid(dc *gg.Context, vp editor.Viewport, offset editor.Point) {
	step := editor.DefaultGridSize * vp.Zoom
	if step < 8 {
		return
	}
	w, h := float64(dc.Width()), float64(dc.Height())
	ox := math.Mod(vp.Translate.X+offset.X, step)
	oy := math.Mod(vp.Translate.Y+offset.Y, step)
	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	for x := ox; x < w; x += step {
		dc.DrawLine(x, 0, x, h)
	}
	for y := oy; y < h; y += step {
		dc.DrawLine(0, y, w, y)
	}
	dc.Stroke()
}

func drawEdge(dc *gg.Context, e editor.EdgeView, o editor.Point, c color.Color, dashed bool) {
	from, c1, c2, to := e.From.Add(o), e.C1.Add(o), e.C2.Add(o), e.To.Add(o)
	dc.SetColor(c)
	dc.SetLineWidth(2)
	if dashed {
		dc.SetDash(6, 4)
	}
	dc.MoveTo(from.X, from.Y)
	dc.CubicTo(c1.X, c1.Y, c2.X, c2.Y, to.X, to.Y)
	dc.Stroke()
	dc.SetDash()

	// arrow head at the input end
	angle := math.Atan2(to.Y-c2.Y, to.X-c2.X)
	size := 7.0
	dc.MoveTo(to.X, to.Y)
	dc.LineTo(to.X-size*math.Cos(angle-0.4), to.Y-size*math.Sin(angle-0.4))
	dc.LineTo(to.X-size*math.Cos(angle+0.4), to.Y-size*math.Sin(angle+0.4))
	dc.ClosePath()
	dc.Fill()
}

func drawBlock(dc *gg.Context, b editor.BlockView, o editor.Point) {
	r := b.Rect
	x, y := r.X+o.X, r.Y+o.Y
	zoom := b.Header.H / editor.HeaderHeight
	radius := 6 * zoom

	dc.SetColor(blockFill)
	dc.DrawRoundedRectangle(x, y, r.W, r.H, radius)
	dc.Fill()

	header, ok := statusColors[b.Status]
	if !ok {
		header = statusColors[editor.StatusIdle]
	}
	dc.SetColor(header)
	dc.DrawRoundedRectangle(x, y, r.W, b.Header.H, radius)
	dc.Fill()

	dc.SetColor(blockBorder)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, r.W, r.H, radius)
	dc.Stroke()

	dc.SetColor(textColor)
	dc.DrawStringAnchored(b.Title, x+10*zoom, y+b.Header.H/2, 0, 0.35)

	for _, in := range b.Inputs {
		p := in.Anchor.Add(o)
		drawPort(dc, p, zoom, in.Highlighted)
		dc.SetColor(textColor)
		dc.DrawStringAnchored(in.Name, p.X+12*zoom, p.Y, 0, 0.35)
	}
	if b.Output != nil {
		p := b.Output.Anchor.Add(o)
		drawPort(dc, p, zoom, false)
		dc.SetColor(textColor)
		dc.DrawStringAnchored(strings.Join(b.Outputs, ", "), p.X-12*zoom, p.Y, 1, 0.35)
	}

	text := b.Content
	if b.Status == editor.StatusError {
		text = b.Error
	}
	if text != "" {
		line := strings.SplitN(text, "\n", 2)[0]
		if len(line) > 28 {
			line = line[:28] + "..."
		}
		dc.SetColor(textColor)
		dc.DrawStringAnchored(line, x+10*zoom, y+r.H-10*zoom, 0, 0)
	}
}

func drawPort(dc *gg.Context, p editor.Point, zoom float64, hot bool) {
	c := portColor
	if hot {
		c = portHot
	}
	dc.SetColor(c)
	dc.DrawCircle(p.X, p.Y, editor.PortRadius*0.6*math.Max(zoom, 0.5))
	dc.Fill()
}
