// Package render draws floor plan previews. Space outlines come from the
// geometry kernel's path data, so previews match what the editor validated.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/kwv/floorplan/spatial"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// ErrNoDimensions is returned for plans without a drawable area.
var ErrNoDimensions = errors.New("render: floor plan has no dimensions")

// Options controls preview output.
type Options struct {
	Scale      float64           // canvas millimetres per plan unit; 0 uses the plan's dimensions.scale, then 1
	Padding    float64           // margin around the plan bounds, in canvas millimetres
	Resolution canvas.Resolution // PNG resolution (default: 96 DPI)
	Labels     bool              // draw space names (PNG only)
	Selected   string            // space id to highlight
}

// DefaultOptions returns the options used by the editor's preview endpoints.
func DefaultOptions() Options {
	return Options{
		Padding:    10,
		Resolution: canvas.DPI(96),
		Labels:     true,
	}
}

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	boundsColor     = color.RGBA{60, 60, 60, 255}
	outlineColor    = color.RGBA{40, 40, 40, 255}
	selectedColor   = color.RGBA{230, 120, 0, 255}
	labelColor      = color.RGBA{0, 0, 0, 255}
)

// occupancyFill maps occupancy status to a translucent fill, premultiplied.
var occupancyFill = map[string]color.RGBA{
	spatial.OccupancyVacant:   {R: 61, G: 124, B: 63, A: 160},
	spatial.OccupancyOccupied: {R: 35, G: 85, B: 140, A: 160},
	spatial.OccupancyPartial:  {R: 95, G: 95, B: 150, A: 160},
	spatial.OccupancyReserved: {R: 150, G: 100, B: 25, A: 160},
}

var defaultFill = color.RGBA{R: 110, G: 110, B: 110, A: 120}

func fillFor(sp spatial.FloorPlanSpace) color.RGBA {
	if c, ok := occupancyFill[sp.OccupancyStatus]; ok {
		return c
	}
	return defaultFill
}

// canvasRenderer is implemented by the svg and rasterizer renderers.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// layout maps plan units onto the canvas. Plan y grows downward, canvas y
// grows upward, so the view matrix flips the y axis.
type layout struct {
	scale         float64
	padding       float64
	width, height float64
	view          canvas.Matrix
}

func newLayout(plan *spatial.FloorPlan, opts Options) (layout, error) {
	if plan == nil {
		return layout{}, fmt.Errorf("render: %w", spatial.ErrMalformedPayload)
	}
	dims := plan.Metadata.Dimensions
	if dims.Width <= 0 || dims.Height <= 0 {
		return layout{}, ErrNoDimensions
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = dims.Scale
	}
	if scale <= 0 {
		scale = 1
	}
	l := layout{
		scale:   scale,
		padding: opts.Padding,
		width:   dims.Width*scale + 2*opts.Padding,
		height:  dims.Height*scale + 2*opts.Padding,
	}
	l.view = canvas.Identity.Translate(l.padding, l.height-l.padding).Scale(scale, -scale)
	return l, nil
}

// toCanvas returns the canvas millimetre position of a plan point,
// measured from the top-left corner.
func (l layout) toCanvas(c spatial.Coordinate) (x, y float64) {
	return l.padding + c.X*l.scale, l.padding + c.Y*l.scale
}

// drawPlan renders background, plan bounds and spaces. Spaces whose path data
// cannot be parsed are skipped and counted.
func drawPlan(r canvasRenderer, plan *spatial.FloorPlan, l layout, opts Options) int {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: backgroundColor}
	bg.Stroke = canvas.Paint{Color: canvas.Transparent}
	r.RenderPath(canvas.Rectangle(l.width, l.height), bg, canvas.Identity)

	dims := plan.Metadata.Dimensions
	boundsStyle := canvas.DefaultStyle
	boundsStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	boundsStyle.Stroke = canvas.Paint{Color: boundsColor}
	boundsStyle.StrokeWidth = 0.5
	r.RenderPath(canvas.Rectangle(dims.Width, dims.Height).Transform(l.view), boundsStyle, canvas.Identity)

	skipped := 0
	for _, sp := range plan.Spaces {
		d := spatial.SpacePath(sp.Coordinates)
		if d == "" {
			skipped++
			continue
		}
		p, err := canvas.ParseSVGPath(d)
		if err != nil {
			skipped++
			continue
		}

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: fillFor(sp)}
		style.Stroke = canvas.Paint{Color: outlineColor}
		style.StrokeWidth = 0.3
		if sp.ID == opts.Selected {
			style.Stroke = canvas.Paint{Color: selectedColor}
			style.StrokeWidth = 1
		}
		r.RenderPath(p.Transform(l.view), style, canvas.Identity)
	}
	return skipped
}

// SVG writes an SVG preview of plan to w.
func SVG(w io.Writer, plan *spatial.FloorPlan, opts Options) error {
	l, err := newLayout(plan, opts)
	if err != nil {
		return err
	}
	out := svg.New(w, l.width, l.height, nil)
	drawPlan(out, plan, l, opts)
	if err := out.Close(); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	return nil
}
