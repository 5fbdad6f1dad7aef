package render

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/kwv/floorplan/spatial"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PNG writes a raster preview of plan to w, with space names drawn at
// each space's label point when opts.Labels is set.
func PNG(w io.Writer, plan *spatial.FloorPlan, opts Options) error {
	img, err := Raster(plan, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	return nil
}

// Raster renders plan into an image.
func Raster(plan *spatial.FloorPlan, opts Options) (draw.Image, error) {
	l, err := newLayout(plan, opts)
	if err != nil {
		return nil, err
	}
	res := opts.Resolution
	if res <= 0 {
		res = canvas.DPI(96)
	}

	rast := rasterizer.New(l.width, l.height, res, canvas.DefaultColorSpace)
	drawPlan(rast, plan, l, opts)

	if opts.Labels {
		dpmm := res.DPMM()
		for _, sp := range plan.Spaces {
			if sp.Name == "" || len(sp.Coordinates) == 0 {
				continue
			}
			x, y := l.toCanvas(spatial.LabelPoint(sp.Coordinates))
			drawLabel(rast, int(x*dpmm), int(y*dpmm), sp.Name)
		}
	}
	return rast, nil
}

// drawLabel centers text on (x, y) in image pixels.
func drawLabel(img draw.Image, x, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
	}
	width := d.MeasureString(text).Round()
	d.Dot = fixed.Point26_6{
		X: fixed.I(x - width/2),
		Y: fixed.I(y + face.Ascent/2),
	}
	d.DrawString(text)
}
