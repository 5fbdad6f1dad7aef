package spatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ScaleOptions controls ScaleCoordinates.
type ScaleOptions struct {
	// CenterPoint is the pivot. Nil uses the centroid of the input.
	CenterPoint *Coordinate
	// PreserveAspectRatio renormalizes the minor axis after scaling so the
	// bounding-box aspect ratio matches the input exactly.
	PreserveAspectRatio bool
	// BoundaryConstraints, when set, must contain every scaled point.
	// Violations fail the call; points are never clamped.
	BoundaryConstraints *Dimensions
}

// ScaleCoordinates maps every point p to (p - pivot)*scale + pivot. z is
// scaled about the pivot's z when both carry one and kept otherwise.
//
// A non-positive or non-finite scale returns ErrInvalidScale. An empty or
// malformed set returns ErrMalformedInput or ErrInsufficientPoints. A
// result that leaves BoundaryConstraints returns ErrOutOfBounds naming the
// first offending point.
func ScaleCoordinates(coords []Coordinate, scale float64, opts ScaleOptions) ([]Coordinate, error) {
	if err := checkFinite(coords); err != nil {
		return nil, fmt.Errorf("scale coordinates: %w", err)
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("scale coordinates: %w (got 0)", ErrInsufficientPoints)
	}
	if !finite(scale) || scale <= 0 {
		return nil, fmt.Errorf("scale coordinates: factor %v: %w", scale, ErrInvalidScale)
	}

	pivot := Centroid(coords)
	if opts.CenterPoint != nil {
		pivot = *opts.CenterPoint
		if !finite(pivot.X) || !finite(pivot.Y) || (pivot.Z != nil && !finite(*pivot.Z)) {
			return nil, fmt.Errorf("scale coordinates: pivot is not finite: %w", ErrMalformedInput)
		}
	}

	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = Coordinate{
			X: (c.X-pivot.X)*scale + pivot.X,
			Y: (c.Y-pivot.Y)*scale + pivot.Y,
		}
		if c.Z != nil {
			z := *c.Z
			if pivot.Z != nil {
				z = (z-*pivot.Z)*scale + *pivot.Z
			}
			out[i].Z = &z
		}
	}

	if opts.PreserveAspectRatio {
		renormalizeAspect(coords, out, pivot)
	}

	if b := opts.BoundaryConstraints; b != nil {
		for i, c := range out {
			if !b.Contains(c.X, c.Y) {
				return nil, fmt.Errorf("scale coordinates: point %d (%.2f, %.2f) leaves bounds %.2fx%.2f: %w",
					i, c.X, c.Y, b.Width, b.Height, ErrOutOfBounds)
			}
		}
	}
	return out, nil
}

// renormalizeAspect rescales the minor axis of out about pivot so its
// extent ratio to the major axis equals that of in.
func renormalizeAspect(in, out []Coordinate, pivot Coordinate) {
	ib := BoundsOf(in)
	ob := BoundsOf(out)
	iw, ih := ib.Max[0]-ib.Min[0], ib.Max[1]-ib.Min[1]
	ow, oh := ob.Max[0]-ob.Min[0], ob.Max[1]-ob.Min[1]
	if iw == 0 || ih == 0 || ow == 0 || oh == 0 {
		return
	}

	if iw >= ih {
		want := ow * ih / iw
		f := want / oh
		for i := range out {
			out[i].Y = (out[i].Y-pivot.Y)*f + pivot.Y
		}
		return
	}
	want := oh * iw / ih
	f := want / ow
	for i := range out {
		out[i].X = (out[i].X-pivot.X)*f + pivot.X
	}
}

// Centroid returns the coordinate-wise mean of the ring's vertices. The
// closing point of a closed ring repeats the first vertex and is not
// counted. The result carries z only when every input point does. An empty
// set yields the origin.
func Centroid(coords []Coordinate) Coordinate {
	if len(coords) > 1 && IsClosed(coords) {
		coords = coords[:len(coords)-1]
	}
	if len(coords) == 0 {
		return Coordinate{}
	}
	var sx, sy, sz float64
	for _, c := range coords {
		sx += c.X
		sy += c.Y
		sz += c.ZOrZero()
	}
	n := float64(len(coords))
	out := Coordinate{X: sx / n, Y: sy / n}
	if all3D(coords) {
		z := sz / n
		out.Z = &z
	}
	return out
}

// BoundsOf returns the XY bounding box of coords. An empty set yields an
// empty bound at the origin.
func BoundsOf(coords []Coordinate) orb.Bound {
	if len(coords) == 0 {
		return orb.Bound{}
	}
	return orb.MultiPoint(footprint(coords)).Bound()
}

// TranslateCoordinates shifts every point by (dx, dy). z is unchanged.
func TranslateCoordinates(coords []Coordinate, dx, dy float64) ([]Coordinate, error) {
	if err := checkFinite(coords); err != nil {
		return nil, fmt.Errorf("translate coordinates: %w", err)
	}
	if !finite(dx) || !finite(dy) {
		return nil, fmt.Errorf("translate coordinates: offset is not finite: %w", ErrMalformedInput)
	}
	out := CloneCoordinates(coords)
	for i := range out {
		out[i].X += dx
		out[i].Y += dy
	}
	return out, nil
}

// nearlyEqual compares within an absolute tolerance scaled to magnitude.
func nearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
