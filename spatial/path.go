package spatial

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SpacePath returns SVG path data for the XY footprint of coords, for
// example "M0 0 L10 0 L10 10 Z". The closing vertex of a closed ring is
// folded into the trailing Z. Results are memoized in the bounded path
// cache, so redrawing unchanged spaces costs a lookup.
func SpacePath(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}
	key := coordinateKey('p', coords)
	m := currentPathMemo()
	if v, ok := m.get(key); ok {
		return v
	}

	pts := coords
	if len(pts) > 1 && IsClosed(pts) {
		pts = pts[:len(pts)-1]
	}
	buf := make([]byte, 0, len(pts)*16)
	for i, c := range pts {
		if i == 0 {
			buf = append(buf, 'M')
		} else {
			buf = append(buf, " L"...)
		}
		buf = strconv.AppendFloat(buf, c.X, 'f', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, c.Y, 'f', -1, 64)
	}
	buf = append(buf, " Z"...)

	path := string(buf)
	m.add(key, path)
	return path
}

// LabelPoint returns the area-weighted centroid of the footprint, which
// stays inside convex spaces and near the visual middle of concave ones.
// Degenerate rings fall back to the coordinate mean.
func LabelPoint(coords []Coordinate) Coordinate {
	ring := openRing(footprint(coords))
	if len(ring) < 3 {
		c := Centroid(coords)
		return Pt(c.X, c.Y)
	}
	closed := append(orb.Ring(ring), ring[0])
	p, area := planar.CentroidArea(orb.Polygon{closed})
	if area == 0 {
		c := Centroid(coords)
		return Pt(c.X, c.Y)
	}
	return Pt(p[0], p[1])
}
