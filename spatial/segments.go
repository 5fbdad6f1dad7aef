package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// geomEpsilon is the tolerance for orientation and on-segment tests.
const geomEpsilon = 1e-9

// orient returns twice the signed area of triangle (a, b, c): positive when
// c lies left of a->b.
func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func sign(v float64) int {
	switch {
	case v > geomEpsilon:
		return 1
	case v < -geomEpsilon:
		return -1
	}
	return 0
}

// onSegment reports whether p, known to be collinear with a-b, lies within
// the segment's bounding box.
func onSegment(a, b, p orb.Point) bool {
	return p[0] <= math.Max(a[0], b[0])+geomEpsilon && p[0] >= math.Min(a[0], b[0])-geomEpsilon &&
		p[1] <= math.Max(a[1], b[1])+geomEpsilon && p[1] >= math.Min(a[1], b[1])-geomEpsilon
}

// segmentsIntersect is the standard orientation test, including touching
// and collinear-overlap cases.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(orient(q1, q2, p1))
	d2 := sign(orient(q1, q2, p2))
	d3 := sign(orient(p1, p2, q1))
	d4 := sign(orient(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	if d1 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	return false
}

// segmentIntersections returns the points where p1-p2 meets q1-q2: none,
// one crossing or touching point, or the two ends of a collinear overlap.
func segmentIntersections(p1, p2, q1, q2 orb.Point) []orb.Point {
	if !segmentsIntersect(p1, p2, q1, q2) {
		return nil
	}
	rx, ry := p2[0]-p1[0], p2[1]-p1[1]
	sx, sy := q2[0]-q1[0], q2[1]-q1[1]
	denom := rx*sy - ry*sx

	if math.Abs(denom) > geomEpsilon {
		t := ((q1[0]-p1[0])*sy - (q1[1]-p1[1])*sx) / denom
		t = math.Max(0, math.Min(1, t))
		return []orb.Point{{p1[0] + t*rx, p1[1] + t*ry}}
	}

	// Collinear: collect endpoints lying on the other segment.
	var pts []orb.Point
	for _, c := range []struct{ a, b, p orb.Point }{
		{q1, q2, p1}, {q1, q2, p2}, {p1, p2, q1}, {p1, p2, q2},
	} {
		if onSegment(c.a, c.b, c.p) && !containsPoint(pts, c.p) {
			pts = append(pts, c.p)
		}
	}
	return pts
}

// segmentParam returns t such that p ≈ a + t(b-a), projected on the segment.
func segmentParam(a, b, p orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	return ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
}

func samePoint(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= geomEpsilon*16 && math.Abs(a[1]-b[1]) <= geomEpsilon*16
}

func containsPoint(pts []orb.Point, p orb.Point) bool {
	for _, q := range pts {
		if samePoint(p, q) {
			return true
		}
	}
	return false
}

// openRing drops consecutive duplicates and the closing vertex so edges are
// (r[i], r[(i+1)%len(r)]).
func openRing(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && samePoint(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// footprint converts coords to 2D points on the XY plane.
func footprint(coords []Coordinate) []orb.Point {
	pts := make([]orb.Point, len(coords))
	for i, c := range coords {
		pts[i] = orb.Point{c.X, c.Y}
	}
	return pts
}

// projectDominant projects 3D coords onto the coordinate plane most
// parallel to the polygon, so self-intersection tests work for walls and
// sloped surfaces as well as floors.
func projectDominant(coords []Coordinate) []orb.Point {
	if !all3D(coords) {
		return footprint(coords)
	}
	v0 := coords[0]
	var nx, ny, nz float64
	for i := 1; i+1 < len(coords); i++ {
		ax, ay, az := coords[i].X-v0.X, coords[i].Y-v0.Y, *coords[i].Z-*v0.Z
		bx, by, bz := coords[i+1].X-v0.X, coords[i+1].Y-v0.Y, *coords[i+1].Z-*v0.Z
		nx += ay*bz - az*by
		ny += az*bx - ax*bz
		nz += ax*by - ay*bx
	}
	ax, ay, az := math.Abs(nx), math.Abs(ny), math.Abs(nz)
	pts := make([]orb.Point, len(coords))
	for i, c := range coords {
		switch {
		case az >= ax && az >= ay:
			pts[i] = orb.Point{c.X, c.Y}
		case ay >= ax:
			pts[i] = orb.Point{c.X, *c.Z}
		default:
			pts[i] = orb.Point{c.Y, *c.Z}
		}
	}
	return pts
}
