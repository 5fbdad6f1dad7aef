package spatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultOverlapTolerance is the overlap area at or below which two spaces
// are considered adjacent rather than overlapping.
const DefaultOverlapTolerance = 0.01

// CheckSpaceOverlap compares the floor footprints (XY projection) of two
// spaces. Separated bounding boxes are rejected before any polygon math.
// Otherwise edge intersection points are collected and the area of the
// intersection polygon is computed by integrating the boundary pieces of
// each ring that lie inside the other.
//
// HasOverlap is false when the overlap area is at or below tolerance, even
// if intersection points exist, so shared walls and floating-point slivers
// do not count as overlaps.
func CheckSpaceOverlap(a, b FloorPlanSpace, tolerance float64) (OverlapResult, error) {
	if err := checkFinite(a.Coordinates); err != nil {
		return OverlapResult{}, fmt.Errorf("check overlap: space %q: %w", a.ID, err)
	}
	if err := checkFinite(b.Coordinates); err != nil {
		return OverlapResult{}, fmt.Errorf("check overlap: space %q: %w", b.ID, err)
	}
	return overlapRings(footprint(a.Coordinates), footprint(b.Coordinates), tolerance), nil
}

func overlapRings(aPts, bPts []orb.Point, tolerance float64) OverlapResult {
	res := OverlapResult{IntersectionPoints: []Coordinate{}}

	ra := ccwRing(openRing(aPts))
	rb := ccwRing(openRing(bPts))
	if len(ra) < 3 || len(rb) < 3 {
		return res
	}
	if !ra.Bound().Intersects(rb.Bound()) {
		return res
	}

	var pts []orb.Point
	for i := range ra {
		a1, a2 := ra[i], ra[(i+1)%len(ra)]
		for j := range rb {
			b1, b2 := rb[j], rb[(j+1)%len(rb)]
			for _, p := range segmentIntersections(a1, a2, b1, b2) {
				if !containsPoint(pts, p) {
					pts = append(pts, p)
				}
			}
		}
	}
	for _, p := range pts {
		res.IntersectionPoints = append(res.IntersectionPoints, Pt(p[0], p[1]))
	}

	sum := boundaryInside(ra, rb, true) + boundaryInside(rb, ra, false)
	res.OverlapArea = round2(math.Max(0, sum/2))
	res.HasOverlap = res.OverlapArea > tolerance
	return res
}

// ccwRing returns the open ring in counter-clockwise order.
func ccwRing(pts []orb.Point) orb.Ring {
	r := make(orb.Ring, len(pts))
	copy(r, pts)
	if len(r) >= 3 && r.Orientation() == orb.CW {
		r.Reverse()
	}
	return r
}

// boundaryInside sums the shoelace terms of the pieces of ring's edges that
// lie inside other. Pieces lying on other's boundary count only from the
// owning side and only when both edges run the same way, so coincident
// boundaries are counted once and opposed (shared-wall) boundaries cancel.
func boundaryInside(ring, other orb.Ring, owner bool) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		p, q := ring[i], ring[(i+1)%n]
		ts := []float64{0, 1}
		for j := range other {
			o1, o2 := other[j], other[(j+1)%len(other)]
			for _, x := range segmentIntersections(p, q, o1, o2) {
				ts = append(ts, segmentParam(p, q, x))
			}
		}
		sort.Float64s(ts)

		for k := 0; k+1 < len(ts); k++ {
			t0, t1 := clamp01(ts[k]), clamp01(ts[k+1])
			if t1-t0 <= geomEpsilon {
				continue
			}
			s := lerp(p, q, t0)
			e := lerp(p, q, t1)
			mid := orb.Point{(s[0] + e[0]) / 2, (s[1] + e[1]) / 2}

			inside, edge := classify(other, mid)
			switch {
			case edge >= 0:
				if !owner {
					continue
				}
				o1, o2 := other[edge], other[(edge+1)%len(other)]
				if (e[0]-s[0])*(o2[0]-o1[0])+(e[1]-s[1])*(o2[1]-o1[1]) <= 0 {
					continue
				}
			case !inside:
				continue
			}
			sum += s[0]*e[1] - e[0]*s[1]
		}
	}
	return sum
}

// classify returns whether p is strictly inside ring and, when p lies on
// the boundary, the index of the edge containing it (-1 otherwise).
func classify(ring orb.Ring, p orb.Point) (bool, int) {
	n := len(ring)
	inside := false
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		if sign(orient(a, b, p)) == 0 && onSegment(a, b, p) {
			return false, i
		}
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := a[0] + (p[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
			if p[0] < x {
				inside = !inside
			}
		}
	}
	return inside, -1
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
