package spatial

import (
	"fmt"
	"math"
)

const (
	// ClosureEpsilon is the maximum per-axis distance between the first and
	// last coordinate of a closed polygon.
	ClosureEpsilon = 1e-4

	// MinPoints2D and MinPoints3D are the minimum point counts.
	MinPoints2D = 3
	MinPoints3D = 4

	// Height-range sanity limits for 3D spaces. Outside this range a
	// warning is produced; it never blocks a save.
	MinHeightExtent = 0.1
	MaxHeightExtent = 10.0
)

// ValidateSpaceCoordinates checks a space polygon against the floor plan
// bounds. Geometry problems are reported in the returned ValidationResult;
// an error is returned only for malformed input (nil coordinates or
// non-finite values).
//
// Checks: minimum point count (3 in 2D, 4 in 3D), per-point bounds,
// closure of the ring within ClosureEpsilon, pairwise self-intersection
// over non-adjacent edges, and a non-zero enclosed area. 3D sets also get
// a height-extent warning when z spans less than MinHeightExtent or more
// than MaxHeightExtent.
func ValidateSpaceCoordinates(coords []Coordinate, dims Dimensions, is3D bool) (ValidationResult, error) {
	if err := checkFinite(coords); err != nil {
		return ValidationResult{}, fmt.Errorf("validate coordinates: %w", err)
	}

	res := Valid()

	minPoints := MinPoints2D
	if is3D {
		minPoints = MinPoints3D
	}
	if len(coords) < minPoints {
		res.AddError(fmt.Sprintf("polygon requires at least %d points, got %d", minPoints, len(coords)))
	}

	if is3D {
		for i, c := range coords {
			if c.Z == nil {
				res.AddError(fmt.Sprintf("coordinate %d is missing a z value required for 3D spaces", i))
			}
		}
	}

	for i, c := range coords {
		if !dims.Contains(c.X, c.Y) {
			res.AddError(fmt.Sprintf("coordinate %d (%.2f, %.2f) is outside the floor plan bounds (0..%.2f, 0..%.2f)",
				i, c.X, c.Y, dims.Width, dims.Height))
		}
	}

	if len(coords) < minPoints {
		return res, nil
	}

	if !IsClosed(coords) {
		first, last := coords[0], coords[len(coords)-1]
		res.AddError(fmt.Sprintf("polygon is not closed: first point (%.4f, %.4f) and last point (%.4f, %.4f) differ",
			first.X, first.Y, last.X, last.Y))
	}

	checkShape(coords, is3D && all3D(coords), &res)

	if is3D && all3D(coords) {
		minZ, maxZ := math.Inf(1), math.Inf(-1)
		for _, c := range coords {
			minZ = math.Min(minZ, *c.Z)
			maxZ = math.Max(maxZ, *c.Z)
		}
		extent := maxZ - minZ
		if extent < MinHeightExtent {
			res.AddWarning(fmt.Sprintf("height range %.3f is below the expected minimum of %.1f", extent, MinHeightExtent))
		} else if extent > MaxHeightExtent {
			res.AddWarning(fmt.Sprintf("height range %.3f exceeds the expected maximum of %.1f", extent, MaxHeightExtent))
		}
	}

	return res, nil
}

// IsClosed compares the first and last coordinate within ClosureEpsilon.
// z is compared only when both carry it.
func IsClosed(coords []Coordinate) bool {
	if len(coords) < 2 {
		return false
	}
	first, last := coords[0], coords[len(coords)-1]
	if math.Abs(first.X-last.X) > ClosureEpsilon || math.Abs(first.Y-last.Y) > ClosureEpsilon {
		return false
	}
	if first.Z != nil && last.Z != nil && math.Abs(*first.Z-*last.Z) > ClosureEpsilon {
		return false
	}
	return true
}

// checkShape reports degenerate rings, self-intersections, and zero-area
// polygons.
func checkShape(coords []Coordinate, is3D bool, res *ValidationResult) {
	pts := footprint(coords)
	if is3D {
		pts = projectDominant(coords)
	}

	if IsClosed(coords) {
		pts = pts[:len(pts)-1]
	}
	ring := openRing(pts)
	if dups := len(pts) - len(ring); dups > 0 {
		res.AddWarning(fmt.Sprintf("polygon contains %d duplicate consecutive vertices", dups))
	}
	if len(ring) < 3 {
		res.AddError("polygon is degenerate: fewer than 3 distinct vertices")
		return
	}

	m := len(ring)
	for i := 0; i < m; i++ {
		a1, a2 := ring[i], ring[(i+1)%m]
		for j := i + 2; j < m; j++ {
			if i == 0 && j == m-1 {
				continue // adjacent through the closing edge
			}
			b1, b2 := ring[j], ring[(j+1)%m]
			if segmentsIntersect(a1, a2, b1, b2) {
				res.AddError(fmt.Sprintf("polygon self-intersects: edge %d crosses edge %d", i, j))
			}
		}
	}

	var area float64
	if is3D {
		area = area3D(coords)
	} else {
		area = math.Abs(signedArea2D(coords))
	}
	if area <= geomEpsilon {
		res.AddError("polygon encloses no area")
	}
}
