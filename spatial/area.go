package spatial

import (
	"fmt"
	"math"
)

// CalculateSpaceArea returns the area enclosed by coords, rounded to two
// decimals. In 2D the shoelace formula runs over the closed ring (the last
// point wraps to the first). In 3D the polygon is fan-triangulated from
// vertex 0 and the triangle cross products are summed before taking the
// magnitude, which gives the true area of any planar polygon, concave
// ones included.
//
// Results are memoized in a bounded LRU keyed by the serialized
// coordinates. Fewer than three points, nil input, non-finite values, or a
// 3D request over points without z are precondition failures.
func CalculateSpaceArea(coords []Coordinate, is3D bool) (float64, error) {
	if err := checkFinite(coords); err != nil {
		return 0, err
	}
	if len(coords) < 3 {
		return 0, fmt.Errorf("calculate area: %w (got %d)", ErrInsufficientPoints, len(coords))
	}
	if is3D {
		for i, c := range coords {
			if c.Z == nil {
				return 0, fmt.Errorf("calculate area: coordinate %d has no z: %w", i, ErrMalformedInput)
			}
		}
	}

	prefix := byte('2')
	if is3D {
		prefix = '3'
	}
	key := coordinateKey(prefix, coords)
	m := currentAreaMemo()
	if v, ok := m.get(key); ok {
		return v, nil
	}

	var area float64
	if is3D {
		area = area3D(coords)
	} else {
		area = math.Abs(signedArea2D(coords))
	}
	area = round2(area)
	m.add(key, area)
	return area, nil
}

// signedArea2D is the shoelace sum over the closed ring. Positive for
// counter-clockwise rings.
func signedArea2D(coords []Coordinate) float64 {
	n := len(coords)
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += coords[i].X*coords[j].Y - coords[j].X*coords[i].Y
	}
	return sum / 2
}

// area3D is half the magnitude of the summed fan cross products, the
// vector area of the ring. It intentionally differs from summing each
// triangle's |cross|/2: fan triangles from a vertex next to a reflex
// corner overlap, so an L-shape started at (4,0) would read 16 instead of
// its true 12.
func area3D(coords []Coordinate) float64 {
	v0 := coords[0]
	var nx, ny, nz float64
	for i := 1; i+1 < len(coords); i++ {
		ax, ay, az := coords[i].X-v0.X, coords[i].Y-v0.Y, *coords[i].Z-*v0.Z
		bx, by, bz := coords[i+1].X-v0.X, coords[i+1].Y-v0.Y, *coords[i+1].Z-*v0.Z
		nx += ay*bz - az*by
		ny += az*bx - ax*bz
		nz += ax*by - ay*bx
	}
	return math.Sqrt(nx*nx+ny*ny+nz*nz) / 2
}

// checkFinite rejects nil sets and NaN or infinite components.
func checkFinite(coords []Coordinate) error {
	if coords == nil {
		return fmt.Errorf("coordinates are nil: %w", ErrMalformedInput)
	}
	for i, c := range coords {
		if !finite(c.X) || !finite(c.Y) || (c.Z != nil && !finite(*c.Z)) {
			return fmt.Errorf("coordinate %d is not finite: %w", i, ErrMalformedInput)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// all3D reports whether every coordinate carries z. Empty sets are 2D.
func all3D(coords []Coordinate) bool {
	if len(coords) == 0 {
		return false
	}
	for _, c := range coords {
		if c.Z == nil {
			return false
		}
	}
	return true
}

// Is3DSet reports whether coords should be treated as a 3D point set.
func Is3DSet(coords []Coordinate) bool {
	return all3D(coords)
}
