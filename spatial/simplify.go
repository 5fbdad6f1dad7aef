package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// SimplifyCoordinates removes vertices that deviate less than tolerance
// from the outline (Douglas-Peucker on the XY footprint). Traced or
// imported outlines tend to carry many near-collinear points; thinning them
// keeps validation and overlap checks fast.
//
// Kept points retain their original z. A closed ring stays closed, and a
// result with fewer than three distinct vertices falls back to a copy of
// the input.
func SimplifyCoordinates(coords []Coordinate, tolerance float64) ([]Coordinate, error) {
	if err := checkFinite(coords); err != nil {
		return nil, fmt.Errorf("simplify coordinates: %w", err)
	}
	if !finite(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("simplify coordinates: tolerance %v: %w", tolerance, ErrMalformedInput)
	}
	if len(coords) <= 3 || tolerance == 0 {
		return CloneCoordinates(coords), nil
	}

	closed := IsClosed(coords)
	dp := simplify.DouglasPeucker(tolerance)
	var kept []orb.Point
	if closed {
		kept = dp.Ring(orb.Ring(footprint(coords)))
	} else {
		kept = dp.LineString(orb.LineString(footprint(coords)))
	}
	if len(openRing(kept)) < 3 {
		return CloneCoordinates(coords), nil
	}

	// Simplification only drops points, so walk both in order to recover
	// the original coordinates (and their z).
	out := make([]Coordinate, 0, len(kept))
	j := 0
	for _, p := range kept {
		for j < len(coords) && (coords[j].X != p[0] || coords[j].Y != p[1]) {
			j++
		}
		if j == len(coords) {
			break
		}
		out = append(out, coords[j].Clone())
		j++
	}
	if closed && !IsClosed(out) {
		out = append(out, coords[len(coords)-1].Clone())
	}
	return out, nil
}
