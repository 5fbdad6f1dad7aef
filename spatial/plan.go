package spatial

import (
	"fmt"
)

// areaDriftEpsilon is the relative difference between a stored and a
// recomputed area that is reported as drift.
const areaDriftEpsilon = 1e-6

// ValidateFloorPlan audits a whole plan: each space's geometry against the
// plan dimensions, every pair of spaces for overlap above tolerance, and the
// summed space area against metadata.usableArea (when that is positive).
// Stored areas that differ from the computed value produce a warning.
//
// Messages are prefixed with the space id they concern. An error is
// returned only for malformed coordinate data.
func ValidateFloorPlan(plan *FloorPlan, tolerance float64) (ValidationResult, error) {
	res := Valid()
	if plan == nil {
		return res, fmt.Errorf("validate floor plan: %w", ErrMalformedPayload)
	}
	dims := plan.Metadata.Dimensions

	var total float64
	for _, s := range plan.Spaces {
		is3D := Is3DSet(s.Coordinates)
		vr, err := ValidateSpaceCoordinates(s.Coordinates, dims, is3D)
		if err != nil {
			return res, fmt.Errorf("validate floor plan: space %q: %w", s.ID, err)
		}
		res.Merge(vr.ForSpace(s.ID))

		if len(s.Coordinates) < 3 {
			continue
		}
		area, err := CalculateSpaceArea(s.Coordinates, is3D)
		if err != nil {
			return res, fmt.Errorf("validate floor plan: space %q: %w", s.ID, err)
		}
		total += area
		if !nearlyEqual(area, s.Area, areaDriftEpsilon) {
			res.AddWarning(fmt.Sprintf("space %q: stored area %.2f differs from computed area %.2f", s.ID, s.Area, area))
		}
	}

	for i := 0; i < len(plan.Spaces); i++ {
		for j := i + 1; j < len(plan.Spaces); j++ {
			a, b := plan.Spaces[i], plan.Spaces[j]
			ov, err := CheckSpaceOverlap(a, b, tolerance)
			if err != nil {
				return res, fmt.Errorf("validate floor plan: %w", err)
			}
			if ov.HasOverlap {
				res.AddError(fmt.Sprintf("space %q overlaps space %q by %.2f", a.ID, b.ID, ov.OverlapArea))
			}
		}
	}

	if usable := plan.Metadata.UsableArea; usable > 0 && round2(total) > usable {
		res.AddError(fmt.Sprintf("total space area %.2f exceeds usable area %.2f", round2(total), usable))
	}
	return res, nil
}

// ForSpace returns a copy of r with every message prefixed by a space id.
func (r ValidationResult) ForSpace(id string) ValidationResult {
	out := ValidationResult{IsValid: r.IsValid, Errors: make([]string, len(r.Errors)), Warnings: make([]string, len(r.Warnings))}
	for i, e := range r.Errors {
		out.Errors[i] = fmt.Sprintf("space %q: %s", id, e)
	}
	for i, w := range r.Warnings {
		out.Warnings[i] = fmt.Sprintf("space %q: %s", id, w)
	}
	return out
}
