package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection exports a floor plan as GeoJSON in plan units: one
// Polygon feature per space (XY footprint, ring closed) with the space's
// descriptive fields as properties. Plan-level fields are written as
// extra members of the collection.
func ToFeatureCollection(plan *FloorPlan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if plan == nil {
		return fc
	}
	fc.ExtraMembers = geojson.Properties{
		"floorPlanId": plan.ID,
		"name":        plan.Metadata.Name,
		"level":       plan.Metadata.Level,
		"status":      string(plan.Status),
		"version":     plan.Metadata.Version,
	}

	var (
		bound orb.Bound
		seen  bool
	)
	for _, s := range plan.Spaces {
		ring := orb.Ring(openRing(footprint(s.Coordinates)))
		if len(ring) > 0 {
			ring = append(ring, ring[0])
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = s.ID
		f.Properties["id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["type"] = s.Type
		f.Properties["area"] = s.Area
		f.Properties["capacity"] = s.Capacity
		if s.AssignedBusinessUnit != nil {
			f.Properties["assignedBusinessUnit"] = *s.AssignedBusinessUnit
		} else {
			f.Properties["assignedBusinessUnit"] = nil
		}
		f.Properties["occupancyStatus"] = s.OccupancyStatus
		fc.Append(f)

		if len(ring) == 0 {
			continue
		}
		if !seen {
			bound, seen = ring.Bound(), true
		} else {
			bound = bound.Union(ring.Bound())
		}
	}
	if seen {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}
