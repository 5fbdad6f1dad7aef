package spatial

import (
	"encoding/json"
	"maps"
	"slices"
)

// Clone returns a copy of c that does not share its z pointer.
func (c Coordinate) Clone() Coordinate {
	if c.Z != nil {
		z := *c.Z
		c.Z = &z
	}
	return c
}

// CloneCoordinates returns a deep copy of coords, including z pointers.
func CloneCoordinates(coords []Coordinate) []Coordinate {
	if coords == nil {
		return nil
	}
	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = c.Clone()
	}
	return out
}

// Clone returns a deep copy of the space.
func (s FloorPlanSpace) Clone() FloorPlanSpace {
	out := s
	out.Coordinates = CloneCoordinates(s.Coordinates)
	if s.AssignedBusinessUnit != nil {
		bu := *s.AssignedBusinessUnit
		out.AssignedBusinessUnit = &bu
	}
	if s.Resources != nil {
		out.Resources = make([]json.RawMessage, len(s.Resources))
		for i, r := range s.Resources {
			out.Resources[i] = slices.Clone(r)
		}
	}
	return out
}

// Clone returns a deep copy of the floor plan.
func (p *FloorPlan) Clone() *FloorPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Metadata.CustomFields = CloneFields(p.Metadata.CustomFields)
	if p.Spaces != nil {
		out.Spaces = make([]FloorPlanSpace, len(p.Spaces))
		for i, s := range p.Spaces {
			out.Spaces[i] = s.Clone()
		}
	}
	return &out
}

// ShallowClone copies the plan and its space slice but shares each space's
// coordinate and resource storage with p. History frames are built this
// way: snapshots are never mutated in place, so unchanged spaces can be
// shared between frames.
func (p *FloorPlan) ShallowClone() *FloorPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Spaces = slices.Clone(p.Spaces)
	out.Metadata.CustomFields = maps.Clone(p.Metadata.CustomFields)
	return &out
}

// CloneFields deep-copies JSON-shaped custom fields.
func CloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
