package editor

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/kwv/floorplan/spatial"
)

// SpaceUpdate is a partial update of one space. Nil fields are left alone.
// ClearBusinessUnit unassigns the space; it wins over AssignedBusinessUnit.
type SpaceUpdate struct {
	Name                 *string              `json:"name,omitempty"`
	Type                 *string              `json:"type,omitempty"`
	Capacity             *int                 `json:"capacity,omitempty"`
	AssignedBusinessUnit *string              `json:"assignedBusinessUnit,omitempty"`
	ClearBusinessUnit    bool                 `json:"clearBusinessUnit,omitempty"`
	OccupancyStatus      *string              `json:"occupancyStatus,omitempty"`
	Resources            []json.RawMessage    `json:"resources,omitempty"`
	Coordinates          []spatial.Coordinate `json:"coordinates,omitempty"`
}

// MetadataUpdate is a partial update of the plan metadata. Version and
// lastModified are owned by the server and cannot be set here.
type MetadataUpdate struct {
	Name         *string        `json:"name,omitempty"`
	Level        *int           `json:"level,omitempty"`
	TotalArea    *float64       `json:"totalArea,omitempty"`
	UsableArea   *float64       `json:"usableArea,omitempty"`
	FileURL      *string        `json:"fileUrl,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

// AddSpace adds a new space. A space without an id gets a generated one.
// The stored area is always recomputed from the coordinates.
func (s *Session) AddSpace(space spatial.FloorPlanSpace) (string, spatial.ValidationResult, error) {
	sp := space.Clone()
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	res, err := s.commit(OpAddSpace, func(p *spatial.FloorPlan) ([]string, error) {
		if p.SpaceByID(sp.ID) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSpace, sp.ID)
		}
		if sp.Coordinates == nil {
			return nil, fmt.Errorf("space %q: %w", sp.ID, spatial.ErrMalformedInput)
		}
		p.Spaces = append(p.Spaces, sp)
		return []string{sp.ID}, nil
	})
	return sp.ID, res, err
}

// UpdateSpace applies a partial update to the space with the given id.
func (s *Session) UpdateSpace(id string, upd SpaceUpdate) (spatial.ValidationResult, error) {
	return s.commit(OpUpdateSpace, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		if upd.Name != nil {
			sp.Name = *upd.Name
		}
		if upd.Type != nil {
			sp.Type = *upd.Type
		}
		if upd.Capacity != nil {
			sp.Capacity = *upd.Capacity
		}
		if upd.AssignedBusinessUnit != nil {
			bu := *upd.AssignedBusinessUnit
			sp.AssignedBusinessUnit = &bu
		}
		if upd.ClearBusinessUnit {
			sp.AssignedBusinessUnit = nil
		}
		if upd.OccupancyStatus != nil {
			sp.OccupancyStatus = *upd.OccupancyStatus
		}
		if upd.Resources != nil {
			sp.Resources = slices.Clone(upd.Resources)
		}
		if upd.Coordinates != nil {
			sp.Coordinates = spatial.CloneCoordinates(upd.Coordinates)
		}
		return []string{id}, nil
	})
}

// RemoveSpace deletes a space. Removing the selected space clears the
// selection.
func (s *Session) RemoveSpace(id string) (spatial.ValidationResult, error) {
	return s.commit(OpRemoveSpace, func(p *spatial.FloorPlan) ([]string, error) {
		i := p.SpaceByID(id)
		if i < 0 {
			return nil, fmt.Errorf("space %q: %w", id, ErrSpaceNotFound)
		}
		p.Spaces = slices.Delete(p.Spaces, i, i+1)
		return []string{id}, nil
	})
}

// MoveVertex moves vertex index of a space to the given position. On a
// closed ring the first and closing vertices move together.
func (s *Session) MoveVertex(id string, index int, to spatial.Coordinate) (spatial.ValidationResult, error) {
	return s.commit(OpMoveVertex, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		coords := spatial.CloneCoordinates(sp.Coordinates)
		if index < 0 || index >= len(coords) {
			return nil, fmt.Errorf("space %q vertex %d of %d: %w", id, index, len(coords), ErrVertexIndex)
		}
		last := len(coords) - 1
		closed := spatial.IsClosed(coords)
		coords[index] = to.Clone()
		if closed && last > 0 {
			switch index {
			case 0:
				coords[last] = to.Clone()
			case last:
				coords[0] = to.Clone()
			}
		}
		sp.Coordinates = coords
		return []string{id}, nil
	})
}

// InsertVertex inserts a vertex before position index. On a closed ring
// the index must fall between the first and closing vertices.
func (s *Session) InsertVertex(id string, index int, at spatial.Coordinate) (spatial.ValidationResult, error) {
	return s.commit(OpInsertVertex, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		lo, hi := 0, len(sp.Coordinates)
		if spatial.IsClosed(sp.Coordinates) {
			lo, hi = 1, len(sp.Coordinates)-1
		}
		if index < lo || index > hi {
			return nil, fmt.Errorf("space %q insert at %d: %w", id, index, ErrVertexIndex)
		}
		sp.Coordinates = slices.Insert(spatial.CloneCoordinates(sp.Coordinates), index, at.Clone())
		return []string{id}, nil
	})
}

// DeleteVertex removes vertex index. Deleting the first or closing vertex
// of a closed ring re-closes it on the next vertex.
func (s *Session) DeleteVertex(id string, index int) (spatial.ValidationResult, error) {
	return s.commit(OpDeleteVertex, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		coords := spatial.CloneCoordinates(sp.Coordinates)
		if index < 0 || index >= len(coords) {
			return nil, fmt.Errorf("space %q vertex %d of %d: %w", id, index, len(coords), ErrVertexIndex)
		}
		last := len(coords) - 1
		if spatial.IsClosed(coords) && (index == 0 || index == last) && len(coords) > 2 {
			coords = coords[1:last]
			coords = append(coords, coords[0].Clone())
		} else {
			coords = slices.Delete(coords, index, index+1)
		}
		sp.Coordinates = coords
		return []string{id}, nil
	})
}

// ScaleSpace scales a space about its centroid. The plan dimensions act
// as boundary constraints: a factor that would push any point off the plan
// is rejected as a validation failure.
func (s *Session) ScaleSpace(id string, factor float64, preserveAspectRatio bool) (spatial.ValidationResult, error) {
	return s.commit(OpScaleSpace, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		dims := p.Metadata.Dimensions
		scaled, err := spatial.ScaleCoordinates(sp.Coordinates, factor, spatial.ScaleOptions{
			PreserveAspectRatio: preserveAspectRatio,
			BoundaryConstraints: &dims,
		})
		if err != nil {
			return nil, fmt.Errorf("space %q: %w", id, err)
		}
		sp.Coordinates = scaled
		return []string{id}, nil
	})
}

// TranslateSpace moves a space by (dx, dy).
func (s *Session) TranslateSpace(id string, dx, dy float64) (spatial.ValidationResult, error) {
	return s.commit(OpTranslateSpace, func(p *spatial.FloorPlan) ([]string, error) {
		sp, err := spaceFor(p, id)
		if err != nil {
			return nil, err
		}
		moved, err := spatial.TranslateCoordinates(sp.Coordinates, dx, dy)
		if err != nil {
			return nil, fmt.Errorf("space %q: %w", id, err)
		}
		sp.Coordinates = moved
		return []string{id}, nil
	})
}

// UpdateMetadata applies a partial metadata update. No space geometry is
// re-checked; the usable-area budget is.
func (s *Session) UpdateMetadata(upd MetadataUpdate) (spatial.ValidationResult, error) {
	return s.commit(OpUpdateMetadata, func(p *spatial.FloorPlan) ([]string, error) {
		md := &p.Metadata
		if upd.Name != nil {
			md.Name = *upd.Name
		}
		if upd.Level != nil {
			md.Level = *upd.Level
		}
		if upd.TotalArea != nil {
			md.TotalArea = *upd.TotalArea
		}
		if upd.UsableArea != nil {
			md.UsableArea = *upd.UsableArea
		}
		if upd.FileURL != nil {
			md.FileURL = *upd.FileURL
		}
		if upd.CustomFields != nil {
			md.CustomFields = spatial.CloneFields(upd.CustomFields)
		}
		return nil, nil
	})
}

// SetStatus moves the plan to a new lifecycle status.
func (s *Session) SetStatus(status spatial.Status) (spatial.ValidationResult, error) {
	return s.commit(OpSetStatus, func(p *spatial.FloorPlan) ([]string, error) {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
		}
		p.Status = status
		return nil, nil
	})
}

// spaceFor returns a pointer into the candidate's space slice. The
// candidate owns the slice, so field writes do not reach the present state.
func spaceFor(p *spatial.FloorPlan, id string) (*spatial.FloorPlanSpace, error) {
	i := p.SpaceByID(id)
	if i < 0 {
		return nil, fmt.Errorf("space %q: %w", id, ErrSpaceNotFound)
	}
	return &p.Spaces[i], nil
}
