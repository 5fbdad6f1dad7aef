package spatial

import (
	"encoding/json"
	"time"
)

// Coordinate is a plan-space point. Z is nil for 2D points.
type Coordinate struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z"`
}

// Pt returns a 2D coordinate.
func Pt(x, y float64) Coordinate {
	return Coordinate{X: x, Y: y}
}

// Pt3 returns a 3D coordinate.
func Pt3(x, y, z float64) Coordinate {
	return Coordinate{X: x, Y: y, Z: &z}
}

// Is3D reports whether the coordinate carries a z component.
func (c Coordinate) Is3D() bool {
	return c.Z != nil
}

// ZOrZero returns z, or 0 for 2D points.
func (c Coordinate) ZOrZero() float64 {
	if c.Z == nil {
		return 0
	}
	return *c.Z
}

// Unit is the measurement system of a floor plan.
type Unit string

const (
	UnitMetric   Unit = "METRIC"
	UnitImperial Unit = "IMPERIAL"
)

// Dimensions defines the drawable bounds of a floor plan:
// 0 <= x <= Width, 0 <= y <= Height. Scale is the pixel/unit factor used
// by rendering only; the kernel works in plan units.
type Dimensions struct {
	Width  float64 `json:"width" yaml:"width" validate:"gt=0"`
	Height float64 `json:"height" yaml:"height" validate:"gt=0"`
	Scale  float64 `json:"scale" yaml:"scale" validate:"gte=0"`
	Unit   Unit    `json:"unit" yaml:"unit" validate:"omitempty,oneof=METRIC IMPERIAL"`
}

// Contains reports whether (x, y) lies within the drawable bounds.
func (d Dimensions) Contains(x, y float64) bool {
	return x >= 0 && x <= d.Width && y >= 0 && y <= d.Height
}

// Status is the publication lifecycle of a floor plan.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusReview     Status = "REVIEW"
	StatusPublished  Status = "PUBLISHED"
	StatusArchived   Status = "ARCHIVED"
	StatusDeprecated Status = "DEPRECATED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished, StatusArchived, StatusDeprecated:
		return true
	}
	return false
}

// Space types used by the facilities UI. The field is free-form on the
// wire; these are the values the editor creates itself.
const (
	SpaceTypeOffice      = "OFFICE"
	SpaceTypeMeetingRoom = "MEETING_ROOM"
	SpaceTypeCommon      = "COMMON_AREA"
	SpaceTypeStorage     = "STORAGE"
	SpaceTypeCirculation = "CIRCULATION"
)

// Occupancy states.
const (
	OccupancyVacant   = "VACANT"
	OccupancyOccupied = "OCCUPIED"
	OccupancyPartial  = "PARTIALLY_OCCUPIED"
	OccupancyReserved = "RESERVED"
)

// FloorPlanSpace is one polygonal space on a floor plan. Area is always the
// kernel-computed value for Coordinates.
type FloorPlanSpace struct {
	ID                   string            `json:"id" validate:"required"`
	Name                 string            `json:"name"`
	Type                 string            `json:"type"`
	Coordinates          []Coordinate      `json:"coordinates" validate:"required,coords"`
	Area                 float64           `json:"area" validate:"gte=0"`
	Capacity             int               `json:"capacity" validate:"gte=0"`
	AssignedBusinessUnit *string           `json:"assignedBusinessUnit"`
	Resources            []json.RawMessage `json:"resources"`
	OccupancyStatus      string            `json:"occupancyStatus"`
}

// Metadata carries descriptive and versioning data for a floor plan.
// Version and LastModified are owned by the server.
type Metadata struct {
	Name         string         `json:"name"`
	Level        int            `json:"level"`
	TotalArea    float64        `json:"totalArea" validate:"gte=0"`
	UsableArea   float64        `json:"usableArea" validate:"gte=0"`
	Dimensions   Dimensions     `json:"dimensions"`
	FileURL      string         `json:"fileUrl"`
	LastModified time.Time      `json:"lastModified"`
	Version      int            `json:"version" validate:"gte=0"`
	CustomFields map[string]any `json:"customFields"`
}

// FloorPlan is a floor with its spaces.
type FloorPlan struct {
	ID       string           `json:"id" validate:"required"`
	Metadata Metadata         `json:"metadata"`
	Spaces   []FloorPlanSpace `json:"spaces" validate:"dive"`
	Status   Status           `json:"status" validate:"required,oneof=DRAFT REVIEW PUBLISHED ARCHIVED DEPRECATED"`
}

// SpaceByID returns the index of the space with the given id, or -1.
func (p *FloorPlan) SpaceByID(id string) int {
	for i := range p.Spaces {
		if p.Spaces[i].ID == id {
			return i
		}
	}
	return -1
}

// ValidationResult is the outcome of a geometry check. It is data, never
// an error: callers show Errors and Warnings and block commits on !IsValid.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid returns an empty, passing result.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

// AddError records an error and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a warning; warnings never invalidate.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds other into r.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.IsValid {
		r.IsValid = false
	}
}

// OverlapResult describes the intersection of two spaces' footprints.
type OverlapResult struct {
	HasOverlap         bool         `json:"hasOverlap"`
	OverlapArea        float64      `json:"overlapArea"`
	IntersectionPoints []Coordinate `json:"intersectionPoints"`
}
