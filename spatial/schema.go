package spatial

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// payloadValidate checks decoded server payloads against the struct tags on
// FloorPlan and its children.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New()
	if err := payloadValidate.RegisterValidation("coords", validateCoords); err != nil {
		panic(fmt.Sprintf("register coords validation: %v", err))
	}
}

// validateCoords accepts coordinate sets whose values are all finite.
// Geometry rules (point count, closure) are left to the kernel so broken
// shapes can still be loaded and repaired.
func validateCoords(fl validator.FieldLevel) bool {
	coords, ok := fl.Field().Interface().([]Coordinate)
	if !ok {
		return false
	}
	return checkFinite(coords) == nil
}

// ValidatePayload reports whether a floor plan received from the server is
// structurally usable: required ids present, a known status, positive
// dimensions, non-negative areas and counts, finite coordinates, and
// unique space ids. Failures wrap ErrMalformedPayload; they are fatal for
// the edit and never retried.
func ValidatePayload(plan *FloorPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	var problems []string
	if err := payloadValidate.Struct(plan); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	seen := make(map[string]struct{}, len(plan.Spaces))
	for _, s := range plan.Spaces {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate space id %q", s.ID))
		}
		seen[s.ID] = struct{}{}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(problems, "; "))
	}
	return nil
}
