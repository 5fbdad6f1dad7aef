package spatial

import "errors"

// Kernel precondition failures. These indicate caller bugs, not
// user-correctable geometry, and are returned as errors rather than as a
// ValidationResult.
var (
	// ErrMalformedInput is returned for nil coordinate sets and non-finite
	// (NaN or infinite) coordinate values.
	ErrMalformedInput = errors.New("malformed coordinate input")

	// ErrInsufficientPoints is returned when an area is requested for fewer
	// than three points.
	ErrInsufficientPoints = errors.New("at least 3 points are required")

	// ErrInvalidScale is returned for non-positive or non-finite scale factors.
	ErrInvalidScale = errors.New("scale must be a positive finite number")

	// ErrOutOfBounds is returned when a scaled point would leave the
	// requested boundary constraints.
	ErrOutOfBounds = errors.New("coordinate outside boundary constraints")

	// ErrMalformedPayload is returned when a floor plan payload fails schema
	// validation.
	ErrMalformedPayload = errors.New("malformed floor plan payload")
)
