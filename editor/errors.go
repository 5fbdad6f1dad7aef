package editor

import (
	"errors"
	"fmt"

	"github.com/kwv/floorplan/spatial"
)

var (
	// ErrSpaceNotFound is returned when a mutation names a space id that is
	// not on the open floor plan.
	ErrSpaceNotFound = errors.New("space not found")

	// ErrDuplicateSpace is returned when AddSpace is given an id that is
	// already in use.
	ErrDuplicateSpace = errors.New("duplicate space id")

	// ErrVertexIndex is returned for vertex edits outside the ring.
	ErrVertexIndex = errors.New("vertex index out of range")

	// ErrUnknownStatus is returned by SetStatus for values outside the
	// floor plan lifecycle.
	ErrUnknownStatus = errors.New("unknown floor plan status")

	// ErrPlanMismatch is returned for a real-time patch addressed to a
	// different floor plan than the one being edited.
	ErrPlanMismatch = errors.New("patch is for a different floor plan")

	// ErrOwnPatch is returned for a real-time patch this editor published
	// itself.
	ErrOwnPatch = errors.New("patch originated from this editor")

	// ErrNothingToUndo and ErrNothingToRedo are returned when the
	// corresponding history stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrUploadTooLarge is returned for uploads over MaxUploadBytes.
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")

	// ErrUnsupportedMIME is returned for uploads whose detected content type
	// is not on the allow-list.
	ErrUnsupportedMIME = errors.New("unsupported upload content type")

	// ErrCoordinatorClosed is returned by Flush after Close.
	ErrCoordinatorClosed = errors.New("persistence coordinator closed")
)

// ConflictError reports a rejected save because the server holds a newer
// version of the floor plan (HTTP 409). Local edits are kept.
type ConflictError struct {
	PlanID  string
	Version int
	Message string
}

func (e *ConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "modified by another user"
	}
	return fmt.Sprintf("floor plan %s version %d: conflict: %s", e.PlanID, e.Version, msg)
}

// TransientError reports a request that kept failing with network errors,
// 5xx, or 429 responses until retries ran out.
type TransientError struct {
	Op         string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: giving up after %d attempts (last status %d): %v", e.Op, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// SaveError is returned by a failed commit. When RolledBack is set the
// session's present state was reset to the last server-confirmed snapshot
// and Discarded holds the local state that was thrown away.
type SaveError struct {
	PlanID     string
	Version    int
	RolledBack bool
	Discarded  *spatial.FloorPlan
	Err        error
}

func (e *SaveError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("save floor plan %s (version %d): local edits rolled back: %v", e.PlanID, e.Version, e.Err)
	}
	return fmt.Sprintf("save floor plan %s (version %d): %v", e.PlanID, e.Version, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// IsConflict reports whether err is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsTransient reports whether err is or wraps a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRolledBack reports whether err is a save failure that discarded local
// edits.
func IsRolledBack(err error) bool {
	var se *SaveError
	return errors.As(err, &se) && se.RolledBack
}
