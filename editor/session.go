package editor

import (
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"sync"

	"github.com/kwv/floorplan/spatial"
)

// SessionOptions configures a Session. Zero values select the defaults.
type SessionOptions struct {
	HistoryLimit     int
	OverlapTolerance float64
}

// State is a point-in-time view of a session.
type State struct {
	Present          *spatial.FloorPlan         `json:"present"`
	UndoDepth        int                        `json:"undoDepth"`
	RedoDepth        int                        `json:"redoDepth"`
	SelectedSpaceID  *string                    `json:"selectedSpaceId"`
	IsDirty          bool                       `json:"isDirty"`
	ValidationErrors []spatial.ValidationResult `json:"validationErrors"`
	IsSaving         bool                       `json:"isSaving"`
}

// Session holds the floor plan being edited together with its undo and
// redo history. Every local change goes through a validation gate: a
// candidate plan is built, its changed spaces are checked by the geometry
// kernel, and the candidate replaces the present state only when it is
// valid. Rejected candidates leave the session untouched.
//
// A Session is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	present    *spatial.FloorPlan
	confirmed  *spatial.FloorPlan
	undo       *history
	redo       *history
	selected   string
	dirty      bool
	saving     bool
	validation []spatial.ValidationResult
	gen        uint64
	tolerance  float64

	lmu          sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// NewSession opens plan for editing. The plan is treated as the last
// server-confirmed state. Problems found in the loaded plan are recorded
// as validation results but do not prevent opening it.
func NewSession(plan *spatial.FloorPlan, opts SessionOptions) (*Session, error) {
	if plan == nil {
		return nil, fmt.Errorf("new session: %w", spatial.ErrMalformedPayload)
	}
	if opts.OverlapTolerance <= 0 {
		opts.OverlapTolerance = spatial.DefaultOverlapTolerance
	}

	s := &Session{
		present:   plan.Clone(),
		confirmed: plan.Clone(),
		undo:      newHistory(opts.HistoryLimit),
		redo:      newHistory(opts.HistoryLimit),
		tolerance: opts.OverlapTolerance,
		listeners: make(map[int]Listener),
	}

	res, err := spatial.ValidateFloorPlan(s.present, s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if !res.IsValid || len(res.Warnings) > 0 {
		log.Printf("[SESSION] Floor plan %s loaded with %d errors, %d warnings", plan.ID, len(res.Errors), len(res.Warnings))
		s.validation = []spatial.ValidationResult{res}
	}
	return s, nil
}

// Present returns a deep copy of the current floor plan.
func (s *Session) Present() *spatial.FloorPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present.Clone()
}

// PlanID returns the id of the open floor plan.
func (s *Session) PlanID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present.ID
}

// State returns a snapshot of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Present:          s.present.Clone(),
		UndoDepth:        s.undo.len(),
		RedoDepth:        s.redo.len(),
		IsDirty:          s.dirty,
		ValidationErrors: append([]spatial.ValidationResult{}, s.validation...),
		IsSaving:         s.saving,
	}
	if s.selected != "" {
		id := s.selected
		st.SelectedSpaceID = &id
	}
	return st
}

// IsDirty reports whether the present state has edits the server has not
// confirmed.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.len() > 0
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redo.len() > 0
}

// mutation edits a candidate plan in place and returns the ids of the
// spaces it touched. Candidates share coordinate storage with the present
// state, so a mutation must assign new slices rather than write into
// existing ones.
type mutation func(p *spatial.FloorPlan) (touched []string, err error)

// commit runs the validation gate for op. A rejected candidate is reported
// through the returned ValidationResult with a nil error; errors are
// reserved for bad arguments and malformed input.
func (s *Session) commit(op string, mutate mutation) (spatial.ValidationResult, error) {
	s.mu.Lock()

	candidate := s.present.ShallowClone()
	touched, err := mutate(candidate)
	if errors.Is(err, spatial.ErrOutOfBounds) {
		res := spatial.Valid()
		res.AddError(err.Error())
		return s.reject(op, res), nil
	}
	if err != nil {
		s.mu.Unlock()
		mutationsTotal.WithLabelValues(op, resultError).Inc()
		return spatial.ValidationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.check(candidate, touched)
	if err != nil {
		s.mu.Unlock()
		mutationsTotal.WithLabelValues(op, resultError).Inc()
		return spatial.ValidationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !res.IsValid {
		return s.reject(op, res), nil
	}

	s.undo.push(s.present)
	s.redo.clear()
	s.present = candidate
	s.dirty = true
	s.gen++
	s.validation = nil
	if len(res.Warnings) > 0 {
		s.validation = []spatial.ValidationResult{res}
	}
	if s.selected != "" && s.present.SpaceByID(s.selected) < 0 {
		s.selected = ""
	}
	ev := s.eventLocked(EventState, op)
	s.mu.Unlock()

	mutationsTotal.WithLabelValues(op, resultCommitted).Inc()
	s.emit(ev)
	return res, nil
}

// reject records res as the current validation state and releases the
// lock taken by commit.
func (s *Session) reject(op string, res spatial.ValidationResult) spatial.ValidationResult {
	s.validation = []spatial.ValidationResult{res}
	ev := s.eventLocked(EventValidation, op)
	ev.Validation = &res
	s.mu.Unlock()

	mutationsTotal.WithLabelValues(op, resultRejected).Inc()
	s.emit(ev)
	return res
}

// check validates the spaces a mutation touched. Spaces whose coordinates
// changed get the full geometry check, a recomputed area, and an overlap
// test against every sibling. The usable-area budget is enforced whenever
// the mutation grows the total space area or shrinks the budget.
func (s *Session) check(candidate *spatial.FloorPlan, touched []string) (spatial.ValidationResult, error) {
	res := spatial.Valid()
	dims := candidate.Metadata.Dimensions

	for _, id := range touched {
		i := candidate.SpaceByID(id)
		if i < 0 {
			continue
		}
		sp := &candidate.Spaces[i]
		if sp.Capacity < 0 {
			res.AddError(fmt.Sprintf("space %q: capacity %d must not be negative", id, sp.Capacity))
		}

		if j := s.present.SpaceByID(id); j >= 0 && sameGeometry(s.present.Spaces[j].Coordinates, sp.Coordinates) {
			continue
		}

		is3D := spatial.Is3DSet(sp.Coordinates)
		vr, err := spatial.ValidateSpaceCoordinates(sp.Coordinates, dims, is3D)
		if err != nil {
			return res, fmt.Errorf("space %q: %w", id, err)
		}
		res.Merge(vr.ForSpace(id))
		if !vr.IsValid {
			continue
		}

		area, err := spatial.CalculateSpaceArea(sp.Coordinates, is3D)
		if err != nil {
			return res, fmt.Errorf("space %q: %w", id, err)
		}
		sp.Area = area

		for k := range candidate.Spaces {
			if k == i {
				continue
			}
			other := candidate.Spaces[k]
			ov, err := spatial.CheckSpaceOverlap(*sp, other, s.tolerance)
			if err != nil {
				return res, fmt.Errorf("space %q: %w", id, err)
			}
			if ov.HasOverlap {
				res.AddError(fmt.Sprintf("space %q overlaps space %q by %.2f", id, other.ID, ov.OverlapArea))
			}
		}
	}

	md := candidate.Metadata
	if md.UsableArea < 0 {
		res.AddError(fmt.Sprintf("usable area %.2f must not be negative", md.UsableArea))
	}
	if md.TotalArea < 0 {
		res.AddError(fmt.Sprintf("total area %.2f must not be negative", md.TotalArea))
	}
	if md.UsableArea > 0 {
		before, after := totalArea(s.present), totalArea(candidate)
		if after > md.UsableArea && (after > before || md.UsableArea < s.present.Metadata.UsableArea) {
			res.AddError(fmt.Sprintf("total space area %.2f exceeds usable area %.2f", after, md.UsableArea))
		}
	}
	return res, nil
}

func (s *Session) eventLocked(t EventType, op string) Event {
	return Event{
		Type:            t,
		Op:              op,
		PlanID:          s.present.ID,
		Version:         s.present.Metadata.Version,
		Dirty:           s.dirty,
		SelectedSpaceID: s.selected,
	}
}

// Undo restores the previous local state.
func (s *Session) Undo() error {
	return s.step(OpUndo, s.undo, s.redo, ErrNothingToUndo)
}

// Redo re-applies the most recently undone state.
func (s *Session) Redo() error {
	return s.step(OpRedo, s.redo, s.undo, ErrNothingToRedo)
}

// step moves the top of from into present and pushes present onto to.
// Frames were valid when pushed and are not re-validated. The server-owned
// version and lastModified fields are carried over from the current
// present so history navigation never resurrects a stale version. The
// session is dirty afterwards only if present differs from the last
// confirmed snapshot.
func (s *Session) step(op string, from, to *history, empty error) error {
	s.mu.Lock()
	frame, ok := from.pop()
	if !ok {
		s.mu.Unlock()
		mutationsTotal.WithLabelValues(op, resultRejected).Inc()
		return empty
	}
	to.push(s.present)
	s.present = withServerFields(frame, s.present)
	s.dirty = !s.matchesConfirmedLocked()
	s.gen++
	s.validation = nil
	if s.selected != "" && s.present.SpaceByID(s.selected) < 0 {
		s.selected = ""
	}
	ev := s.eventLocked(EventState, op)
	s.mu.Unlock()

	mutationsTotal.WithLabelValues(op, resultCommitted).Inc()
	s.emit(ev)
	return nil
}

// SelectSpace marks a space as selected. An empty id clears the selection.
func (s *Session) SelectSpace(id string) error {
	s.mu.Lock()
	if id != "" && s.present.SpaceByID(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("select space %q: %w", id, ErrSpaceNotFound)
	}
	s.selected = id
	ev := s.eventLocked(EventSelection, "")
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// withServerFields returns frame with version and lastModified taken from
// current. frame itself is not modified.
func withServerFields(frame, current *spatial.FloorPlan) *spatial.FloorPlan {
	if frame.Metadata.Version == current.Metadata.Version && frame.Metadata.LastModified.Equal(current.Metadata.LastModified) {
		return frame
	}
	out := frame.ShallowClone()
	out.Metadata.Version = current.Metadata.Version
	out.Metadata.LastModified = current.Metadata.LastModified
	return out
}

// matchesConfirmedLocked reports whether present equals the last
// server-confirmed snapshot, ignoring version and lastModified.
func (s *Session) matchesConfirmedLocked() bool {
	return reflect.DeepEqual(withServerFields(s.present, s.confirmed), s.confirmed)
}

func sameGeometry(a, b []spatial.Coordinate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].X != b[i].X || a[i].Y != b[i].Y {
			return false
		}
		if (a[i].Z == nil) != (b[i].Z == nil) {
			return false
		}
		if a[i].Z != nil && *a[i].Z != *b[i].Z {
			return false
		}
	}
	return true
}

func totalArea(p *spatial.FloorPlan) float64 {
	var sum float64
	for _, sp := range p.Spaces {
		sum += sp.Area
	}
	return round2(sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
