package editor

import (
	"log"

	"github.com/kwv/floorplan/spatial"
)

// EventType identifies a session notification.
type EventType string

const (
	EventState      EventType = "state"
	EventValidation EventType = "validation"
	EventSelection  EventType = "selection"
	EventRemote     EventType = "remote"
	EventSaving     EventType = "save-started"
	EventSaved      EventType = "saved"
	EventConflict   EventType = "conflict"
	EventSaveFailed EventType = "save-failed"
	EventRolledBack EventType = "rolled-back"
)

// Operation names carried by state events and used as metric labels.
const (
	OpAddSpace       = "add_space"
	OpUpdateSpace    = "update_space"
	OpRemoveSpace    = "remove_space"
	OpMoveVertex     = "move_vertex"
	OpInsertVertex   = "insert_vertex"
	OpDeleteVertex   = "delete_vertex"
	OpScaleSpace     = "scale_space"
	OpTranslateSpace = "translate_space"
	OpUpdateMetadata = "update_metadata"
	OpSetStatus      = "set_status"
	OpUndo           = "undo"
	OpRedo           = "redo"
)

// Event is delivered to session listeners after the session lock is
// released. Only the fields relevant to Type are set.
type Event struct {
	Type            EventType                 `json:"type"`
	Op              string                    `json:"op,omitempty"`
	PlanID          string                    `json:"planId"`
	Version         int                       `json:"version"`
	Dirty           bool                      `json:"dirty"`
	SelectedSpaceID string                    `json:"selectedSpaceId,omitempty"`
	Validation      *spatial.ValidationResult `json:"validation,omitempty"`
	Remote          *PatchResult              `json:"remote,omitempty"`
	Message         string                    `json:"message,omitempty"`
	Err             error                     `json:"-"`
}

// Local reports whether the event is a committed local edit that should
// be persisted. Undo and redo change state without scheduling a save.
func (e Event) Local() bool {
	return e.Type == EventState && e.Op != OpUndo && e.Op != OpRedo
}

// Listener receives session events. Listeners run on the goroutine that
// caused the event and must not block.
type Listener func(Event)

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) emit(ev Event) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[SESSION] listener panic on %s event: %v", ev.Type, r)
				}
			}()
			fn(ev)
		}()
	}
}
