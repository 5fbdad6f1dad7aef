package editor

import "github.com/kwv/floorplan/spatial"

// DefaultHistoryLimit is the undo/redo depth.
const DefaultHistoryLimit = 20

// history is a bounded stack of floor plan snapshots. Frames are treated as
// immutable once pushed, so they share unchanged space data with each
// other and with the session's present state.
type history struct {
	frames []*spatial.FloorPlan
	limit  int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &history{limit: limit}
}

// push adds a frame, evicting the oldest when full.
func (h *history) push(p *spatial.FloorPlan) {
	if len(h.frames) == h.limit {
		copy(h.frames, h.frames[1:])
		h.frames[len(h.frames)-1] = nil
		h.frames = h.frames[:len(h.frames)-1]
	}
	h.frames = append(h.frames, p)
}

func (h *history) pop() (*spatial.FloorPlan, bool) {
	if len(h.frames) == 0 {
		return nil, false
	}
	top := h.frames[len(h.frames)-1]
	h.frames[len(h.frames)-1] = nil
	h.frames = h.frames[:len(h.frames)-1]
	return top, true
}

func (h *history) len() int { return len(h.frames) }

func (h *history) clear() {
	clear(h.frames)
	h.frames = h.frames[:0]
}

// rewrite replaces every frame with fn(frame). fn must return a new plan
// rather than modify its argument.
func (h *history) rewrite(fn func(*spatial.FloorPlan) *spatial.FloorPlan) {
	for i, f := range h.frames {
		h.frames[i] = fn(f)
	}
}
