package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"slices"
	"sort"

	"github.com/kwv/floorplan/spatial"
)

// Patch is a partial floor plan update pushed by another editor or by the
// server. Metadata keys use the wire names of the metadata object.
type Patch struct {
	ID              string                     `json:"id"`
	Origin          string                     `json:"origin,omitempty"`
	Metadata        map[string]json.RawMessage `json:"metadata,omitempty"`
	Spaces          []spatial.FloorPlanSpace   `json:"spaces,omitempty"`
	DeletedSpaceIDs []string                   `json:"deletedSpaceIds,omitempty"`
	Status          *spatial.Status            `json:"status,omitempty"`
}

// PatchResult reports what a remote patch changed. Fields lists
// "metadata.<key>", "status", "spaces.<id>" and "deleted.<id>" entries.
// OverwrittenSpaces names spaces that had unsaved local edits which the
// patch replaced or removed. HistoryCollisions names spaces the patch
// changed that local edits in the undo or redo history also changed; in
// those frames the local version is kept.
type PatchResult struct {
	Fields            []string `json:"fields"`
	OverwrittenSpaces []string `json:"overwrittenSpaces"`
	HistoryCollisions []string `json:"historyCollisions,omitempty"`
}

// ApplyPatch merges a remote patch into the session using last-write-wins
// per field: each metadata key, the status, and each space by id. Remote
// patches bypass the validation gate, never push history, and do not mark
// the session dirty. The patch is also applied to the server-confirmed
// snapshot and rebased into every history frame so undo and redo only
// reverse local edits: metadata and status always, and each remote space
// change unless local edits between that frame and the present touched
// the same space.
func (s *Session) ApplyPatch(p Patch) (PatchResult, error) {
	s.mu.Lock()

	if p.ID != s.present.ID {
		s.mu.Unlock()
		return PatchResult{}, fmt.Errorf("patch for %q while editing %q: %w", p.ID, s.present.ID, ErrPlanMismatch)
	}

	next, fields, err := applyPatch(s.present, p, nil)
	if err != nil {
		s.mu.Unlock()
		return PatchResult{}, fmt.Errorf("apply patch: %w", err)
	}
	res := PatchResult{Fields: fields, OverwrittenSpaces: s.overwrittenLocked(p)}

	if confirmed, _, err := applyPatch(s.confirmed, p, nil); err == nil {
		s.confirmed = confirmed
	}
	collided := map[string]bool{}
	rebase := func(f *spatial.FloorPlan) *spatial.FloorPlan {
		out, _, err := applyPatch(f, p, func(id string) bool {
			if spaceDiffers(f, s.present, id) {
				collided[id] = true
				return false
			}
			return true
		})
		if err != nil {
			return f
		}
		return out
	}
	s.undo.rewrite(rebase)
	s.redo.rewrite(rebase)
	for id := range collided {
		res.HistoryCollisions = append(res.HistoryCollisions, id)
	}
	sort.Strings(res.HistoryCollisions)

	s.present = next
	if s.selected != "" && s.present.SpaceByID(s.selected) < 0 {
		s.selected = ""
	}
	ev := s.eventLocked(EventRemote, "")
	ev.Remote = &res
	s.mu.Unlock()

	s.emit(ev)
	return res, nil
}

// overwrittenLocked lists the spaces the patch touches that differ from
// the confirmed snapshot, i.e. carry unsaved local edits.
func (s *Session) overwrittenLocked(p Patch) []string {
	var ids []string
	check := func(id string) {
		i := s.present.SpaceByID(id)
		if i < 0 {
			return
		}
		j := s.confirmed.SpaceByID(id)
		if j < 0 || !reflect.DeepEqual(s.present.Spaces[i], s.confirmed.Spaces[j]) {
			ids = append(ids, id)
		}
	}
	for _, sp := range p.Spaces {
		check(sp.ID)
	}
	for _, id := range p.DeletedSpaceIDs {
		check(id)
	}
	return ids
}

// spaceDiffers reports whether space id is different in a and b, counting
// presence in only one of them.
func spaceDiffers(a, b *spatial.FloorPlan, id string) bool {
	i, j := a.SpaceByID(id), b.SpaceByID(id)
	if i < 0 || j < 0 {
		return i != j
	}
	return !reflect.DeepEqual(a.Spaces[i], b.Spaces[j])
}

// applyPatch returns a copy of base with the patch applied. base is not
// modified. When keep is set, space upserts and deletions are applied only
// to the ids it accepts.
func applyPatch(base *spatial.FloorPlan, p Patch, keep func(id string) bool) (*spatial.FloorPlan, []string, error) {
	out := base.ShallowClone()
	var fields []string

	if len(p.Metadata) > 0 {
		md, keys, err := mergeMetadata(out.Metadata, p.Metadata)
		if err != nil {
			return nil, nil, err
		}
		out.Metadata = md
		for _, k := range keys {
			fields = append(fields, "metadata."+k)
		}
	}

	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStatus, *p.Status)
		}
		out.Status = *p.Status
		fields = append(fields, "status")
	}

	for _, sp := range p.Spaces {
		if sp.ID == "" {
			return nil, nil, fmt.Errorf("patch space without id: %w", spatial.ErrMalformedPayload)
		}
		if keep != nil && !keep(sp.ID) {
			continue
		}
		if i := out.SpaceByID(sp.ID); i >= 0 {
			out.Spaces[i] = sp.Clone()
		} else {
			out.Spaces = append(out.Spaces, sp.Clone())
		}
		fields = append(fields, "spaces."+sp.ID)
	}
	for _, id := range p.DeletedSpaceIDs {
		if keep != nil && !keep(id) {
			continue
		}
		if i := out.SpaceByID(id); i >= 0 {
			out.Spaces = slices.Delete(out.Spaces, i, i+1)
			fields = append(fields, "deleted."+id)
		}
	}
	return out, fields, nil
}

// mergeMetadata overlays the patch keys onto md through its JSON form.
// Keys the metadata object does not define are ignored. The returned keys
// are sorted.
func mergeMetadata(md spatial.Metadata, patch map[string]json.RawMessage) (spatial.Metadata, []string, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return md, nil, fmt.Errorf("encode metadata: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return md, nil, fmt.Errorf("decode metadata: %w", err)
	}

	var keys []string
	for k, v := range patch {
		if _, known := fields[k]; !known {
			continue
		}
		fields[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw, err = json.Marshal(fields)
	if err != nil {
		return md, nil, fmt.Errorf("encode metadata: %w", err)
	}
	var merged spatial.Metadata
	if err := json.Unmarshal(raw, &merged); err != nil {
		return md, nil, fmt.Errorf("metadata patch: %w: %v", spatial.ErrMalformedPayload, err)
	}
	return merged, keys, nil
}

// Reconciler feeds real-time messages for one editor into its session.
type Reconciler struct {
	session *Session
	origin  string
}

// NewReconciler returns a reconciler that ignores patches carrying origin,
// the id this editor stamps on what it publishes.
func NewReconciler(session *Session, origin string) *Reconciler {
	return &Reconciler{session: session, origin: origin}
}

// Apply merges p into the session. It returns ErrOwnPatch for echoes of
// this editor's own publications and ErrPlanMismatch for other plans.
func (r *Reconciler) Apply(p Patch) (PatchResult, error) {
	if r.origin != "" && p.Origin == r.origin {
		remotePatchesTotal.WithLabelValues(resultIgnored).Inc()
		return PatchResult{}, ErrOwnPatch
	}
	res, err := r.session.ApplyPatch(p)
	switch {
	case errors.Is(err, ErrPlanMismatch):
		remotePatchesTotal.WithLabelValues(resultMismatch).Inc()
		return res, err
	case err != nil:
		remotePatchesTotal.WithLabelValues(resultInvalid).Inc()
		return res, err
	}
	remotePatchesTotal.WithLabelValues(resultApplied).Inc()
	if len(res.OverwrittenSpaces) > 0 {
		log.Printf("[REALTIME] Remote patch from %s overwrote local edits to spaces %v", p.Origin, res.OverwrittenSpaces)
	}
	if len(res.HistoryCollisions) > 0 {
		log.Printf("[REALTIME] Remote patch from %s collides with undo history for spaces %v", p.Origin, res.HistoryCollisions)
	}
	return res, nil
}

// HandleMessage decodes a JSON patch and applies it. Echoes and patches
// for other plans are dropped without error.
func (r *Reconciler) HandleMessage(payload []byte) error {
	var p Patch
	if err := json.Unmarshal(payload, &p); err != nil {
		remotePatchesTotal.WithLabelValues(resultInvalid).Inc()
		return fmt.Errorf("decode patch: %w: %v", spatial.ErrMalformedPayload, err)
	}
	_, err := r.Apply(p)
	if errors.Is(err, ErrOwnPatch) || errors.Is(err, ErrPlanMismatch) {
		return nil
	}
	return err
}
