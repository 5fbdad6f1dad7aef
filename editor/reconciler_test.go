package editor

import (
	"encoding/json"
	"testing"

	"github.com/kwv/floorplan/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s spatial.Status) *spatial.Status { return &s }

func TestApplyPatchMetadataLastWriteWins(t *testing.T) {
	s := newTestSession(t)
	var log eventLog
	s.Subscribe(log.record)

	res, err := s.ApplyPatch(Patch{
		ID: "fp-1",
		Metadata: map[string]json.RawMessage{
			"name":    json.RawMessage(`"Ground Floor"`),
			"level":   json.RawMessage(`0`),
			"unknown": json.RawMessage(`true`),
		},
		Status: statusPtr(spatial.StatusReview),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata.level", "metadata.name", "status"}, res.Fields)
	assert.Empty(t, res.OverwrittenSpaces)

	p := s.Present()
	assert.Equal(t, "Ground Floor", p.Metadata.Name)
	assert.Equal(t, 0, p.Metadata.Level)
	assert.Equal(t, spatial.StatusReview, p.Status)
	assert.Equal(t, 1000.0, p.Metadata.UsableArea, "untouched keys keep their value")

	assert.False(t, s.IsDirty())
	assert.False(t, s.CanUndo())
	require.Equal(t, EventRemote, log.last().Type)
	assert.False(t, log.last().Local())
}

func TestApplyPatchSpaceUpsertAndDelete(t *testing.T) {
	s := newTestSession(t)
	_, _, err := s.AddSpace(spatial.FloorPlanSpace{ID: "s2", Name: "Lab", Coordinates: rect(20, 0, 10, 5)})
	require.NoError(t, err)

	res, err := s.ApplyPatch(Patch{
		ID: "fp-1",
		Spaces: []spatial.FloorPlanSpace{
			{ID: "s1", Name: "Boardroom", Coordinates: square(0, 0, 10), Area: 100},
			{ID: "s3", Name: "Kitchen", Coordinates: square(50, 50, 5), Area: 25},
		},
		DeletedSpaceIDs: []string{"s2", "missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"spaces.s1", "spaces.s3", "deleted.s2"}, res.Fields)
	assert.Equal(t, []string{"s2"}, res.OverwrittenSpaces, "s2 was a local unsaved addition")

	p := s.Present()
	require.Len(t, p.Spaces, 2)
	assert.Equal(t, "Boardroom", p.Spaces[0].Name)
	assert.Equal(t, "Kitchen", p.Spaces[1].Name)
}

func TestApplyPatchReportsOverwrittenLocalEdits(t *testing.T) {
	s := newTestSession(t)
	rename(t, s, "Local name")

	res, err := s.ApplyPatch(Patch{
		ID:     "fp-1",
		Spaces: []spatial.FloorPlanSpace{{ID: "s1", Name: "Remote name", Coordinates: square(0, 0, 10), Area: 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, res.OverwrittenSpaces)
	assert.Equal(t, "Remote name", s.Present().Spaces[0].Name)
}

func TestApplyPatchRebasesHistory(t *testing.T) {
	s := newTestSession(t)
	_, err := s.UpdateMetadata(MetadataUpdate{Name: strPtr("Local")})
	require.NoError(t, err)

	_, err = s.ApplyPatch(Patch{ID: "fp-1", Metadata: map[string]json.RawMessage{"level": json.RawMessage(`3`)}})
	require.NoError(t, err)

	require.NoError(t, s.Undo())
	p := s.Present()
	assert.Equal(t, "Level 1", p.Metadata.Name, "undo reverses the local edit")
	assert.Equal(t, 3, p.Metadata.Level, "undo keeps the remote edit")

	require.NoError(t, s.Redo())
	p = s.Present()
	assert.Equal(t, "Local", p.Metadata.Name)
	assert.Equal(t, 3, p.Metadata.Level)
}

func TestApplyPatchRebasesRemoteSpacesIntoHistory(t *testing.T) {
	s := newTestSession(t)
	rename(t, s, "Local name")

	res, err := s.ApplyPatch(Patch{
		ID:     "fp-1",
		Spaces: []spatial.FloorPlanSpace{{ID: "remote", Name: "Colleague", Coordinates: square(50, 50, 5), Area: 25}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.HistoryCollisions)

	require.NoError(t, s.Undo())
	p := s.Present()
	require.Len(t, p.Spaces, 2, "undo keeps the colleague's space")
	assert.Equal(t, "Office", p.Spaces[0].Name)
	assert.Equal(t, "remote", p.Spaces[1].ID)

	require.NoError(t, s.Redo())
	p = s.Present()
	require.Len(t, p.Spaces, 2)
	assert.Equal(t, "Local name", p.Spaces[0].Name)
}

func TestApplyPatchRebasesRemoteDeleteIntoHistory(t *testing.T) {
	s := newTestSession(t)
	_, _, err := s.AddSpace(spatial.FloorPlanSpace{ID: "s2", Name: "Lab", Coordinates: rect(20, 0, 10, 5)})
	require.NoError(t, err)

	res, err := s.ApplyPatch(Patch{ID: "fp-1", DeletedSpaceIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Empty(t, res.HistoryCollisions)

	require.NoError(t, s.Undo())
	assert.Empty(t, s.Present().Spaces, "the remote delete survives undo")
}

func TestApplyPatchKeepsLocalHistoryOnCollision(t *testing.T) {
	s := newTestSession(t)
	rename(t, s, "Local name")

	res, err := s.ApplyPatch(Patch{
		ID: "fp-1",
		Spaces: []spatial.FloorPlanSpace{
			{ID: "s1", Name: "Remote name", Coordinates: square(0, 0, 10), Area: 100},
			{ID: "remote", Name: "Colleague", Coordinates: square(50, 50, 5), Area: 25},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, res.HistoryCollisions)

	require.NoError(t, s.Undo())
	p := s.Present()
	require.Len(t, p.Spaces, 2)
	assert.Equal(t, "Office", p.Spaces[0].Name, "the frame keeps its own version of s1")
	assert.Equal(t, "remote", p.Spaces[1].ID)
}

func TestApplyPatchClearsSelectionOfDeletedSpace(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.SelectSpace("s1"))

	_, err := s.ApplyPatch(Patch{ID: "fp-1", DeletedSpaceIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Nil(t, s.State().SelectedSpaceID)
}

func TestApplyPatchErrors(t *testing.T) {
	s := newTestSession(t)
	before := s.Present()

	_, err := s.ApplyPatch(Patch{ID: "fp-2", Metadata: map[string]json.RawMessage{"name": json.RawMessage(`"x"`)}})
	assert.ErrorIs(t, err, ErrPlanMismatch)

	_, err = s.ApplyPatch(Patch{ID: "fp-1", Status: statusPtr("LIVE")})
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = s.ApplyPatch(Patch{ID: "fp-1", Metadata: map[string]json.RawMessage{"level": json.RawMessage(`"three"`)}})
	assert.ErrorIs(t, err, spatial.ErrMalformedPayload)

	_, err = s.ApplyPatch(Patch{ID: "fp-1", Spaces: []spatial.FloorPlanSpace{{Name: "anonymous"}}})
	assert.ErrorIs(t, err, spatial.ErrMalformedPayload)

	assert.Equal(t, before, s.Present())
}

func TestReconcilerDropsEchoes(t *testing.T) {
	s := newTestSession(t)
	r := NewReconciler(s, "editor-a")

	_, err := r.Apply(Patch{ID: "fp-1", Origin: "editor-a", Status: statusPtr(spatial.StatusArchived)})
	assert.ErrorIs(t, err, ErrOwnPatch)
	assert.Equal(t, spatial.StatusDraft, s.Present().Status)

	_, err = r.Apply(Patch{ID: "fp-1", Origin: "editor-b", Status: statusPtr(spatial.StatusArchived)})
	require.NoError(t, err)
	assert.Equal(t, spatial.StatusArchived, s.Present().Status)
}

func TestReconcilerHandleMessage(t *testing.T) {
	s := newTestSession(t)
	r := NewReconciler(s, "editor-a")

	assert.NoError(t, r.HandleMessage([]byte(`{"id":"fp-1","origin":"editor-a","status":"REVIEW"}`)), "echo is dropped silently")
	assert.NoError(t, r.HandleMessage([]byte(`{"id":"fp-9","status":"REVIEW"}`)), "other plans are dropped silently")
	assert.Equal(t, spatial.StatusDraft, s.Present().Status)

	assert.ErrorIs(t, r.HandleMessage([]byte(`{not json`)), spatial.ErrMalformedPayload)
	assert.ErrorIs(t, r.HandleMessage([]byte(`{"id":"fp-1","status":"LIVE"}`)), ErrUnknownStatus)

	require.NoError(t, r.HandleMessage([]byte(`{"id":"fp-1","origin":"editor-b","metadata":{"name":"Remote"}}`)))
	assert.Equal(t, "Remote", s.Present().Metadata.Name)
}
