package editor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kwv/floorplan/spatial"
)

// DraftPath returns the draft file for a floor plan under dir.
func DraftPath(dir, planID string) string {
	return filepath.Join(dir, filepath.Base(planID)+".json")
}

// SaveDraft writes unsaved local edits to <dir>/<planID>.json so they can
// be inspected after the editor closes. The server copy stays the source
// of truth.
func SaveDraft(dir string, plan *spatial.FloorPlan) (string, error) {
	if plan == nil || plan.ID == "" {
		return "", fmt.Errorf("save draft: %w", spatial.ErrMalformedPayload)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal draft: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create draft directory: %w", err)
	}
	path := DraftPath(dir, plan.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}
	return path, nil
}

// LoadDraft reads a draft written by SaveDraft. A missing draft wraps
// fs.ErrNotExist.
func LoadDraft(dir, planID string) (*spatial.FloorPlan, error) {
	data, err := os.ReadFile(DraftPath(dir, planID))
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	var plan spatial.FloorPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &plan, nil
}

// RemoveDraft deletes a draft if present.
func RemoveDraft(dir, planID string) error {
	err := os.Remove(DraftPath(dir, planID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}
