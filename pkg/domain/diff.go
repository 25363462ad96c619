package domain

import (
	"reflect"
)

// DraftDiff represents the changes between two versions of a draft.
// It is designed to be serialized to JSON for partial updates on the client.
type DraftDiff struct {
	// DraftID is always present to identify the target.
	DraftID string `json:"draft_id"`

	Version int `json:"version"`

	// InstanceID is set when the bound process instance changed.
	InstanceID *string `json:"instance_id,omitempty"`

	// Data contains only changed, added or deleted fields.
	// For deletions, the key is present with a nil value.
	// Clients should merge these updates into their local form state.
	Data map[string]any `json:"data,omitempty"`
}

// Diff calculates the difference between oldDraft and newDraft.
// If oldDraft is nil, it returns a diff representing the entire newDraft (initial load).
// It returns nil when nothing changed.
func Diff(oldDraft, newDraft *Draft) *DraftDiff {
	if newDraft == nil {
		return nil
	}

	diff := &DraftDiff{
		DraftID: newDraft.ID,
		Version: newDraft.Version,
	}

	if oldDraft == nil {
		if newDraft.InstanceID != "" {
			diff.InstanceID = &newDraft.InstanceID
		}
	} else if oldDraft.InstanceID != newDraft.InstanceID {
		diff.InstanceID = &newDraft.InstanceID
	}

	var oldData FormData
	if oldDraft != nil {
		oldData = oldDraft.Data
	}
	diff.Data = DiffFormData(oldData, newDraft.Data)

	if oldDraft != nil && diff.IsEmpty() {
		return nil
	}
	return diff
}

// DiffFormData returns the fields added or modified in newData, plus the fields
// removed from oldData mapped to nil. It returns nil when there is no change.
func DiffFormData(oldData, newData FormData) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range newData {
		oldVal, exists := oldData[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range oldData {
		if _, exists := newData[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *DraftDiff) IsEmpty() bool {
	return d.InstanceID == nil && len(d.Data) == 0
}
