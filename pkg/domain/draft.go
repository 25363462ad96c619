package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Draft is the in-progress form state held for a dashboard session.
type Draft struct {
	ID         string    `json:"id"`
	Mapping    string    `json:"mapping"`
	InstanceID string    `json:"instance_id,omitempty"`
	Data       FormData  `json:"data"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewDraft creates an empty draft bound to a mapping.
func NewDraft(id, mapping string) *Draft {
	return &Draft{
		ID:        id,
		Mapping:   mapping,
		Data:      make(FormData),
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy that shares no form data map with d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.Data = d.Data.Clone()
	if c.Data == nil {
		c.Data = make(FormData)
	}
	return &c
}

// DecodeDraft decodes a JSON-encoded draft. Numbers in the form data are kept
// as json.Number, so stored values reach the engine exactly as they were saved.
func DecodeDraft(data []byte) (*Draft, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var draft Draft
	if err := dec.Decode(&draft); err != nil {
		return nil, err
	}
	if draft.Data == nil {
		draft.Data = make(FormData)
	}
	return &draft, nil
}
