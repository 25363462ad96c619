package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventMapped     EventType = "mapped"
	EventDispatched EventType = "dispatched"
	EventFailed     EventType = "failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         EventType `json:"type"`
	SubmissionID string    `json:"submission_id,omitempty"`
}

// MappingEvent is emitted after a form has been turned into parameters.
type MappingEvent struct {
	EventBase
	Mapping    string   `json:"mapping"`
	Visible    int      `json:"visible"`
	Hidden     int      `json:"hidden"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// DispatchEvent is emitted after a call to the engine completes.
type DispatchEvent struct {
	EventBase
	Mapping    string        `json:"mapping"`
	Operation  Operation     `json:"operation"`
	InstanceID string        `json:"instance_id,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// LifecycleHooks defines callbacks for bridge observability.
type LifecycleHooks struct {
	OnMapped     func(context.Context, *MappingEvent)
	OnDispatched func(context.Context, *DispatchEvent)
}
