package domain

import "time"

// Operation names the engine call used to deliver a submission.
type Operation string

const (
	OperationRaiseEvent Operation = "raise_event"
	OperationContinue   Operation = "continue_instance"
)

// Audit carries the caller facts that hidden parameters may expose.
type Audit struct {
	UserID string `json:"user_id,omitempty" mapstructure:"user_id"`
	Device string `json:"device,omitempty" mapstructure:"device"`
}

// Submission is a mapped form ready to be delivered to the engine.
type Submission struct {
	ID         string      `json:"id"`
	Mapping    string      `json:"mapping"`
	EventName  string      `json:"event_name"`
	InstanceID string      `json:"instance_id,omitempty"`
	Parameters []Parameter `json:"parameters"`
}

// Operation returns the engine call for this submission:
// continuing an existing instance, or raising the event on a new one.
func (s *Submission) Operation() Operation {
	if s.InstanceID != "" {
		return OperationContinue
	}
	return OperationRaiseEvent
}

// Receipt is the engine's acknowledgement of a submission.
type Receipt struct {
	SubmissionID string      `json:"submission_id"`
	InstanceID   string      `json:"instance_id"`
	Status       string      `json:"status,omitempty"`
	Parameters   []Parameter `json:"parameters,omitempty"`
	ReceivedAt   time.Time   `json:"received_at"`
}
