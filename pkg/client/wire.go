package client

import (
	"time"

	"github.com/aretw0/formbridge/pkg/domain"
)

type legacyParameter struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	ParameterDirection int    `json:"parameterDirection"`
	IsVariable         bool   `json:"isVariable"`
}

// encodeParameters renders params in the configured wire shape.
func encodeParameters(format WireFormat, params []domain.Parameter) any {
	if format != WireLegacy {
		if params == nil {
			return []domain.Parameter{}
		}
		return params
	}

	out := make([]legacyParameter, len(params))
	for i, p := range params {
		out[i] = legacyParameter{
			Name:               p.Name,
			Value:              p.Value,
			ParameterDirection: legacyDirectionIn,
			IsVariable:         p.Direction == domain.DirectionVariable,
		}
	}
	return out
}

type raiseEventRequest struct {
	EventName    string `json:"eventName"`
	SubmissionID string `json:"submissionId,omitempty"`
	Mapping      string `json:"mapping,omitempty"`
	Parameters   any    `json:"parameters"`
}

type continueRequest struct {
	SubmissionID string `json:"submissionId,omitempty"`
	Mapping      string `json:"mapping,omitempty"`
	Parameters   any    `json:"parameters"`
}

// instanceResponse is the dashboard's answer. Older releases reply with
// "instanceId" only; newer ones add status and echo the parameters.
type instanceResponse struct {
	InstanceID string             `json:"instanceId"`
	Status     string             `json:"status"`
	Parameters []legacyOrStandard `json:"parameters"`
	ReceivedAt *time.Time         `json:"receivedAt"`
}

// legacyOrStandard decodes a parameter in either wire shape.
type legacyOrStandard struct {
	Name               string           `json:"name"`
	Value              string           `json:"value"`
	Direction          domain.Direction `json:"direction"`
	ParameterDirection int              `json:"parameterDirection"`
	IsVariable         bool             `json:"isVariable"`
}

func (p legacyOrStandard) parameter() domain.Parameter {
	dir := p.Direction
	if dir == "" {
		dir = domain.DirectionInput
		if p.IsVariable {
			dir = domain.DirectionVariable
		}
	}
	return domain.Parameter{Name: p.Name, Value: p.Value, Direction: dir}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e errorResponse) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return e.Detail
	}
}
