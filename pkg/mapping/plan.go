package mapping

import (
	"fmt"
	"time"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/schema"
)

// Plan is a compiled mapping definition. It is safe for concurrent use.
type Plan struct {
	def        domain.MappingDefinition
	mode       string
	visible    domain.FieldMapping
	hidden     domain.FieldMapping
	sources    []domain.HiddenDefinition
	schema     schema.Schema
	serializer domain.Serializer
	now        func() time.Time
	newID      func() string
}

// Batch holds the parameters produced for one submission.
type Batch struct {
	SubmissionID string             `json:"submission_id"`
	Visible      []domain.Parameter `json:"visible"`
	Hidden       []domain.Parameter `json:"hidden"`
	// Parameters is Visible followed by Hidden.
	Parameters []domain.Parameter `json:"parameters"`
}

// Name returns the mapping name.
func (p *Plan) Name() string { return p.def.Name }

// Event returns the engine event raised for new instances.
func (p *Plan) Event() string { return p.def.Event }

// Mode returns domain.ModeSelected or domain.ModeAll.
func (p *Plan) Mode() string { return p.mode }

// Definition returns the source definition, with the mode defaulted.
func (p *Plan) Definition() domain.MappingDefinition { return p.def }

// Schema returns the field schema, or nil when none is declared.
func (p *Plan) Schema() schema.Schema { return p.schema }

// Visible returns the compiled visible field rules.
func (p *Plan) Visible() domain.FieldMapping { return p.visible }

// Validate checks data against the mapping schema.
func (p *Plan) Validate(data domain.FormData) error {
	return schema.Validate(p.schema, data)
}

// Build maps data into the visible batch, computes the hidden batch from audit
// and the plan's sources, and merges them. It does not validate; call Validate first.
func (p *Plan) Build(data domain.FormData, audit domain.Audit) (*Batch, error) {
	b := &Batch{SubmissionID: p.newID()}

	var err error
	if p.mode == domain.ModeAll {
		b.Visible, err = p.serializer.ToAllParameters(data)
	} else {
		b.Visible, err = p.serializer.ToSelectedParameters(p.visible, data)
	}
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", p.def.Name, err)
	}

	b.Hidden, err = p.serializer.ToSelectedParameters(p.hidden, p.hiddenValues(b.SubmissionID, audit))
	if err != nil {
		return nil, fmt.Errorf("mapping %s: hidden: %w", p.def.Name, err)
	}

	b.Parameters = domain.MergeParameterBatches(b.Visible, b.Hidden)
	return b, nil
}

// hiddenValues resolves every hidden source, keyed by parameter name.
func (p *Plan) hiddenValues(submissionID string, audit domain.Audit) domain.FormData {
	values := make(domain.FormData, len(p.sources))
	for _, h := range p.sources {
		switch h.Source {
		case domain.SourceStatic:
			values[h.Parameter] = h.Value
		case domain.SourceTimestamp:
			values[h.Parameter] = p.now()
		case domain.SourceUser:
			values[h.Parameter] = audit.UserID
		case domain.SourceDevice:
			values[h.Parameter] = audit.Device
		case domain.SourceSubmissionID:
			values[h.Parameter] = submissionID
		}
	}
	return values
}
