package loam

import (
	"strings"

	"github.com/aretw0/formbridge/pkg/domain"
)

// MappingMetadata is the front matter of a mapping document.
// It uses "mapstructure" tags to match the keys of the YAML/JSON mapping format.
type MappingMetadata struct {
	// ID is an alias for Name kept for documents that follow the Loam id convention.
	ID          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	Event       string `json:"event" mapstructure:"event"`
	Mode        string `json:"mode" mapstructure:"mode"`

	Fields []domain.FieldDefinition  `json:"fields" mapstructure:"fields"`
	Hidden []domain.HiddenDefinition `json:"hidden" mapstructure:"hidden"`
	Schema map[string]string         `json:"schema" mapstructure:"schema"`
}

// Definition converts the metadata of document docID into a mapping definition.
// The name falls back to the id key, then to the file name; the Markdown body
// becomes the description when none is declared.
func (m MappingMetadata) Definition(docID, content string) domain.MappingDefinition {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	if name == "" {
		name = trimExtension(docID)
	}

	desc := m.Description
	if desc == "" {
		desc = strings.TrimSpace(content)
	}

	return domain.MappingDefinition{
		Name:        trimExtension(name),
		Description: desc,
		Event:       m.Event,
		Mode:        m.Mode,
		Fields:      m.Fields,
		Hidden:      m.Hidden,
		Schema:      m.Schema,
	}
}
