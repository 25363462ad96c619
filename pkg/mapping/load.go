package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/formbridge/pkg/domain"
)

// LoadFile reads a mapping definition from a YAML or JSON file.
// The format is chosen by extension; anything but .json is read as YAML.
func LoadFile(path string) (domain.MappingDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.MappingDefinition{}, fmt.Errorf("failed to read mapping: %w", err)
	}

	def, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return domain.MappingDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// Parse decodes a mapping definition. ext selects JSON (".json") or YAML.
func Parse(data []byte, ext string) (domain.MappingDefinition, error) {
	var def domain.MappingDefinition
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &def); err != nil {
			return def, fmt.Errorf("failed to parse mapping json: %w", err)
		}
		return def, nil
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("failed to parse mapping yaml: %w", err)
	}
	return def, nil
}
