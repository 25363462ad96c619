package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/mapping"
)

// Loader implements ports.MappingLoader using an in-memory map.
type Loader struct {
	mu   sync.RWMutex
	defs map[string]domain.MappingDefinition
}

// NewLoader creates a loader holding the given definitions.
func NewLoader(defs ...domain.MappingDefinition) (*Loader, error) {
	l := &Loader{defs: make(map[string]domain.MappingDefinition, len(defs))}
	for _, d := range defs {
		if err := l.Put(d); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewFromRaw creates a loader from YAML documents keyed by mapping name.
// A document without a name takes its key.
func NewFromRaw(data map[string]string) (*Loader, error) {
	l := &Loader{defs: make(map[string]domain.MappingDefinition, len(data))}
	for name, raw := range data {
		def, err := mapping.Parse([]byte(raw), ".yaml")
		if err != nil {
			return nil, fmt.Errorf("mapping %s: %w", name, err)
		}
		if def.Name == "" {
			def.Name = name
		}
		if err := l.Put(def); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put adds or replaces a definition.
func (l *Loader) Put(def domain.MappingDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: definition missing name", domain.ErrInvalidMapping)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defs[def.Name] = def
	return nil
}

// GetMapping returns the definition with the given name.
func (l *Loader) GetMapping(_ context.Context, name string) (domain.MappingDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.defs[name]
	if !ok {
		return domain.MappingDefinition{}, fmt.Errorf("%w: %s", domain.ErrMappingNotFound, name)
	}
	return def, nil
}

// ListMappings returns all definition names in sorted order.
func (l *Loader) ListMappings(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.defs))
	for k := range l.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
