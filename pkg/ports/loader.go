package ports

import (
	"context"

	"github.com/aretw0/formbridge/pkg/domain"
)

// MappingLoader defines how mapping definitions are retrieved.
// This allows the definition source (Loam, files, memory) to be decoupled.
type MappingLoader interface {
	// GetMapping returns the definition with the given name.
	// Returns domain.ErrMappingNotFound if it does not exist.
	GetMapping(ctx context.Context, name string) (domain.MappingDefinition, error)

	// ListMappings returns the names of all available definitions, sorted.
	ListMappings(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used to drop compiled plans when definition files are edited.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definitions change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
