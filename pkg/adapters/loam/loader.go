package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/formbridge/pkg/domain"
)

// Loader adapts the Loam library to the formbridge MappingLoader interface.
// Each document in the repository (Markdown front matter, YAML or JSON) holds one mapping.
type Loader struct {
	Repo *loam.TypedRepository[MappingMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[MappingMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mappings dir: %w", err)
	}

	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repo at %s: %w", absPath, err)
	}
	return New(loam.NewTypedRepository[MappingMetadata](repo)), nil
}

// GetMapping returns the mapping with the given name.
// Names are resolved through the document list, so a mapping may live in a
// file whose name differs from the mapping name.
func (l *Loader) GetMapping(ctx context.Context, name string) (domain.MappingDefinition, error) {
	defs, err := l.load(ctx)
	if err != nil {
		return domain.MappingDefinition{}, err
	}
	def, ok := defs[trimExtension(name)]
	if !ok {
		return domain.MappingDefinition{}, fmt.Errorf("%w: %s", domain.ErrMappingNotFound, name)
	}
	return def, nil
}

// ListMappings lists all mapping names in sorted order.
func (l *Loader) ListMappings(ctx context.Context) ([]string, error) {
	defs, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) load(ctx context.Context) (map[string]domain.MappingDefinition, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	defs := make(map[string]domain.MappingDefinition, len(docs))
	seen := make(map[string]string, len(docs))
	for _, doc := range docs {
		def := doc.Data.Definition(doc.ID, doc.Content)

		if existing, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("collision detected: mapping '%s' is defined in both '%s' and '%s'", def.Name, existing, doc.ID)
		}
		seen[def.Name] = doc.ID
		defs[def.Name] = def
	}
	return defs, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable. The channel is signaled after any mapping
// document changes and closed when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: one pending signal is enough to trigger a reload.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
