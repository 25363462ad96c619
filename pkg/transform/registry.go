package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/formbridge/pkg/domain"
)

var (
	// ErrUnknownTransform is returned when a spec names a transform that is not registered.
	ErrUnknownTransform = errors.New("unknown transform")
	// ErrInvalidSpec is returned when a transform declaration cannot be parsed.
	ErrInvalidSpec = errors.New("invalid transform spec")
)

// Factory builds a transform from its declared arguments.
// Factories run once per mapping compile, so expensive setup belongs here.
type Factory func(args map[string]any) (domain.Transform, error)

// Registry manages the available transforms.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a transform factory to the registry.
// If a factory with the same name exists, it is overwritten.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered transform names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New instantiates a single transform.
func (r *Registry) New(spec Spec) (domain.Transform, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, spec.Name)
	}

	fn, err := f(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", spec.Name, err)
	}
	return fn, nil
}

// Build parses a raw declaration (see ParseSpecs) and composes the resulting
// transforms left to right. An empty declaration yields a nil Transform.
func (r *Registry) Build(raw any) (domain.Transform, error) {
	specs, err := ParseSpecs(raw)
	if err != nil {
		return nil, err
	}

	chain := make([]domain.Transform, 0, len(specs))
	for _, s := range specs {
		fn, err := r.New(s)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fn)
	}
	return Chain(chain...), nil
}

// Chain composes transforms, feeding each output into the next one.
// The first error stops the chain.
func Chain(fns ...domain.Transform) domain.Transform {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(v any) (any, error) {
		var err error
		for _, fn := range fns {
			if v, err = fn(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns a shared registry holding the built-in transforms.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
		RegisterBuiltins(defaultReg)
	})
	return defaultReg
}
