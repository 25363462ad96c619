package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
)

// Mask replaces the value of every sensitive field before it is persisted.
const Mask = "***"

type piiMiddleware struct {
	next     ports.DraftStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks draft fields whose names match
// any of the patterns. Nested maps are masked too. The caller's draft is not modified.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid sensitive field pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.DraftStore) ports.DraftStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, draft *domain.Draft) error {
	cloned := *draft
	cloned.Data = deepCopyMap(draft.Data)
	maskMap(cloned.Data, m.patterns)

	return m.next.Save(ctx, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.Draft, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
