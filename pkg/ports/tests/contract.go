package tests

import (
	"context"
	"testing"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MappingLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.MappingLoader.
// expected holds the definitions the loader was seeded with, keyed by name.
func MappingLoaderContractTest(t *testing.T, loader ports.MappingLoader, expected map[string]domain.MappingDefinition) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMapping_Success", func(t *testing.T) {
		for name, want := range expected {
			got, err := loader.GetMapping(ctx, name)
			require.NoError(t, err, "getting mapping %s", name)
			assert.Equal(t, want.Name, got.Name)
			assert.Equal(t, want.Event, got.Event)
			assert.Len(t, got.Fields, len(want.Fields))
			for i := range want.Fields {
				assert.Equal(t, want.Fields[i].Field, got.Fields[i].Field)
				assert.Equal(t, want.Fields[i].Parameter, got.Fields[i].Parameter)
			}
		}
	})

	t.Run("GetMapping_NotFound", func(t *testing.T) {
		_, err := loader.GetMapping(ctx, "non-existent-mapping")
		assert.ErrorIs(t, err, domain.ErrMappingNotFound)
	})

	t.Run("ListMappings", func(t *testing.T) {
		names, err := loader.ListMappings(ctx)
		require.NoError(t, err)
		assert.Len(t, names, len(expected))
		assert.IsNonDecreasing(t, names)
		for name := range expected {
			assert.Contains(t, names, name)
		}
	})
}
