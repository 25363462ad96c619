package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"

	"github.com/aretw0/formbridge/internal/testutils"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reembolsoDoc = `---
event: SolicitudReembolso
fields:
  - field: empleado
    parameter: pEmpleado
    transform: upper
  - field: monto
    parameter: pMonto
    transform:
      fixed:
        digits: 2
hidden:
  - parameter: pUsuario
    source: user
schema:
  empleado: string
  monto: float
---
Solicitud de reembolso de gastos.`

const altaDoc = `---
name: alta-empleado
event: AltaEmpleado
mode: all
---
`

func TestLoader_Contract(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"reembolso.md": reembolsoDoc,
		"alta.md":      altaDoc,
	})

	loader := New(loam.NewTypedRepository[MappingMetadata](repo))

	tests.MappingLoaderContractTest(t, loader, map[string]domain.MappingDefinition{
		"reembolso": {
			Name:  "reembolso",
			Event: "SolicitudReembolso",
			Fields: []domain.FieldDefinition{
				{Field: "empleado", Parameter: "pEmpleado"},
				{Field: "monto", Parameter: "pMonto"},
			},
		},
		"alta-empleado": {Name: "alta-empleado", Event: "AltaEmpleado", Mode: domain.ModeAll},
	})
}

func TestLoader_DecodesDefinition(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{"reembolso.md": reembolsoDoc})

	loader := New(loam.NewTypedRepository[MappingMetadata](repo))
	def, err := loader.GetMapping(context.Background(), "reembolso")
	require.NoError(t, err)

	assert.Equal(t, "Solicitud de reembolso de gastos.", def.Description)
	assert.Equal(t, "upper", def.Fields[0].Transform)
	assert.NotNil(t, def.Fields[1].Transform)
	assert.Equal(t, []domain.HiddenDefinition{{Parameter: "pUsuario", Source: domain.SourceUser}}, def.Hidden)
	assert.Equal(t, map[string]string{"empleado": "string", "monto": "float"}, def.Schema)
}

func TestLoader_NestedDirectories(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"rrhh/alta.md": "---\nevent: Alta\n---\n",
	})

	loader := New(loam.NewTypedRepository[MappingMetadata](repo))
	names, err := loader.ListMappings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rrhh/alta"}, names)

	def, err := loader.GetMapping(context.Background(), "rrhh/alta")
	require.NoError(t, err)
	assert.Equal(t, "Alta", def.Event)
}

func TestLoader_Collision(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"a.md": "---\nname: same\nevent: A\n---\n",
		"b.md": "---\nname: same\nevent: B\n---\n",
	})

	loader := New(loam.NewTypedRepository[MappingMetadata](repo))
	_, err := loader.ListMappings(context.Background())
	assert.ErrorContains(t, err, "collision detected")
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	testutils.WriteFiles(t, tmpDir, map[string]string{"reembolso.md": reembolsoDoc})

	loader, err := Open(tmpDir)
	require.NoError(t, err)

	def, err := loader.GetMapping(context.Background(), "reembolso")
	require.NoError(t, err)
	assert.Equal(t, "SolicitudReembolso", def.Event)
}

func TestMappingMetadata_Definition(t *testing.T) {
	tests := []struct {
		name  string
		meta  MappingMetadata
		docID string
		want  string
	}{
		{"Explicit name", MappingMetadata{Name: "x", ID: "y"}, "z.md", "x"},
		{"ID alias", MappingMetadata{ID: "y.md"}, "z.md", "y"},
		{"File name", MappingMetadata{}, "dir/z.md", "dir/z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.Definition(tt.docID, "").Name)
		})
	}
}
