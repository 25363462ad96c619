package cli_test

import (
	"context"
	"encoding/hex"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/internal/cli"
	"github.com/aretw0/formbridge/internal/config"
	"github.com/aretw0/formbridge/pkg/adapters/memory"
	"github.com/aretw0/formbridge/pkg/domain"
)

const viaticos = `
event: SolicitudViaticos
fields:
  - field: empleado
    parameter: pEmpleado
    transform: upper
  - field: destino
    parameter: pDestino
`

func newRuntime(t *testing.T, cfg config.Config) *cli.Runtime {
	t.Helper()
	loader, err := memory.NewFromRaw(map[string]string{"viaticos": viaticos})
	require.NoError(t, err)

	rt, err := cli.NewRuntime(cfg, nil, cli.WithMappingLoader(loader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRuntime_Memory(t *testing.T) {
	rt := newRuntime(t, config.Default())
	ctx := context.Background()

	batch, err := rt.Bridge.Preview(ctx, "viaticos", domain.FormData{"empleado": "ana", "destino": "Lima"}, domain.Audit{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Parameter{
		{Name: "pEmpleado", Value: "ANA", Direction: domain.DirectionInput},
		{Name: "pDestino", Value: "Lima", Direction: domain.DirectionInput},
	}, batch.Parameters)

	assert.Equal(t, 1, testutil.CollectAndCount(rt.Registry, "formbridge_mapped_total"))

	_, err = rt.Bridge.Submit(ctx, formbridge.SubmitRequest{Mapping: "viaticos", Data: domain.FormData{}})
	assert.ErrorIs(t, err, formbridge.ErrNoDispatcher)
}

func TestRuntime_DraftChangesReachStreams(t *testing.T) {
	rt := newRuntime(t, config.Default())
	ctx := context.Background()

	events, unsubscribe := rt.Streams.Subscribe("d1")
	defer unsubscribe()

	_, err := rt.Bridge.Sessions().LoadOrStart(ctx, "d1", "viaticos")
	require.NoError(t, err)
	_, _, err = rt.Bridge.Sessions().Patch(ctx, "d1", map[string]any{"destino": "Cusco"})
	require.NoError(t, err)

	select {
	case msg := <-events:
		assert.Contains(t, msg, "d1")
	case <-time.After(time.Second):
		t.Fatal("no draft event published")
	}
}

func TestRuntime_RedisWithEncryption(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.RedisURL = "redis://" + mr.Addr()
	cfg.Store.EncryptionKey = hex.EncodeToString([]byte(strings.Repeat("k", 32)))
	cfg.Store.MaskFields = []string{"^tarjeta$"}

	rt := newRuntime(t, cfg)
	ctx := context.Background()

	_, err := rt.Bridge.Sessions().LoadOrStart(ctx, "d2", "viaticos")
	require.NoError(t, err)
	_, _, err = rt.Bridge.Sessions().Patch(ctx, "d2", map[string]any{"destino": "Arequipa", "tarjeta": "4111"})
	require.NoError(t, err)

	raw, err := mr.Get(cfg.Store.Prefix + "d2")
	require.NoError(t, err)
	assert.NotContains(t, raw, "Arequipa")

	draft, err := rt.Bridge.Sessions().Load(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, "Arequipa", draft.Data["destino"])
	assert.NotEqual(t, "4111", draft.Data["tarjeta"])
}

func TestRuntime_ProcessDispatcher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	cfg := config.Default()
	cfg.Process.Command = "sh"
	cfg.Process.Args = []string{"-c", `echo '{"instance_id": "inst-42"}'`}

	rt := newRuntime(t, cfg)
	ctx := context.Background()

	_, err := rt.Bridge.Sessions().LoadOrStart(ctx, "d3", "viaticos")
	require.NoError(t, err)

	res, err := rt.Bridge.Submit(ctx, formbridge.SubmitRequest{
		DraftID: "d3",
		Data:    domain.FormData{"empleado": "eva", "destino": "Puno"},
	})
	require.NoError(t, err)
	assert.Equal(t, "inst-42", res.Receipt.InstanceID)

	_, err = rt.Bridge.Sessions().Load(ctx, "d3")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound, "submitted drafts are dropped")
}

func TestRuntime_InvalidStoreSettings(t *testing.T) {
	loader, err := memory.NewLoader()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "Short key", mutate: func(c *config.Config) { c.Store.EncryptionKey = "abcd" }},
		{name: "Bad pattern", mutate: func(c *config.Config) { c.Store.MaskFields = []string{"("} }},
		{name: "Bad redis url", mutate: func(c *config.Config) {
			c.Store.Backend = config.StoreRedis
			c.Store.RedisURL = "://nope"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := cli.NewRuntime(cfg, nil, cli.WithMappingLoader(loader))
			assert.Error(t, err)
		})
	}
}
