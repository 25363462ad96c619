package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := NewMockStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)password", "^dni$"})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	draft := domain.NewDraft("d1", "alta")
	draft.Data["empleado"] = "juan"
	draft.Data["dni"] = "12345678"
	draft.Data["Password"] = "secret"
	draft.Data["banco"] = map[string]any{"user_password": "x", "cuenta": "ES00"}

	require.NoError(t, store.Save(ctx, draft))

	assert.Equal(t, "12345678", draft.Data["dni"], "caller's draft must not be modified")
	assert.Equal(t, "x", draft.Data["banco"].(map[string]any)["user_password"])

	stored, err := store.Load(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "juan", stored.Data["empleado"])
	assert.Equal(t, middleware.Mask, stored.Data["dni"])
	assert.Equal(t, middleware.Mask, stored.Data["Password"])
	assert.Equal(t, map[string]any{"user_password": middleware.Mask, "cuenta": "ES00"}, stored.Data["banco"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.ErrorContains(t, err, "invalid sensitive field pattern")
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	underlying := NewMockStore()
	pii, err := middleware.NewPIIMiddleware([]string{"dni"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()

	draft := domain.NewDraft("d1", "alta")
	draft.Data["dni"] = "12345678"
	require.NoError(t, store.Save(ctx, draft))

	raw, err := underlying.Load(ctx, "d1")
	require.NoError(t, err)
	assert.Contains(t, raw.Data, "__encrypted__")

	loaded, err := store.Load(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Data["dni"])
}
