package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDraftStoreContract runs a suite of tests to verify that a DraftStore implementation
// adheres to the defined interface contract.
func RunDraftStoreContract(t *testing.T, store DraftStore) {
	ctx := context.Background()
	draftID := "contract-test-draft-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		draft := domain.NewDraft(draftID, "reembolso")
		draft.InstanceID = "inst-1"
		draft.Data["empleado"] = "juan perez"
		draft.Data["monto"] = json.Number("1500.50")
		draft.Data["cuenta"] = json.Number("12345678901234567")
		draft.Version = 3

		require.NoError(t, store.Save(ctx, draft), "Save should not return error")

		loaded, err := store.Load(ctx, draftID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "reembolso", loaded.Mapping)
		assert.Equal(t, "inst-1", loaded.InstanceID)
		assert.Equal(t, 3, loaded.Version)
		assert.Equal(t, "juan perez", loaded.Data["empleado"])
		// Numbers decoded from requests must come back digit for digit.
		assert.Equal(t, json.Number("1500.50"), loaded.Data["monto"])
		assert.Equal(t, json.Number("12345678901234567"), loaded.Data["cuenta"])
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, draftID)
		require.NoError(t, err)
		loaded.Data["empleado"] = "changed"

		again, err := store.Load(ctx, draftID)
		require.NoError(t, err)
		assert.Equal(t, "juan perez", again.Data["empleado"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+draftID)
		assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewDraft(draftID, "reembolso")))

		require.NoError(t, store.Delete(ctx, draftID), "Delete should not return error")

		_, err := store.Load(ctx, draftID)
		assert.ErrorIs(t, err, domain.ErrDraftNotFound, "Load after Delete should return ErrDraftNotFound")

		assert.NoError(t, store.Delete(ctx, draftID), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := draftID + "-1"
		id2 := draftID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewDraft(id1, "a")))
		require.NoError(t, store.Save(ctx, domain.NewDraft(id2, "b")))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		drafts, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, drafts, id1)
		assert.Contains(t, drafts, id2)
	})
}
