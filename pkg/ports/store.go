package ports

import (
	"context"

	"github.com/aretw0/formbridge/pkg/domain"
)

// DraftStore defines the interface for persisting form drafts,
// so a dashboard user can leave a form and resume it later.
type DraftStore interface {
	// Save persists the draft under draft.ID, replacing any previous version.
	Save(ctx context.Context, draft *domain.Draft) error

	// Load retrieves the draft with the given ID.
	// Returns domain.ErrDraftNotFound if the draft does not exist.
	Load(ctx context.Context, id string) (*domain.Draft, error)

	// Delete removes the draft. Deleting a missing draft is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored drafts.
	List(ctx context.Context) ([]string, error)
}
