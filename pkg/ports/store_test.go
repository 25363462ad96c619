package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore is an in-memory implementation of DraftStore for testing purposes.
type MockStore struct {
	mu   sync.Mutex
	data map[string]*domain.Draft
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Draft),
	}
}

func (m *MockStore) Save(_ context.Context, draft *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[draft.ID] = draft.Clone()
	return nil
}

func (m *MockStore) Load(_ context.Context, id string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	return d.Clone(), nil
}

func (m *MockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MockStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestDraftStore_Contract(t *testing.T) {
	ports.RunDraftStoreContract(t, NewMockStore())
}

type recordingDispatcher struct {
	calls []domain.Operation
}

func (r *recordingDispatcher) RaiseEvent(_ context.Context, sub domain.Submission) (domain.Receipt, error) {
	r.calls = append(r.calls, domain.OperationRaiseEvent)
	return domain.Receipt{SubmissionID: sub.ID, InstanceID: "new"}, nil
}

func (r *recordingDispatcher) ContinueInstance(_ context.Context, sub domain.Submission) (domain.Receipt, error) {
	r.calls = append(r.calls, domain.OperationContinue)
	return domain.Receipt{SubmissionID: sub.ID, InstanceID: sub.InstanceID}, nil
}

func TestDispatch_RoutesByOperation(t *testing.T) {
	d := &recordingDispatcher{}
	ctx := context.Background()

	r, err := ports.Dispatch(ctx, d, domain.Submission{ID: "s1", EventName: "Alta"})
	require.NoError(t, err)
	assert.Equal(t, "new", r.InstanceID)

	r, err = ports.Dispatch(ctx, d, domain.Submission{ID: "s2", InstanceID: "inst-9"})
	require.NoError(t, err)
	assert.Equal(t, "inst-9", r.InstanceID)

	assert.Equal(t, []domain.Operation{domain.OperationRaiseEvent, domain.OperationContinue}, d.calls)
}
