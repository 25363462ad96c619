package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
)

const defaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// ChangeFunc is called after a draft change has been persisted.
type ChangeFunc func(ctx context.Context, diff *domain.DraftDiff)

// Manager orchestrates draft access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.DraftStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker   ports.DistributedLocker // Optional distributed locker
	lockTTL  time.Duration
	onChange ChangeFunc
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks. Defaults to 30s.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithOnChange registers a callback receiving the diff of every persisted change.
func WithOnChange(fn ChangeFunc) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// WithClock sets the time source for Draft.UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new draft Manager with the given persistence store.
func NewManager(store ports.DraftStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: defaultLockTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Load retrieves an existing draft from the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		draft, err = m.store.Load(ctx, id)
		return err
	})
	return draft, err
}

// LoadOrStart loads a draft, creating an empty one bound to mapping if it does not exist.
func (m *Manager) LoadOrStart(ctx context.Context, id, mapping string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		draft, err = m.store.Load(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDraftNotFound) {
			return fmt.Errorf("failed to check draft existence: %w", err)
		}

		draft = domain.NewDraft(id, mapping)
		draft.Version = 1
		draft.UpdatedAt = m.now().UTC()

		// Persist immediately to reserve the ID
		if err := m.store.Save(ctx, draft); err != nil {
			return fmt.Errorf("failed to initialize draft: %w", err)
		}
		m.notify(ctx, domain.Diff(nil, draft))
		return nil
	})
	return draft, err
}

// Save replaces the stored draft with draft, bumping its version.
// It returns the diff against the previous version, or nil if nothing changed.
func (m *Manager) Save(ctx context.Context, draft *domain.Draft) (*domain.DraftDiff, error) {
	var diff *domain.DraftDiff
	err := m.WithLock(ctx, draft.ID, func(ctx context.Context) error {
		prev, err := m.store.Load(ctx, draft.ID)
		if err != nil && !errors.Is(err, domain.ErrDraftNotFound) {
			return fmt.Errorf("failed to load draft: %w", err)
		}

		next := draft.Clone()
		next.Version = 0
		if prev != nil {
			next.Version = prev.Version
			if next.Mapping == "" {
				next.Mapping = prev.Mapping
			}
		}
		diff, err = m.commit(ctx, prev, next)
		return err
	})
	return diff, err
}

// Patch merges changes into the draft's form data. A nil value removes the field.
// It returns the updated draft and the diff, which is nil if nothing changed.
func (m *Manager) Patch(ctx context.Context, id string, changes map[string]any) (*domain.Draft, *domain.DraftDiff, error) {
	var (
		draft *domain.Draft
		diff  *domain.DraftDiff
	)
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		prev, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}

		next := prev.Clone()
		for k, v := range changes {
			if v == nil {
				delete(next.Data, k)
				continue
			}
			next.Data[k] = v
		}

		diff, err = m.commit(ctx, prev, next)
		draft = next
		return err
	})
	return draft, diff, err
}

// Bind attaches the draft to a running process instance, so its submission
// continues that instance instead of raising a new event.
func (m *Manager) Bind(ctx context.Context, id, instanceID string) (*domain.DraftDiff, error) {
	var diff *domain.DraftDiff
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		prev, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		next := prev.Clone()
		next.InstanceID = instanceID
		diff, err = m.commit(ctx, prev, next)
		return err
	})
	return diff, err
}

// commit persists next if it differs from prev. Must be called under the draft lock.
func (m *Manager) commit(ctx context.Context, prev, next *domain.Draft) (*domain.DraftDiff, error) {
	if prev != nil && domain.Diff(prev, next) == nil {
		return nil, nil
	}

	next.Version++
	next.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	diff := domain.Diff(prev, next)
	m.notify(ctx, diff)
	return diff, nil
}

func (m *Manager) notify(ctx context.Context, diff *domain.DraftDiff) {
	if m.onChange != nil && diff != nil {
		m.onChange(ctx, diff)
	}
}

// Delete removes the draft from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying draft store.
func (m *Manager) Store() ports.DraftStore {
	return m.store
}

// WithLock executes fn while holding the lock for key.
// Keys are draft IDs or process instance IDs.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was canceled during fn.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
