package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/formbridge/pkg/adapters/memory"
	"github.com/aretw0/formbridge/pkg/adapters/redis"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
	"github.com/aretw0/formbridge/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go-redis keeps pool reapers alive until the client is closed.
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.(*ConnPool).reaper"),
	)
}

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Save(ctx context.Context, d *domain.Draft) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, d)
}

func (s *SlowStore) Load(ctx context.Context, id string) (*domain.Draft, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func TestManager_ConcurrentPatchesAreSerialized(t *testing.T) {
	manager := session.NewManager(&SlowStore{Store: memory.NewStore()})
	ctx := context.Background()

	_, err := manager.LoadOrStart(ctx, "race", "m")
	require.NoError(t, err)

	var wg sync.WaitGroup
	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, f := range fields {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			_, _, err := manager.Patch(ctx, "race", map[string]any{field: "x"})
			assert.NoError(t, err)
		}(f)
	}
	wg.Wait()

	draft, err := manager.Load(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, draft.Data, len(fields), "no update may be lost")
	assert.Equal(t, 1+len(fields), draft.Version)
}

func TestManager_LoadOrStart(t *testing.T) {
	manager := session.NewManager(&SlowStore{Store: memory.NewStore()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			draft, err := manager.LoadOrStart(ctx, "atomic-init", "reembolso")
			assert.NoError(t, err)
			assert.NotNil(t, draft)
		}()
	}
	wg.Wait()

	draft, err := manager.Load(ctx, "atomic-init")
	require.NoError(t, err)
	assert.Equal(t, "reembolso", draft.Mapping)
	assert.Equal(t, 1, draft.Version)
}

func TestManager_SaveAndPatchDiffs(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var diffs []*domain.DraftDiff
	manager := session.NewManager(memory.NewStore(),
		session.WithClock(func() time.Time { return now }),
		session.WithOnChange(func(_ context.Context, d *domain.DraftDiff) { diffs = append(diffs, d) }),
	)
	ctx := context.Background()

	d := domain.NewDraft("d1", "reembolso")
	d.Data["empleado"] = "juan"
	d.Version = 99
	diff, err := manager.Save(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Version, "client supplied versions are ignored")
	assert.Equal(t, map[string]any{"empleado": "juan"}, diff.Data)

	diff, err = manager.Save(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, diff, "saving identical data is a no-op")

	draft, diff, err := manager.Patch(ctx, "d1", map[string]any{"monto": "1500", "empleado": nil})
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version)
	assert.Equal(t, now, draft.UpdatedAt)
	assert.Equal(t, domain.FormData{"monto": "1500"}, draft.Data)
	assert.Equal(t, map[string]any{"monto": "1500", "empleado": nil}, diff.Data)

	diff, err = manager.Bind(ctx, "d1", "inst-7")
	require.NoError(t, err)
	require.NotNil(t, diff.InstanceID)
	assert.Equal(t, "inst-7", *diff.InstanceID)
	assert.Nil(t, diff.Data)

	assert.Len(t, diffs, 3)
}

func TestManager_PatchMissingDraft(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	_, _, err := manager.Patch(context.Background(), "nope", map[string]any{"a": 1})
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	_, err = manager.Bind(context.Background(), "nope", "i")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

type countingLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
	fail    bool
}

func (c *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("unavailable")
	}
	c.locks++
	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.unlocks++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	_, err := manager.LoadOrStart(ctx, "d1", "m")
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, "d1"))

	assert.Equal(t, 2, locker.locks)
	assert.Equal(t, 2, locker.unlocks)

	locker.fail = true
	_, err = manager.Load(ctx, "d1")
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}

func TestManager_RedisBackedReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewFromClient(client)
	locker := redis.NewLocker(client, "test:")
	replicaA := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	replicaB := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	ctx := context.Background()

	_, err := replicaA.LoadOrStart(ctx, "shared", "m")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, mgr := range []*session.Manager{replicaA, replicaB, replicaA, replicaB} {
		wg.Add(1)
		go func(field string, mgr *session.Manager) {
			defer wg.Done()
			_, _, err := mgr.Patch(ctx, "shared", map[string]any{field: true})
			assert.NoError(t, err)
		}(string(rune('a'+i)), mgr)
	}
	wg.Wait()

	draft, err := replicaB.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, draft.Data, 4)
	assert.False(t, mr.Exists("test:lock:shared"))
}
