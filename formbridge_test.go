package formbridge_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/pkg/adapters/memory"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/mapping"
	"github.com/aretw0/formbridge/pkg/schema"
)

const reembolso = `
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
  - field: aprobado
    parameter: vAprobado
    variable: true
    transform:
      name: bool
      args:
        "true": SI
        "false": "NO"
hidden:
  - parameter: pUsuario
    source: user
  - parameter: pFecha
    source: timestamp
schema:
  empleado: string
  monto: float
  aprobado: bool?
`

type fakeDispatcher struct {
	mu    sync.Mutex
	subs  []domain.Submission
	err   error
	delay time.Duration
}

func (f *fakeDispatcher) RaiseEvent(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	return f.record(sub, "inst-new")
}

func (f *fakeDispatcher) ContinueInstance(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	return f.record(sub, sub.InstanceID)
}

func (f *fakeDispatcher) record(sub domain.Submission, instanceID string) (domain.Receipt, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	if f.err != nil {
		return domain.Receipt{}, f.err
	}
	return domain.Receipt{SubmissionID: sub.ID, InstanceID: instanceID}, nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newBridge(t *testing.T, opts ...formbridge.Option) (*formbridge.Bridge, *fakeDispatcher) {
	t.Helper()
	loader, err := memory.NewFromRaw(map[string]string{"reembolso": reembolso})
	require.NoError(t, err)

	d := &fakeDispatcher{}
	compiler := mapping.NewCompiler(
		mapping.WithClock(func() time.Time { return fixedNow }),
		mapping.WithIDGenerator(func() string { return "sub-1" }),
	)
	opts = append([]formbridge.Option{
		formbridge.WithLoader(loader),
		formbridge.WithDispatcher(d),
		formbridge.WithCompiler(compiler),
	}, opts...)

	b, err := formbridge.New("", opts...)
	require.NoError(t, err)
	return b, d
}

func TestBridge_Preview(t *testing.T) {
	b, d := newBridge(t)

	batch, err := b.Preview(context.Background(), "reembolso",
		domain.FormData{"empleado": "juan perez", "monto": "1500", "aprobado": true, "ignored": "x"},
		domain.Audit{UserID: "u-7"})
	require.NoError(t, err)

	assert.Equal(t, "sub-1", batch.SubmissionID)
	assert.Equal(t, []domain.Parameter{
		{Name: "pEmpleado", Value: "JUAN PEREZ", Direction: domain.DirectionInput},
		{Name: "pMonto", Value: "1500.00", Direction: domain.DirectionInput},
		{Name: "vAprobado", Value: "SI", Direction: domain.DirectionVariable},
		{Name: "pUsuario", Value: "u-7", Direction: domain.DirectionInput},
		{Name: "pFecha", Value: "2026-05-04T10:30:00Z", Direction: domain.DirectionInput},
	}, batch.Parameters)
	assert.Empty(t, d.subs, "preview never dispatches")
}

func TestBridge_Preview_ValidationFails(t *testing.T) {
	b, _ := newBridge(t)

	_, err := b.Preview(context.Background(), "reembolso", domain.FormData{"monto": "abc"}, domain.Audit{})
	require.Error(t, err)

	msgs := schema.FieldMessages(err)
	assert.Contains(t, msgs, "empleado")
	assert.Contains(t, msgs, "monto")
	assert.NotContains(t, msgs, "aprobado")
}

func TestBridge_UnknownMapping(t *testing.T) {
	b, _ := newBridge(t)

	_, err := b.Preview(context.Background(), "nope", domain.FormData{}, domain.Audit{})
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)

	_, err = b.Definition(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestBridge_MappingsAndDefinition(t *testing.T) {
	b, _ := newBridge(t)

	names, err := b.Mappings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"reembolso"}, names)

	def, err := b.Definition(context.Background(), "reembolso")
	require.NoError(t, err)
	assert.Equal(t, "SolicitudReembolso", def.Event)
	assert.Equal(t, domain.ModeSelected, def.Mode)
}

func TestBridge_All(t *testing.T) {
	b, _ := newBridge(t, formbridge.WithSerializer(domain.Serializer{Nulls: domain.NullEmpty}))

	params, err := b.All(domain.FormData{"b": nil, "a": 1.5})
	require.NoError(t, err)
	assert.Equal(t, []domain.Parameter{
		{Name: "a", Value: "1.5", Direction: domain.DirectionInput},
		{Name: "b", Value: "", Direction: domain.DirectionInput},
	}, params)
}

func TestBridge_Submit_RaisesEvent(t *testing.T) {
	var mapped []*domain.MappingEvent
	var dispatched []*domain.DispatchEvent
	hooks := domain.LifecycleHooks{
		OnMapped:     func(_ context.Context, e *domain.MappingEvent) { mapped = append(mapped, e) },
		OnDispatched: func(_ context.Context, e *domain.DispatchEvent) { dispatched = append(dispatched, e) },
	}
	b, d := newBridge(t, formbridge.WithLifecycleHooks(hooks))

	res, err := b.Submit(context.Background(), formbridge.SubmitRequest{
		Mapping: "reembolso",
		Data:    domain.FormData{"empleado": "ana", "monto": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "inst-new", res.Receipt.InstanceID)
	require.Len(t, d.subs, 1)
	assert.Equal(t, "SolicitudReembolso", d.subs[0].EventName)
	assert.Equal(t, domain.OperationRaiseEvent, d.subs[0].Operation())
	assert.Equal(t, res.Batch.Parameters, d.subs[0].Parameters)

	require.Len(t, mapped, 1)
	assert.Equal(t, 3, mapped[0].Visible)
	assert.Equal(t, 2, mapped[0].Hidden)
	require.Len(t, dispatched, 1)
	assert.NoError(t, dispatched[0].Err)
	assert.Equal(t, "inst-new", dispatched[0].InstanceID)
}

func TestBridge_Submit_FromDraft(t *testing.T) {
	b, d := newBridge(t)
	ctx := context.Background()

	_, err := b.Sessions().LoadOrStart(ctx, "draft-1", "reembolso")
	require.NoError(t, err)
	_, _, err = b.Sessions().Patch(ctx, "draft-1", map[string]any{"empleado": "luis", "monto": "20"})
	require.NoError(t, err)
	_, err = b.Sessions().Bind(ctx, "draft-1", "inst-9")
	require.NoError(t, err)

	res, err := b.Submit(ctx, formbridge.SubmitRequest{DraftID: "draft-1"})
	require.NoError(t, err)

	assert.Equal(t, "inst-9", res.Receipt.InstanceID)
	require.Len(t, d.subs, 1)
	assert.Equal(t, domain.OperationContinue, d.subs[0].Operation())
	assert.Equal(t, "LUIS", d.subs[0].Parameters[0].Value)

	_, err = b.Sessions().Load(ctx, "draft-1")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound, "submitted drafts are dropped")
}

func TestBridge_Submit_DispatchFailureKeepsDraft(t *testing.T) {
	b, d := newBridge(t)
	d.err = errors.New("engine down")
	ctx := context.Background()

	_, err := b.Sessions().LoadOrStart(ctx, "draft-2", "reembolso")
	require.NoError(t, err)
	_, _, err = b.Sessions().Patch(ctx, "draft-2", map[string]any{"empleado": "x", "monto": 1})
	require.NoError(t, err)

	_, err = b.Submit(ctx, formbridge.SubmitRequest{Mapping: "reembolso", DraftID: "draft-2"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "engine down")

	_, err = b.Sessions().Load(ctx, "draft-2")
	assert.NoError(t, err)
}

func TestBridge_Submit_SerializesPerInstance(t *testing.T) {
	b, d := newBridge(t)
	d.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Submit(context.Background(), formbridge.SubmitRequest{
				Mapping:    "reembolso",
				InstanceID: "inst-1",
				Data:       domain.FormData{"empleado": "a", "monto": 1},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Len(t, d.subs, 3)
}

func TestBridge_Submit_DraftDeliveredOnce(t *testing.T) {
	b, d := newBridge(t)
	d.delay = 50 * time.Millisecond
	ctx := context.Background()

	_, err := b.Sessions().LoadOrStart(ctx, "draft-x", "reembolso")
	require.NoError(t, err)
	_, _, err = b.Sessions().Patch(ctx, "draft-x", map[string]any{"empleado": "ana", "monto": "10"})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = b.Submit(ctx, formbridge.SubmitRequest{DraftID: "draft-x"})
		}()
	}
	wg.Wait()

	var ok, gone int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDraftNotFound):
			gone++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, gone)
	assert.Len(t, d.subs, 1, "the engine sees the draft once")
}

func TestBridge_Submit_MissingDraft(t *testing.T) {
	b, d := newBridge(t)

	_, err := b.Submit(context.Background(), formbridge.SubmitRequest{
		Mapping:    "reembolso",
		DraftID:    "never-saved",
		InstanceID: "inst-1",
		Data:       domain.FormData{"empleado": "a", "monto": 1},
	})
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	assert.Empty(t, d.subs)
}

func TestBridge_Submit_MappingRequired(t *testing.T) {
	b, d := newBridge(t)

	_, err := b.Submit(context.Background(), formbridge.SubmitRequest{Data: domain.FormData{"a": 1}})
	assert.ErrorIs(t, err, formbridge.ErrMappingRequired)
	assert.Empty(t, d.subs)
}

func TestBridge_Submit_NoDispatcher(t *testing.T) {
	loader, err := memory.NewLoader()
	require.NoError(t, err)
	b, err := formbridge.New("", formbridge.WithLoader(loader))
	require.NoError(t, err)

	_, err = b.Submit(context.Background(), formbridge.SubmitRequest{Mapping: "x"})
	assert.ErrorIs(t, err, formbridge.ErrNoDispatcher)
}

func TestBridge_PlanCache(t *testing.T) {
	loader, err := memory.NewLoader(domain.MappingDefinition{Name: "m", Event: "E1"})
	require.NoError(t, err)
	b, err := formbridge.New("", formbridge.WithLoader(loader))
	require.NoError(t, err)
	ctx := context.Background()

	p1, err := b.Plan(ctx, "m")
	require.NoError(t, err)
	require.NoError(t, loader.Put(domain.MappingDefinition{Name: "m", Event: "E2"}))

	p2, err := b.Plan(ctx, "m")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	b.Invalidate()
	p3, err := b.Plan(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "E2", p3.Event())
}

// slowLoader reads the definition, then holds the first GetMapping until release is closed.
type slowLoader struct {
	*memory.Loader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (l *slowLoader) GetMapping(ctx context.Context, name string) (domain.MappingDefinition, error) {
	def, err := l.Loader.GetMapping(ctx, name)
	l.once.Do(func() {
		close(l.entered)
		<-l.release
	})
	return def, err
}

func TestBridge_PlanInvalidatedDuringCompile(t *testing.T) {
	inner, err := memory.NewLoader(domain.MappingDefinition{Name: "m", Event: "E1"})
	require.NoError(t, err)
	loader := &slowLoader{Loader: inner, entered: make(chan struct{}), release: make(chan struct{})}
	b, err := formbridge.New("", formbridge.WithLoader(loader))
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan *mapping.Plan, 1)
	go func() {
		p, err := b.Plan(ctx, "m")
		assert.NoError(t, err)
		done <- p
	}()

	<-loader.entered
	require.NoError(t, inner.Put(domain.MappingDefinition{Name: "m", Event: "E2"}))
	b.Invalidate()
	close(loader.release)

	inFlight := <-done
	require.NotNil(t, inFlight)
	assert.Equal(t, "E1", inFlight.Event())

	fresh, err := b.Plan(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "E2", fresh.Event(), "a plan compiled before Invalidate must not be cached")
}

func TestBridge_LoamDirectory(t *testing.T) {
	dir := t.TempDir()
	doc := "---\nevent: AltaEmpleado\nmode: all\n---\nAlta de empleados.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alta.md"), []byte(doc), 0o644))

	b, err := formbridge.New(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), b.Name)

	batch, err := b.Preview(context.Background(), "alta", domain.FormData{"b": 2, "a": "x"}, domain.Audit{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Parameter{
		{Name: "a", Value: "x", Direction: domain.DirectionInput},
		{Name: "b", Value: "2", Direction: domain.DirectionInput},
	}, batch.Parameters)
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := formbridge.New("")
	assert.Error(t, err)
}

func TestWatch_Unsupported(t *testing.T) {
	b, _ := newBridge(t)
	_, err := b.Watch(context.Background())
	assert.Error(t, err)
}
