package formbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/formbridge/internal/logging"
	loamAdapter "github.com/aretw0/formbridge/pkg/adapters/loam"
	"github.com/aretw0/formbridge/pkg/adapters/memory"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/mapping"
	"github.com/aretw0/formbridge/pkg/ports"
	"github.com/aretw0/formbridge/pkg/session"
)

// ErrNoDispatcher is returned by Submit when the bridge has no engine client.
var ErrNoDispatcher = errors.New("no dispatcher configured")

// ErrMappingRequired is returned by Submit when neither the request nor its
// draft names a mapping.
var ErrMappingRequired = errors.New("mapping is required")

// Bridge is the high-level entry point of the formbridge library.
// It loads mapping definitions, turns form data into parameter batches and
// delivers them to the BPM engine.
type Bridge struct {
	loader     ports.MappingLoader
	compiler   *mapping.Compiler
	dispatcher ports.Dispatcher
	sessions   *session.Manager
	serializer *domain.Serializer
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
	Name       string

	mu    sync.RWMutex
	plans map[string]*mapping.Plan
	// gen counts invalidations; plans compiled under an older gen are not cached.
	gen uint64
}

// Option defines a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithLoader injects a custom MappingLoader, bypassing the default Loam initialization.
func WithLoader(l ports.MappingLoader) Option {
	return func(b *Bridge) {
		b.loader = l
	}
}

// WithDispatcher sets the engine client used by Submit.
func WithDispatcher(d ports.Dispatcher) Option {
	return func(b *Bridge) {
		b.dispatcher = d
	}
}

// WithSessions sets the draft session manager. Defaults to an in-memory store.
func WithSessions(m *session.Manager) Option {
	return func(b *Bridge) {
		b.sessions = m
	}
}

// WithCompiler sets the mapping compiler.
func WithCompiler(c *mapping.Compiler) Option {
	return func(b *Bridge) {
		b.compiler = c
	}
}

// WithSerializer sets the value serialization policy.
// It applies to All and, unless WithCompiler is given, to compiled mappings.
func WithSerializer(s domain.Serializer) Option {
	return func(b *Bridge) {
		b.serializer = &s
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bridge) {
		b.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New initializes a Bridge.
// By default, mapping definitions are read from a Loam repository at dir.
// If WithLoader is provided, dir can be empty and Loam is skipped.
func New(dir string, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		plans: make(map[string]*mapping.Plan),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.loader == nil {
		if dir == "" {
			return nil, fmt.Errorf("mapping directory is required when no custom loader is provided")
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		b.Name = filepath.Base(absPath)

		loader, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		b.loader = loader
	} else if dir != "" {
		b.Name = filepath.Base(dir)
	}

	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	if b.Name != "" {
		b.logger = b.logger.With("mappings", b.Name)
	}

	if b.serializer == nil {
		s := domain.DefaultSerializer
		b.serializer = &s
	}
	if b.compiler == nil {
		b.compiler = mapping.NewCompiler(mapping.WithSerializer(*b.serializer))
	}
	if b.sessions == nil {
		b.sessions = session.NewManager(memory.NewStore(), session.WithLogger(b.logger))
	}
	return b, nil
}

// Plan returns the compiled mapping with the given name.
// Plans are cached until the loader reports a change or Invalidate is called.
func (b *Bridge) Plan(ctx context.Context, name string) (*mapping.Plan, error) {
	b.mu.RLock()
	plan, ok := b.plans[name]
	gen := b.gen
	b.mu.RUnlock()
	if ok {
		return plan, nil
	}

	def, err := b.loader.GetMapping(ctx, name)
	if err != nil {
		return nil, err
	}
	plan, err = b.compiler.Compile(def)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.gen == gen {
		b.plans[name] = plan
	}
	b.mu.Unlock()
	return plan, nil
}

// Invalidate drops every compiled mapping. Compilations already in flight
// still return their plan but do not repopulate the cache.
func (b *Bridge) Invalidate() {
	b.mu.Lock()
	b.plans = make(map[string]*mapping.Plan)
	b.gen++
	b.mu.Unlock()
}

// Mappings lists the available mapping names.
func (b *Bridge) Mappings(ctx context.Context) ([]string, error) {
	return b.loader.ListMappings(ctx)
}

// Definition returns the declarative definition of a mapping.
func (b *Bridge) Definition(ctx context.Context, name string) (domain.MappingDefinition, error) {
	plan, err := b.Plan(ctx, name)
	if err != nil {
		return domain.MappingDefinition{}, err
	}
	return plan.Definition(), nil
}

// All sends every form field as an Input parameter, ordered by field name.
func (b *Bridge) All(data domain.FormData) ([]domain.Parameter, error) {
	return b.serializer.ToAllParameters(data)
}

// Preview validates data against the mapping schema and builds the merged
// parameter batch without contacting the engine.
func (b *Bridge) Preview(ctx context.Context, name string, data domain.FormData, audit domain.Audit) (*mapping.Batch, error) {
	plan, err := b.Plan(ctx, name)
	if err != nil {
		return nil, err
	}
	return b.build(ctx, plan, data, audit)
}

func (b *Bridge) build(ctx context.Context, plan *mapping.Plan, data domain.FormData, audit domain.Audit) (*mapping.Batch, error) {
	if err := plan.Validate(data); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", plan.Name(), err)
	}
	batch, err := plan.Build(data, audit)
	if err != nil {
		return nil, err
	}

	dups := domain.DuplicateNames(batch.Parameters)
	if len(dups) > 0 {
		b.logger.Warn("Duplicate parameter names in batch", "mapping", plan.Name(), "names", dups)
	}
	if b.hooks.OnMapped != nil {
		b.hooks.OnMapped(ctx, &domain.MappingEvent{
			EventBase: domain.EventBase{
				Timestamp:    b.now(),
				Type:         domain.EventMapped,
				SubmissionID: batch.SubmissionID,
			},
			Mapping:    plan.Name(),
			Visible:    len(batch.Visible),
			Hidden:     len(batch.Hidden),
			Duplicates: dups,
		})
	}
	return batch, nil
}

// SubmitRequest describes one form submission.
type SubmitRequest struct {
	// Mapping names the mapping definition. Defaults to the draft's mapping.
	Mapping string `json:"mapping,omitempty"`
	// Data is the form data. When nil, the data of DraftID is used.
	Data domain.FormData `json:"data,omitempty"`
	// DraftID, when set, must exist at dispatch time and is deleted after a
	// successful dispatch.
	DraftID string `json:"draft_id,omitempty"`
	// InstanceID continues an existing process instance instead of raising the event.
	// Defaults to the instance bound to the draft.
	InstanceID string       `json:"instance_id,omitempty"`
	Audit      domain.Audit `json:"audit"`
}

// SubmitResult is the outcome of a successful Submit.
type SubmitResult struct {
	Batch      *mapping.Batch    `json:"batch"`
	Submission domain.Submission `json:"submission"`
	Receipt    domain.Receipt    `json:"receipt"`
}

// Submit validates and maps the form, then delivers it to the engine.
// Deliveries to the same instance, or from the same draft, are serialized.
func (b *Bridge) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if b.dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	if req.DraftID != "" && (req.Data == nil || req.Mapping == "" || req.InstanceID == "") {
		draft, err := b.sessions.Load(ctx, req.DraftID)
		if err != nil {
			return nil, err
		}
		if req.Data == nil {
			req.Data = draft.Data
		}
		if req.Mapping == "" {
			req.Mapping = draft.Mapping
		}
		if req.InstanceID == "" {
			req.InstanceID = draft.InstanceID
		}
	}
	if req.Mapping == "" {
		return nil, ErrMappingRequired
	}

	plan, err := b.Plan(ctx, req.Mapping)
	if err != nil {
		return nil, err
	}
	batch, err := b.build(ctx, plan, req.Data, req.Audit)
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{
		Batch: batch,
		Submission: domain.Submission{
			ID:         batch.SubmissionID,
			Mapping:    plan.Name(),
			EventName:  plan.Event(),
			InstanceID: req.InstanceID,
			Parameters: batch.Parameters,
		},
	}

	err = b.sessions.WithLock(ctx, submitLockKey(req, batch.SubmissionID), func(ctx context.Context) error {
		// A concurrent submit of the same draft may have delivered and dropped it.
		if req.DraftID != "" {
			if _, err := b.sessions.Load(ctx, req.DraftID); err != nil {
				return fmt.Errorf("draft %s: %w", req.DraftID, err)
			}
		}

		receipt, err := b.dispatch(ctx, res.Submission)
		if err != nil {
			return err
		}
		res.Receipt = receipt

		if req.DraftID != "" {
			if err := b.sessions.Delete(ctx, req.DraftID); err != nil && !errors.Is(err, domain.ErrDraftNotFound) {
				b.logger.Warn("Failed to delete submitted draft", "draft_id", req.DraftID, "err", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Bridge) dispatch(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	start := b.now()
	receipt, err := ports.Dispatch(ctx, b.dispatcher, sub)

	if b.hooks.OnDispatched != nil {
		b.hooks.OnDispatched(ctx, &domain.DispatchEvent{
			EventBase: domain.EventBase{
				Timestamp:    b.now(),
				Type:         domain.EventDispatched,
				SubmissionID: sub.ID,
			},
			Mapping:    sub.Mapping,
			Operation:  sub.Operation(),
			InstanceID: receipt.InstanceID,
			Duration:   b.now().Sub(start),
			Err:        err,
		})
	}
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("dispatch %s: %w", sub.ID, err)
	}
	b.logger.Info("Submission dispatched", "mapping", sub.Mapping, "submission_id", sub.ID, "instance_id", receipt.InstanceID)
	return receipt, nil
}

func submitLockKey(req SubmitRequest, submissionID string) string {
	switch {
	case req.InstanceID != "":
		return "instance:" + req.InstanceID
	case req.DraftID != "":
		return "draft:" + req.DraftID
	default:
		return "submission:" + submissionID
	}
}

// Sessions returns the draft session manager.
func (b *Bridge) Sessions() *session.Manager {
	return b.sessions
}

// Loader returns the underlying MappingLoader used by the bridge.
func (b *Bridge) Loader() ports.MappingLoader {
	return b.loader
}

// Watch invalidates compiled mappings whenever the loader reports a change,
// and forwards each change on the returned channel.
// Returns error if the loader does not support watching.
func (b *Bridge) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, ok := b.loader.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("current loader does not support watching")
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range changes {
			b.Invalidate()
			b.logger.Debug("Mapping definitions changed")
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}
