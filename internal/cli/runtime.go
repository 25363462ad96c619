package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/internal/config"
	"github.com/aretw0/formbridge/internal/logging"
	httpAdapter "github.com/aretw0/formbridge/pkg/adapters/http"
	"github.com/aretw0/formbridge/pkg/adapters/memory"
	"github.com/aretw0/formbridge/pkg/adapters/process"
	redisAdapter "github.com/aretw0/formbridge/pkg/adapters/redis"
	"github.com/aretw0/formbridge/pkg/client"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/observability"
	"github.com/aretw0/formbridge/pkg/persistence/middleware"
	"github.com/aretw0/formbridge/pkg/ports"
	"github.com/aretw0/formbridge/pkg/session"
)

// Runtime is a fully wired bridge together with the pieces the commands expose.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Bridge   *formbridge.Bridge
	Streams  *httpAdapter.StreamManager
	Registry *prometheus.Registry
	Store    ports.DraftStore

	closers []func() error
}

// RuntimeOption adjusts how NewRuntime wires the bridge.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	loader ports.MappingLoader
	store  ports.DraftStore
}

// WithMappingLoader replaces the Loam repository at cfg.Dir.
func WithMappingLoader(l ports.MappingLoader) RuntimeOption {
	return func(o *runtimeOptions) { o.loader = l }
}

// WithDraftStore replaces the configured store backend.
// The PII and encryption middleware are still applied on top.
func WithDraftStore(s ports.DraftStore) RuntimeOption {
	return func(o *runtimeOptions) { o.store = s }
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(os.Stderr, level, cfg.Log.Format), nil
}

// NewRuntime wires the store, session manager, engine client, metrics and
// bridge described by cfg. Call Close when done.
func NewRuntime(cfg config.Config, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Streams:  httpAdapter.NewStreamManager(logger),
		Registry: prometheus.NewRegistry(),
	}

	store, locker, err := rt.openStore(o.store)
	if err != nil {
		return nil, err
	}
	rt.Store = store

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.Store.LockTTL),
		session.WithOnChange(rt.Streams.Publish),
	}
	if locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(locker))
	}

	metrics, err := observability.NewMetrics(rt.Registry)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	bridgeOpts := []formbridge.Option{
		formbridge.WithLogger(logger),
		formbridge.WithSerializer(domain.Serializer{Nulls: cfg.NullPolicy()}),
		formbridge.WithSessions(session.NewManager(store, sessionOpts...)),
		formbridge.WithLifecycleHooks(observability.Compose(
			observability.LoggingHooks(logger),
			metrics.Hooks(),
		)),
	}
	if o.loader != nil {
		bridgeOpts = append(bridgeOpts, formbridge.WithLoader(o.loader))
	}

	switch {
	case cfg.Process.Command != "":
		d, err := process.New(cfg.Dispatcher(), process.WithLogger(logger))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("process dispatcher: %w", err)
		}
		bridgeOpts = append(bridgeOpts, formbridge.WithDispatcher(d))
	case cfg.Dashboard.BaseURL != "":
		c, err := client.New(cfg.Client(), client.WithLogger(logger))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("dashboard client: %w", err)
		}
		bridgeOpts = append(bridgeOpts, formbridge.WithDispatcher(c))
	default:
		logger.Warn("no dashboard or process configured, submissions are disabled")
	}

	b, err := formbridge.New(cfg.Dir, bridgeOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing bridge: %w", err)
	}
	rt.Bridge = b
	return rt, nil
}

// openStore selects the backend and wraps it with the configured middleware.
func (rt *Runtime) openStore(base ports.DraftStore) (ports.DraftStore, ports.DistributedLocker, error) {
	cfg := rt.Config.Store
	var locker ports.DistributedLocker

	if base == nil {
		switch cfg.Backend {
		case config.StoreRedis:
			rs, err := redisAdapter.New(cfg.RedisURL,
				redisAdapter.WithPrefix(cfg.Prefix),
				redisAdapter.WithTTL(cfg.TTL),
			)
			if err != nil {
				return nil, nil, err
			}
			rt.closers = append(rt.closers, rs.Client().Close)
			locker = redisAdapter.NewLocker(rs.Client(), cfg.Prefix)
			base = rs
		default:
			base = memory.NewStore()
		}
	}

	mws, err := storeMiddleware(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	return middleware.Chain(base, mws...), locker, nil
}

// storeMiddleware returns masking before encryption so masked values are what gets sealed.
func storeMiddleware(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskFields) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.MaskFields)
		if err != nil {
			return nil, fmt.Errorf("mask fields: %w", err)
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key %d: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

// Handler returns the HTTP API bound to this runtime.
func (rt *Runtime) Handler() http.Handler {
	return httpAdapter.NewHandler(rt.Bridge,
		httpAdapter.WithStreams(rt.Streams),
		httpAdapter.WithLogger(rt.Logger),
		httpAdapter.WithGatherer(rt.Registry),
	)
}

// Close releases backend connections.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Watch invalidates cached plans whenever the mapping directory changes.
// It returns when ctx is done or the loader cannot be watched.
func (rt *Runtime) Watch(ctx context.Context) {
	ch, err := rt.Bridge.Watch(ctx)
	if err != nil {
		rt.Logger.Debug("mapping watch unavailable", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			rt.Logger.Info("mappings changed, plans reloaded")
		}
	}
}
