package chatflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	loamAdapter "github.com/aretw0/chatflow/pkg/adapters/loam"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/aretw0/loam"
)

// Version is set at build time with -ldflags "-X github.com/aretw0/chatflow.Version=...".
var Version = "dev"

// ErrNoSender is returned by New when no MessageSender was configured.
var ErrNoSender = errors.New("a message sender is required")

// ErrNotSupported is returned when the configured flow provider lacks an
// optional capability such as listing or watching.
var ErrNotSupported = errors.New("not supported by the flow provider")

// Engine is the high-level entry point for the chatflow library.
// It wires a flow provider, a session store and a message sender into the
// runtime and exposes the single event entrypoint.
type Engine struct {
	runtime  *runtime.Engine
	flows    ports.FlowProvider
	store    ports.SessionStore
	sessions *session.Manager

	flowsDir    string
	sender      ports.MessageSender
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	runtimeOpts []runtime.EngineOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlowsDir loads flows from a Loam repository at dir.
// Ignored when WithFlowProvider is also given.
func WithFlowsDir(dir string) Option {
	return func(e *Engine) {
		e.flowsDir = dir
	}
}

// WithFlowProvider injects a custom FlowProvider, bypassing Loam.
func WithFlowProvider(p ports.FlowProvider) Option {
	return func(e *Engine) {
		e.flows = p
	}
}

// WithSessionStore sets the session store (default: in-memory).
func WithSessionStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed per-contact locking across replicas.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithSender sets the delivery collaborator.
func WithSender(s ports.MessageSender) Option {
	return func(e *Engine) {
		e.sender = s
	}
}

// WithMessageLog records an audit entry for every sent message.
func WithMessageLog(l ports.MessageLogger) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMessageLogger(l))
	}
}

// WithNotifier publishes sent messages and session changes in real time.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNotifier(n))
	}
}

// WithCredentialResolver resolves provider credentials for events that carry none.
func WithCredentialResolver(r ports.CredentialResolver) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithCredentialResolver(r))
	}
}

// WithConditionEvaluator replaces the HCL condition evaluator.
func WithConditionEvaluator(ev runtime.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithConditionEvaluator(ev))
	}
}

// WithTexts overrides the engine's own user-facing messages.
func WithTexts(t runtime.Texts) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithTexts(t))
	}
}

// WithMaxSteps bounds node executions per inbound event.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a chatflow Engine.
// Flows come from WithFlowProvider or, failing that, a Loam repository at
// WithFlowsDir. A sender is mandatory; the session store defaults to memory.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.sender == nil {
		return nil, ErrNoSender
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.flows == nil {
		if eng.flowsDir == "" {
			return nil, fmt.Errorf("a flows directory is required when no custom flow provider is given")
		}
		provider, err := OpenFlows(eng.flowsDir)
		if err != nil {
			return nil, err
		}
		eng.flows = provider
		eng.logger = eng.logger.With("flows", filepath.Base(eng.flowsDir))
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	managerOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(eng.locker), session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(eng.store, managerOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(eng.flows, eng.sessions, eng.sender, runtimeOpts...)

	return eng, nil
}

// OpenFlows initializes a read-only, strict Loam flow repository at dir.
// Strict mode keeps numbers in node data the same type across JSON and
// YAML documents.
func OpenFlows(dir string) (*loamAdapter.Provider, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return loamAdapter.New(loam.NewTypedRepository[loamAdapter.FlowMetadata](repo)), nil
}

// HandleIncomingEvent runs one inbound event through the engine.
func (e *Engine) HandleIncomingEvent(ctx context.Context, ev domain.InboundEvent) (domain.Result, error) {
	return e.runtime.HandleIncomingEvent(ctx, ev)
}

// Session returns a session by id, whatever its status.
func (e *Engine) Session(ctx context.Context, id string) (*domain.Session, error) {
	return e.sessions.Get(ctx, id)
}

// Sessions returns the underlying SessionStore.
func (e *Engine) Sessions() ports.SessionStore {
	return e.store
}

// Flows returns the underlying FlowProvider.
func (e *Engine) Flows() ports.FlowProvider {
	return e.flows
}

// ListFlows enumerates flows when the provider supports it.
func (e *Engine) ListFlows(ctx context.Context) ([]domain.Flow, error) {
	if l, ok := e.flows.(ports.FlowLister); ok {
		return l.ListFlows(ctx)
	}
	return nil, fmt.Errorf("list flows: %w", ErrNotSupported)
}

// Watch returns a channel that signals when the underlying flows change.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := e.flows.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("watch flows: %w", ErrNotSupported)
}
