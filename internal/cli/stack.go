package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/cache"
	"github.com/aretw0/chatflow/pkg/adapters/cloudapi"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// Stack is every collaborator the CLI commands need, built from Config.
type Stack struct {
	Engine   *chatflow.Engine
	Flows    *cache.Flows
	Sessions ports.SessionStore
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// StackOption adjusts how a Stack is built.
type StackOption func(*stackOptions)

type stackOptions struct {
	sender    ports.MessageSender
	notifiers []ports.Notifier
	hooks     domain.LifecycleHooks
}

// WithSender replaces the configured delivery collaborator, e.g. for the
// local chat simulator.
func WithSender(s ports.MessageSender) StackOption {
	return func(o *stackOptions) {
		o.sender = s
	}
}

// WithNotifier adds a notification sink next to the Redis one.
func WithNotifier(n ports.Notifier) StackOption {
	return func(o *stackOptions) {
		o.notifiers = append(o.notifiers, n)
	}
}

// WithHooks adds lifecycle hooks on top of the logging and metrics ones.
func WithHooks(h domain.LifecycleHooks) StackOption {
	return func(o *stackOptions) {
		o.hooks = o.hooks.Merge(h)
	}
}

// BuildStack wires flows, sessions, delivery and observability from cfg.
func BuildStack(cfg config.Config, logger *slog.Logger, opts ...StackOption) (*Stack, error) {
	var o stackOptions
	for _, opt := range opts {
		opt(&o)
	}

	st := &Stack{Logger: logger, Registry: prometheus.NewRegistry()}

	flows, err := chatflow.OpenFlows(cfg.FlowsDir)
	if err != nil {
		return nil, err
	}
	st.Flows = cache.NewFlows(flows, cfg.FlowCacheTTL)

	metrics, err := observability.NewMetrics(st.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	engineOpts := []chatflow.Option{
		chatflow.WithFlowProvider(st.Flows),
		chatflow.WithLogger(logger),
		chatflow.WithLifecycleHooks(observability.LoggingHooks(logger)),
		chatflow.WithLifecycleHooks(metrics.Hooks()),
		chatflow.WithLifecycleHooks(o.hooks),
		chatflow.WithMaxSteps(cfg.MaxSteps),
		chatflow.WithTexts(runtime.Texts{
			NotUnderstood: cfg.NotUnderstoodText,
			Fallback:      cfg.FallbackText,
			Handoff:       cfg.HandoffText,
			MainMenu:      cfg.MainMenuText,
			Confirmation:  cfg.ConfirmationText,
			TraversalGap:  cfg.TraversalGapText,
		}),
	}

	var store ports.SessionStore
	notifiers := o.notifiers
	if cfg.RedisAddr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st.closers = append(st.closers, client.Close)

		store = redisAdapter.NewFromClient(client,
			redisAdapter.WithPrefix(cfg.RedisPrefix),
			redisAdapter.WithTTL(cfg.SessionTTL),
		)
		engineOpts = append(engineOpts,
			chatflow.WithLocker(redisAdapter.NewLocker(client, cfg.RedisPrefix), cfg.LockTTL),
			chatflow.WithMessageLog(redisAdapter.NewMessageLog(client, cfg.RedisPrefix, 0)),
			chatflow.WithCredentialResolver(redisAdapter.NewCredentialResolver(client, cfg.RedisPrefix)),
		)
		notifiers = append(notifiers, redisAdapter.NewNotifier(client, cfg.RedisPrefix))
		logger.Info("Using redis session store", "address", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	} else {
		store = memory.NewStore()
		engineOpts = append(engineOpts, chatflow.WithMessageLog(memory.NewMessageLog()))
		logger.Info("Using in-memory session store")
	}

	if cfg.EncryptionKey != "" {
		active, fallback, err := cfg.EncryptionKeys()
		if err != nil {
			st.Close()
			return nil, err
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	st.Sessions = store
	engineOpts = append(engineOpts, chatflow.WithSessionStore(store))

	if len(notifiers) > 0 {
		var n ports.Notifier = FanOut(logger, notifiers...)
		if len(cfg.PIIFields) > 0 {
			n = middleware.NewPIINotifier(cfg.PIIFields)(n)
		}
		engineOpts = append(engineOpts, chatflow.WithNotifier(n))
	}

	sender := o.sender
	if sender == nil {
		sender = newSender(cfg, logger)
	}
	engineOpts = append(engineOpts, chatflow.WithSender(sender))

	st.Engine, err = chatflow.New(engineOpts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return st, nil
}

// Close releases connections held by the stack.
func (s *Stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func newSender(cfg config.Config, logger *slog.Logger) ports.MessageSender {
	if cfg.DryRunDelivery {
		logger.Warn("Dry run: outbound messages are logged, not delivered")
		return &dryRunSender{Sender: memory.NewSender(), logger: logger}
	}
	opts := []cloudapi.Option{cloudapi.WithLogger(logger), cloudapi.WithVersion(cfg.APIVersion)}
	if cfg.APIBase != "" {
		opts = append(opts, cloudapi.WithAPIBase(cfg.APIBase))
	}
	return &defaultCredentials{inner: cloudapi.New(opts...), token: cfg.AccessToken}
}

// defaultCredentials fills in the configured access token for events that
// arrive without credentials and could not be resolved.
type defaultCredentials struct {
	inner ports.MessageSender
	token string
}

func (d *defaultCredentials) Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error) {
	if creds.AccessToken == "" {
		creds.AccessToken = d.token
	}
	return d.inner.Send(ctx, msg, creds)
}

type dryRunSender struct {
	*memory.Sender
	logger *slog.Logger
}

func (d *dryRunSender) Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error) {
	res, err := d.Sender.Send(ctx, msg, creds)
	d.logger.Info("Dry run delivery", "to", msg.To, "type", msg.Type, "message_id", res.ProviderMessageID)
	return res, err
}
