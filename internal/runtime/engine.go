package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/condition"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/google/uuid"
)

// DefaultMaxSteps bounds the node executions triggered by one inbound event.
const DefaultMaxSteps = 32

// ConditionEvaluator decides conditional nodes.
type ConditionEvaluator interface {
	Evaluate(expr string, c condition.Context) (bool, error)
}

// Texts are the engine's own user-facing messages.
type Texts struct {
	// NotUnderstood is sent when no flow and no fallback flow matches.
	NotUnderstood string
	// Fallback is sent by fallback nodes that declare no message.
	Fallback string
	// Handoff is sent by handoff actions that declare no message.
	Handoff string
	// MainMenu is sent by return-to-main-menu actions that declare no message.
	MainMenu string
	// Confirmation is sent by collectInput nodes that declare no confirmation
	// once every field is answered.
	Confirmation string
	// TraversalGap is sent best-effort when a flow routes into a missing
	// edge or node. Empty means the session ends silently.
	TraversalGap string
}

// DefaultTexts returns the built-in English texts.
func DefaultTexts() Texts {
	return Texts{
		NotUnderstood: "Sorry, I didn't understand that.",
		Fallback:      "Sorry, I didn't understand that.",
		Handoff:       "Connecting you to an agent.",
		MainMenu:      "Returning to the main menu.",
		Confirmation:  "Thanks, got it.",
	}
}

// Engine drives flows for inbound events.
// It is safe for concurrent use; events of one contact are serialized
// through the session manager.
type Engine struct {
	flows       ports.FlowProvider
	sessions    *session.Manager
	sender      ports.MessageSender
	messages    ports.MessageLogger
	notifier    ports.Notifier
	credentials ports.CredentialResolver
	evaluator   ConditionEvaluator
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	texts       Texts
	maxSteps    int
	newID       func() string
	now         func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMessageLogger records every successful send.
func WithMessageLogger(l ports.MessageLogger) EngineOption {
	return func(e *Engine) {
		e.messages = l
	}
}

// WithNotifier publishes sent messages and session changes.
func WithNotifier(n ports.Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithCredentialResolver resolves credentials for events that carry none.
func WithCredentialResolver(r ports.CredentialResolver) EngineOption {
	return func(e *Engine) {
		e.credentials = r
	}
}

// WithConditionEvaluator replaces the default condition evaluator.
func WithConditionEvaluator(ev ConditionEvaluator) EngineOption {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithTexts overrides the engine's messages. Empty fields keep their default,
// except TraversalGap which is empty by default.
func WithTexts(t Texts) EngineOption {
	return func(e *Engine) {
		def := DefaultTexts()
		e.texts = Texts{
			NotUnderstood: firstNonEmpty(t.NotUnderstood, def.NotUnderstood),
			Fallback:      firstNonEmpty(t.Fallback, def.Fallback),
			Handoff:       firstNonEmpty(t.Handoff, def.Handoff),
			MainMenu:      firstNonEmpty(t.MainMenu, def.MainMenu),
			Confirmation:  firstNonEmpty(t.Confirmation, def.Confirmation),
			TraversalGap:  t.TraversalGap,
		}
	}
}

// WithMaxSteps bounds node executions per event.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithIDGenerator replaces uuid-based ids, mostly for tests.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newID = fn
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = fn
	}
}

// NewEngine creates a new engine with dependencies.
func NewEngine(flows ports.FlowProvider, sessions *session.Manager, sender ports.MessageSender, opts ...EngineOption) *Engine {
	e := &Engine{
		flows:     flows,
		sessions:  sessions,
		sender:    sender,
		evaluator: condition.New(),
		logger:    logging.NewNop(),
		texts:     DefaultTexts(),
		maxSteps:  DefaultMaxSteps,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleIncomingEvent is the single entrypoint of the engine. It is called
// once per normalized inbound provider event, after the owning project and
// contact have been resolved.
//
// Routing or delivery problems never surface as errors: they end the session
// and are reported through Result. A non-nil error means an unexpected
// failure; the affected session has been ended when one existed.
func (e *Engine) HandleIncomingEvent(ctx context.Context, ev domain.InboundEvent) (domain.Result, error) {
	if ev.ContactID == "" || ev.PhoneNumberID == "" || ev.ProjectID == "" {
		return domain.Result{}, fmt.Errorf("invalid event: contactId, phoneNumberId and projectId are required")
	}

	creds, err := e.resolveCredentials(ctx, ev)
	if err != nil {
		return domain.Result{}, err
	}

	var res domain.Result
	err = e.sessions.WithContactLock(ctx, ev.Key(), func(ctx context.Context) error {
		var herr error
		res, herr = e.handleSafely(ctx, ev, creds)
		return herr
	})
	return res, err
}

// handleSafely turns a panic anywhere in handle into ErrUnhandled. Panics
// inside a node chain are already caught by drive; this covers lookups and
// store calls made before it.
func (e *Engine) handleSafely(ctx context.Context, ev domain.InboundEvent, creds domain.Credentials) (res domain.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = e.failAfterPanic(ctx, ev, creds, fmt.Errorf("panic: %v", p))
		}
	}()
	return e.handle(ctx, ev, creds)
}

// failAfterPanic ends the live session the contact was left with, if any.
func (e *Engine) failAfterPanic(ctx context.Context, ev domain.InboundEvent, creds domain.Credentials, cause error) (res domain.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("Failed to end session after panic", "contact_id", ev.ContactID, "project_id", ev.ProjectID, "err", p)
			res, err = domain.Result{}, fmt.Errorf("%w: %v", domain.ErrUnhandled, cause)
		}
	}()

	r := &run{event: ev, creds: creds}
	if s, findErr := e.sessions.FindActive(ctx, ev.Key()); findErr == nil && s != nil {
		r.session = s
	}
	return e.fail(ctx, r, cause)
}

func (e *Engine) handle(ctx context.Context, ev domain.InboundEvent, creds domain.Credentials) (domain.Result, error) {
	existing, err := e.sessions.FindActive(ctx, ev.Key())
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrUnhandled, err)
	}

	if existing != nil {
		switch existing.Status {
		case domain.StatusAwaitingInput:
			return e.resume(ctx, &run{event: ev, creds: creds, session: existing})
		case domain.StatusActive:
			// A previous chain died mid-flight. Release the contact and start over.
			e.logger.Warn("Ending stale active session",
				"session_id", existing.ID,
				"flow_id", existing.CurrentFlowID,
				"node_id", existing.CurrentNodeID,
			)
			r := &run{event: ev, creds: creds, session: existing}
			if err := e.end(ctx, r, domain.StatusEnded, domain.EndReasonStale); err != nil {
				return domain.Result{Session: existing}, err
			}
		}
	}

	return e.trigger(ctx, ev, creds)
}

func (e *Engine) resolveCredentials(ctx context.Context, ev domain.InboundEvent) (domain.Credentials, error) {
	creds := ev.Credentials
	if creds.IsZero() && e.credentials != nil {
		var err error
		creds, err = e.credentials.Resolve(ctx, ev.TenantID, ev.ProjectID, ev.PhoneNumberID)
		if errors.Is(err, domain.ErrCredentialsNotFound) {
			e.logger.Debug("No stored credentials, sending with defaults", "phone_number_id", ev.PhoneNumberID)
			creds, err = domain.Credentials{}, nil
		}
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("failed to resolve credentials for phone number %s: %w", ev.PhoneNumberID, err)
		}
	}
	if creds.PhoneNumberID == "" {
		creds.PhoneNumberID = ev.PhoneNumberID
	}
	return creds, nil
}

// run is the state of one inbound event's chain of node executions.
type run struct {
	event   domain.InboundEvent
	creds   domain.Credentials
	flow    *domain.Flow
	session *domain.Session
	steps   int
}

func (r *run) logAttrs() []any {
	attrs := []any{"contact_id", r.event.ContactID, "project_id", r.event.ProjectID}
	if r.session != nil {
		attrs = append(attrs, "session_id", r.session.ID)
	}
	if r.flow != nil {
		attrs = append(attrs, "flow_id", r.flow.ID)
	}
	return attrs
}

// persist saves the session, publishing the change to subscribers.
func (e *Engine) persist(ctx context.Context, r *run, before *domain.Session) error {
	r.session.LastActivityAt = e.now()
	if err := e.sessions.Store().Save(ctx, r.session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", r.session.ID, err)
	}
	if e.notifier != nil {
		if diff := domain.Diff(before, r.session); diff != nil {
			note := domain.Notification{
				TenantID:  r.session.TenantID,
				ProjectID: r.session.ProjectID,
				Kind:      domain.NotificationSessionUpdated,
				Diff:      diff,
			}
			if err := e.notifier.Publish(ctx, note); err != nil {
				e.logger.Warn("Failed to publish session update", append(r.logAttrs(), "err", err)...)
			}
		}
	}
	return nil
}

// end moves the session to a terminal status and persists it.
func (e *Engine) end(ctx context.Context, r *run, status domain.SessionStatus, reason string) error {
	before := r.session.Clone()
	r.session.Status = status
	r.session.EndReason = reason
	r.session.AwaitingFieldID = ""
	if err := e.persist(ctx, r, before); err != nil {
		return err
	}
	if e.hooks.OnSessionEnd != nil {
		e.hooks.OnSessionEnd(ctx, &domain.SessionEvent{
			EventBase: e.eventBase(domain.EventSessionEnd, r),
			Status:    status,
			Reason:    reason,
		})
	}
	e.logger.Debug("Session ended", append(r.logAttrs(), "status", status, "reason", reason)...)
	return nil
}

func (e *Engine) eventBase(t domain.EventType, r *run) domain.EventBase {
	b := domain.EventBase{Timestamp: e.now(), Type: t}
	if r.session != nil {
		b.SessionID = r.session.ID
		b.FlowID = r.session.CurrentFlowID
	}
	return b
}

// fail ends the session after an unexpected error and returns the error
// wrapped in domain.ErrUnhandled.
func (e *Engine) fail(ctx context.Context, r *run, cause error) (domain.Result, error) {
	err := cause
	if !errors.Is(err, domain.ErrUnhandled) {
		err = fmt.Errorf("%w: %v", domain.ErrUnhandled, cause)
	}
	e.logger.Error("Flow execution failed", append(r.logAttrs(), "err", cause)...)
	if r.session == nil {
		return domain.Result{}, err
	}
	if !r.session.Status.Terminal() {
		if endErr := e.end(ctx, r, domain.StatusEnded, domain.EndReasonUnhandled); endErr != nil {
			e.logger.Error("Failed to end session after error", append(r.logAttrs(), "err", endErr)...)
		}
	}
	return domain.Result{Session: r.session.Clone()}, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
