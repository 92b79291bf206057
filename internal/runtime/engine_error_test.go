package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_TriggerGap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, runtime.WithTexts(runtime.Texts{NotUnderstood: "Say hi to start"}))

	res, err := h.engine.HandleIncomingEvent(ctx, event("blah"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Session)
	assert.Equal(t, []string{"Say hi to start"}, h.texts())

	ids, _ := h.store.List(ctx)
	assert.Empty(t, ids, "no session is created")
	assert.Empty(t, h.messages.Records(""))
}

func TestEngine_TriggerGapSendFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.sender.FailWith = func(domain.OutboundMessage) error { return errors.New("provider down") }

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("blah"))
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestEngine_FallbackFlow(t *testing.T) {
	h := newHarness(t, []domain.Flow{
		flow("fallback", domain.FallbackTrigger, []domain.Node{
			text("intro", "never first"),
			node("fb", domain.KindFallback, nil),
		}),
	})

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("what?"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Sorry, I didn't understand that."}, h.texts())
	assert.Equal(t, domain.EndReasonFallback, res.Session.EndReason)
	assert.Equal(t, "fallback", res.Session.CurrentFlowID)
}

func TestEngine_InactiveFlowIsNotTriggered(t *testing.T) {
	f := flow("welcome", "hi", []domain.Node{start(), text("w", "Welcome")}, edge("start", "a", "w"))
	f.Status = domain.FlowInactive
	h := newHarness(t, []domain.Flow{f})

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("hi"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"Sorry, I didn't understand that."}, h.texts())
}

func TestEngine_SendFailureEndsSession(t *testing.T) {
	ctx := context.Background()
	var failed []string
	h := newHarness(t, []domain.Flow{
		flow("welcome", "hi", []domain.Node{start(), text("w", "Welcome"), text("w2", "More")},
			edge("start", "a", "w"), edge("w", "a", "w2")),
	}, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnSendFailed: func(ctx context.Context, e *domain.MessageEvent) {
			failed = append(failed, e.NodeID)
			assert.ErrorIs(t, e.Err, domain.ErrSendFailed)
		},
	}))
	h.sender.FailWith = func(domain.OutboundMessage) error { return errors.New("401 unauthorized") }

	res, err := h.engine.HandleIncomingEvent(ctx, event("hi"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.StatusEnded, res.Session.Status)
	assert.Equal(t, domain.EndReasonSendFailed, res.Session.EndReason)
	assert.Equal(t, "w", res.Session.CurrentNodeID)
	assert.Equal(t, []string{"w"}, failed)
	assert.Empty(t, h.messages.Records(""), "failed sends are never logged")
}

func TestEngine_Actions(t *testing.T) {
	ctx := context.Background()

	actionFlow := func(actionType, message string) domain.Flow {
		return flow("support", "help", []domain.Node{
			start(),
			node("act", domain.KindAction, map[string]any{"actionType": actionType, "message": message}),
		}, edge("start", "a", "act"))
	}

	t.Run("Handoff To Agent", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{actionFlow(domain.ActionHandoffToAgent, "An agent will reply soon")})

		res, err := h.engine.HandleIncomingEvent(ctx, event("help"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusLiveAgentHandoff, res.Session.Status)
		assert.Equal(t, []string{"An agent will reply soon"}, h.texts())

		// The contact is released; the next keyword starts a new session.
		next, err := h.engine.HandleIncomingEvent(ctx, event("help"))
		require.NoError(t, err)
		assert.NotEqual(t, res.Session.ID, next.Session.ID)
	})

	t.Run("Return To Main Menu", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{actionFlow(domain.ActionReturnToMainMenu, "")})

		res, err := h.engine.HandleIncomingEvent(ctx, event("help"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusEnded, res.Session.Status)
		assert.Equal(t, domain.EndReasonMainMenu, res.Session.EndReason)
		assert.Equal(t, []string{"Returning to the main menu."}, h.texts())
	})

	t.Run("Unknown Action Is A No-Op Terminal", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{actionFlow("launch_rocket", "boom")})

		res, err := h.engine.HandleIncomingEvent(ctx, event("help"))
		require.NoError(t, err)
		assert.Empty(t, h.sender.Sent(), "no side effect")
		assert.Equal(t, domain.StatusActive, res.Session.Status, "no transition")
		assert.Equal(t, "act", res.Session.CurrentNodeID)

		// The next event finds a stale active session and starts over.
		next, err := h.engine.HandleIncomingEvent(ctx, event("help"))
		require.NoError(t, err)
		assert.NotEqual(t, res.Session.ID, next.Session.ID)

		old, err := h.store.Get(ctx, res.Session.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusEnded, old.Status)
		assert.Equal(t, domain.EndReasonStale, old.EndReason)
	})
}

// racingStore simulates a replica that wins the create race.
type racingStore struct {
	*memory.Store
	winner *domain.Session
}

func (s *racingStore) Create(ctx context.Context, session *domain.Session) error {
	if s.winner != nil {
		if err := s.Store.Create(ctx, s.winner); err != nil {
			return err
		}
		s.winner = nil
	}
	return s.Store.Create(ctx, session)
}

func TestEngine_DuplicateCreateRace(t *testing.T) {
	ctx := context.Background()
	ev := event("hi")
	winner := domain.NewSession("winner", ev.Key(), ev.TenantID, "welcome", "w", testClock)
	winner.Park(domain.ResumeContext{NodeID: "w"})

	store := &racingStore{Store: memory.NewStore(), winner: winner}
	h := newHarnessWithStore(t, store, []domain.Flow{
		flow("welcome", "hi", []domain.Node{start(), text("w", "Welcome")}, edge("start", "a", "w")),
	})

	res, err := h.engine.HandleIncomingEvent(ctx, ev)
	require.NoError(t, err, "the conflict is not surfaced")
	assert.True(t, res.Success)
	require.NotNil(t, res.Session)
	assert.Equal(t, "winner", res.Session.ID)
	assert.Empty(t, h.sender.Sent(), "the losing event does not execute")
}

func TestEngine_LegacyKinds(t *testing.T) {
	h := newHarness(t, []domain.Flow{
		flow("legacy", "old", []domain.Node{
			start(),
			node("t", domain.KindLegacyText, map[string]any{"text": "Legacy hello"}),
			node("tpl", domain.KindLegacyTemplate, map[string]any{"templateName": "promo"}),
			text("end", "Done"),
		},
			edge("start", "a", "t"),
			edge("t", "reply", "tpl"),
			edge("tpl", "", "end"),
		),
	})

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("old"))
	require.NoError(t, err)

	sent := h.sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, domain.MessageTemplate, sent[1].Type)
	assert.Equal(t, []string{"Legacy hello", "Done"}, h.texts())
	assert.Equal(t, domain.EndReasonCompleted, res.Session.EndReason)
}

func TestEngine_StrictKindsIgnoreLegacyHandles(t *testing.T) {
	h := newHarness(t, []domain.Flow{
		flow("strict", "go", []domain.Node{start(), text("t", "One"), text("t2", "Two")},
			edge("start", "a", "t"), edge("t", "reply", "t2")),
	})

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, h.texts())
	assert.Equal(t, domain.EndReasonCompleted, res.Session.EndReason)
}

func TestEngine_StepLimit(t *testing.T) {
	h := newHarness(t, []domain.Flow{
		flow("loop", "loop", []domain.Node{start(), text("ping", "ping"), text("pong", "pong")},
			edge("start", "a", "ping"), edge("ping", "a", "pong"), edge("pong", "a", "ping")),
	}, runtime.WithMaxSteps(5))

	res, err := h.engine.HandleIncomingEvent(context.Background(), event("loop"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, res.Session.Status)
	assert.Equal(t, domain.EndReasonStepLimit, res.Session.EndReason)
	assert.Len(t, h.sender.Sent(), 4, "start plus four sends")
}

func TestEngine_TraversalGaps(t *testing.T) {
	ctx := context.Background()

	t.Run("Start Without Edge", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{flow("f", "hi", []domain.Node{start(), text("w", "Welcome")})})

		res, err := h.engine.HandleIncomingEvent(ctx, event("hi"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, domain.EndReasonTraversal, res.Session.EndReason)
		assert.Empty(t, h.sender.Sent(), "gaps end silently by default")
	})

	t.Run("Dangling Edge With Gap Message", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{
			flow("f", "hi", []domain.Node{start(), text("w", "Welcome")},
				edge("start", "a", "w"), edge("w", "a", "ghost")),
		}, runtime.WithTexts(runtime.Texts{TraversalGap: "This conversation is unavailable."}))

		res, err := h.engine.HandleIncomingEvent(ctx, event("hi"))
		require.NoError(t, err)
		assert.Equal(t, domain.EndReasonTraversal, res.Session.EndReason)
		assert.Contains(t, res.Message, "ghost")
		assert.Equal(t, []string{"Welcome", "This conversation is unavailable."}, h.texts())
		assert.Equal(t, "ghost", res.Session.CurrentNodeID, "the dangling target was recorded when advancing")
	})

	t.Run("Invalid Node Data", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{
			flow("f", "hi", []domain.Node{start(), node("w", domain.KindSendText, nil)}, edge("start", "a", "w")),
		})

		res, err := h.engine.HandleIncomingEvent(ctx, event("hi"))
		require.NoError(t, err)
		assert.Equal(t, domain.EndReasonInvalidNode, res.Session.EndReason)
	})
}

type panickingSender struct{}

func (panickingSender) Send(context.Context, domain.OutboundMessage, domain.Credentials) (domain.SendResult, error) {
	panic("nil map in provider client")
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Flow{
		flow("welcome", "hi", []domain.Node{start(), text("w", "Welcome")}, edge("start", "a", "w")),
	})
	h.engine = runtime.NewEngine(h.flows, sessionManager(h), panickingSender{})

	res, err := h.engine.HandleIncomingEvent(ctx, event("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnhandled)
	require.NotNil(t, res.Session)

	stored, getErr := h.store.Get(ctx, res.Session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusEnded, stored.Status)
	assert.Equal(t, domain.EndReasonUnhandled, stored.EndReason)
}

// panickingFlows breaks on lookups, as a buggy storage driver would.
type panickingFlows struct {
	*memory.Flows
}

func (panickingFlows) FindByID(context.Context, string) (*domain.Flow, error) {
	panic("storage driver bug")
}

func (panickingFlows) FindActiveByTrigger(context.Context, string, string, string) (*domain.Flow, error) {
	panic("storage driver bug")
}

func TestEngine_PanicBeforeNodeChainIsRecovered(t *testing.T) {
	ctx := context.Background()

	t.Run("Resume Lookup Ends Parked Session", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{buttonFlow(false)})
		first, err := h.engine.HandleIncomingEvent(ctx, event("menu"))
		require.NoError(t, err)
		require.Equal(t, domain.StatusAwaitingInput, first.Session.Status)

		broken := runtime.NewEngine(panickingFlows{h.flows}, sessionManager(h), h.sender)

		var res domain.Result
		require.NotPanics(t, func() {
			res, err = broken.HandleIncomingEvent(ctx, tap("B1"))
		})
		assert.ErrorIs(t, err, domain.ErrUnhandled)
		require.NotNil(t, res.Session)
		assert.Equal(t, first.Session.ID, res.Session.ID)

		stored, getErr := h.store.Get(ctx, first.Session.ID)
		require.NoError(t, getErr)
		assert.Equal(t, domain.StatusEnded, stored.Status)
		assert.Equal(t, domain.EndReasonUnhandled, stored.EndReason)
	})

	t.Run("Trigger Lookup Creates No Session", func(t *testing.T) {
		h := newHarness(t, []domain.Flow{buttonFlow(false)})
		broken := runtime.NewEngine(panickingFlows{h.flows}, sessionManager(h), h.sender)

		var res domain.Result
		var err error
		require.NotPanics(t, func() {
			res, err = broken.HandleIncomingEvent(ctx, event("menu"))
		})
		assert.ErrorIs(t, err, domain.ErrUnhandled)
		assert.Nil(t, res.Session)

		ids, _ := h.store.List(ctx)
		assert.Empty(t, ids)
	})
}

func TestEngine_Unresumable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Flow{buttonFlow(false)})

	first, err := h.engine.HandleIncomingEvent(ctx, event("menu"))
	require.NoError(t, err)

	// The flow is edited while the contact is parked.
	h.flows.Put(flow("menu", "menu", []domain.Node{start()}))

	res, err := h.engine.HandleIncomingEvent(ctx, tap("B1"))
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, res.Session.ID)
	assert.Equal(t, domain.StatusEnded, res.Session.Status)
	assert.Equal(t, domain.EndReasonResume, res.Session.EndReason)
}

func TestEngine_ResumesDeactivatedFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Flow{buttonFlow(false)})

	_, err := h.engine.HandleIncomingEvent(ctx, event("menu"))
	require.NoError(t, err)

	f := buttonFlow(false)
	f.Status = domain.FlowInactive
	h.flows.Put(f)

	_, err = h.engine.HandleIncomingEvent(ctx, tap("B1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Picked one"}, h.texts())
}

func TestEngine_InvalidEvent(t *testing.T) {
	h := newHarness(t, nil)
	ev := event("hi")
	ev.ProjectID = ""

	_, err := h.engine.HandleIncomingEvent(context.Background(), ev)
	assert.Error(t, err)
}
