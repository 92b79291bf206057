package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
)

type harness struct {
	engine   *runtime.Engine
	store    *memory.Store
	sender   *memory.Sender
	messages *memory.MessageLog
	notifier *memory.Notifier
	flows    *memory.Flows
	manager  *session.Manager

	mu      sync.Mutex
	entered []string
}

func newHarness(t *testing.T, flows []domain.Flow, opts ...runtime.EngineOption) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.NewStore(), flows, opts...)
}

func newHarnessWithStore(t *testing.T, store ports.SessionStore, flows []domain.Flow, opts ...runtime.EngineOption) *harness {
	t.Helper()
	h := &harness{
		sender:   memory.NewSender(),
		messages: memory.NewMessageLog(),
		notifier: memory.NewNotifier(),
		flows:    memory.NewFlows(flows...),
	}
	if ms, ok := store.(*memory.Store); ok {
		h.store = ms
	}

	var seq int64
	clock := testClock
	base := []runtime.EngineOption{
		runtime.WithMessageLogger(h.messages),
		runtime.WithNotifier(h.notifier),
		runtime.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }),
		runtime.WithClock(func() time.Time { return clock }),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.entered = append(h.entered, e.NodeID)
			},
		}),
	}
	h.manager = session.NewManager(store)
	h.engine = runtime.NewEngine(h.flows, h.manager, h.sender, append(base, opts...)...)
	return h
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sessionManager(h *harness) *session.Manager {
	return h.manager
}

// enteredNodes returns and clears the nodes entered so far.
func (h *harness) enteredNodes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.entered
	h.entered = nil
	return out
}

// texts returns the bodies of the text messages sent so far.
func (h *harness) texts() []string {
	var out []string
	for _, m := range h.sender.Sent() {
		if m.Type == domain.MessageText {
			out = append(out, m.Payload["body"].(string))
		}
	}
	return out
}

func event(text string) domain.InboundEvent {
	return domain.InboundEvent{
		ContactID:     "5511999990000",
		PhoneNumberID: "phone-1",
		ProjectID:     "proj-1",
		TenantID:      "tenant-1",
		UserInput:     text,
	}
}

func tap(buttonID string) domain.InboundEvent {
	ev := event("")
	ev.InteractiveResponseID = buttonID
	return ev
}

func flow(id, trigger string, nodes []domain.Node, edges ...domain.Edge) domain.Flow {
	return domain.Flow{
		ID:             id,
		TenantID:       "tenant-1",
		ProjectID:      "proj-1",
		Status:         domain.FlowActive,
		TriggerKeyword: trigger,
		Nodes:          nodes,
		Edges:          edges,
	}
}

func node(id string, kind domain.NodeKind, data map[string]any) domain.Node {
	return domain.Node{ID: id, Kind: kind, Data: data}
}

func edge(source, handle, target string) domain.Edge {
	return domain.Edge{Source: source, SourceHandle: handle, Target: target}
}

func text(id, body string) domain.Node {
	return node(id, domain.KindSendText, map[string]any{"text": body})
}

func start() domain.Node {
	return node("start", domain.KindStart, nil)
}

func buttons(id string, ids ...string) domain.Node {
	var list []any
	for _, b := range ids {
		list = append(list, map[string]any{"id": b, "title": "Button " + b})
	}
	return node(id, domain.KindSendButtons, map[string]any{"body": "Choose one", "buttons": list})
}
