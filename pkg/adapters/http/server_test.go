package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetingFlow() domain.Flow {
	return domain.Flow{
		ID: "welcome", ProjectID: "proj-1", TenantID: "tenant-1",
		Status: domain.FlowActive, TriggerKeyword: "hello",
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "greet", Kind: domain.KindSendText, Data: map[string]any{"text": "Hi there"}},
			{ID: "ask", Kind: domain.KindCollectInput, Data: map[string]any{
				"fields": []any{map[string]any{"id": "name", "prompt": "Your name?"}},
			}},
		},
		Edges: []domain.Edge{
			{Source: "start", SourceHandle: domain.HandleNext, Target: "greet"},
			{Source: "greet", SourceHandle: domain.HandleNext, Target: "ask"},
		},
	}
}

type fixture struct {
	handler http.Handler
	server  *Server
	sender  *memory.Sender
	store   *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	flows := memory.NewFlows(greetingFlow())
	store := memory.NewStore()
	sender := memory.NewSender()
	streams := NewStreamManager(nil)
	engine := runtime.NewEngine(flows, session.NewManager(store), sender, runtime.WithNotifier(streams))

	srv := NewServer(engine, store, WithFlows(flows), WithStreams(streams), WithVersion("1.2.3"), WithMaxInputSize(64))
	return &fixture{handler: srv.Routes(), server: srv, sender: sender, store: store}
}

func postEvent(t *testing.T, h http.Handler, req EventRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body)))
	return w
}

func helloEvent(text string) EventRequest {
	return EventRequest{ContactID: "5511999990000", PhoneNumberID: "phone-1", ProjectID: "proj-1", TenantID: "tenant-1", UserInput: text}
}

func TestPostEvent_RunsFlow(t *testing.T) {
	f := newFixture(t)

	w := postEvent(t, f.handler, helloEvent("hello"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Session)
	assert.Equal(t, domain.StatusAwaitingInput, resp.Session.Status)
	assert.Equal(t, "name", resp.Session.AwaitingFieldID)
	assert.Len(t, f.sender.Sent(), 2)

	// The session is readable afterwards.
	get := httptest.NewRecorder()
	f.handler.ServeHTTP(get, httptest.NewRequest("GET", "/v1/sessions/"+resp.Session.ID, nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, get.Body.String(), `"currentFlowId":"welcome"`)

	list := httptest.NewRecorder()
	f.handler.ServeHTTP(list, httptest.NewRequest("GET", "/v1/sessions", nil))
	assert.Contains(t, list.Body.String(), resp.Session.ID)
}

func TestPostEvent_Validation(t *testing.T) {
	f := newFixture(t)

	t.Run("Malformed JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1/events", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing Contact", func(t *testing.T) {
		req := helloEvent("hello")
		req.ContactID = ""
		assert.Equal(t, http.StatusBadRequest, postEvent(t, f.handler, req).Code)
	})

	t.Run("Oversized Input", func(t *testing.T) {
		w := postEvent(t, f.handler, helloEvent(strings.Repeat("a", 65)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, f.sender.Sent())
	})
}

func TestPostEvent_TriggerGapIsNotAnError(t *testing.T) {
	f := newFixture(t)

	w := postEvent(t, f.handler, helloEvent("what?"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Session)
	assert.Empty(t, resp.Error)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFlowsAndInfo(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1/flows", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var flows []domain.Flow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flows))
	require.Len(t, flows, 1)
	assert.Equal(t, "welcome", flows[0].ID)

	info := httptest.NewRecorder()
	f.handler.ServeHTTP(info, httptest.NewRequest("GET", "/info", nil))
	assert.Contains(t, info.Body.String(), `"version":"1.2.3"`)

	health := httptest.NewRecorder()
	f.handler.ServeHTTP(health, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestSubscribeEvents_Tenant(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/tenants/tenant-1/stream?kinds=new_message", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	require.Eventually(t, func() bool { return f.server.Streams.Subscribers("tenant-1") == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, postEvent(t, f.handler, helloEvent("hello")).Code)

	var events []string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "Your name?") {
			break
		}
	}
	assert.NotContains(t, events, domain.NotificationSessionUpdated, "kinds filter must drop session updates")
	assert.Contains(t, events, domain.NotificationNewMessage)
}
