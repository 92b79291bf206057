package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowsURI is the resource exposing every flow definition.
const FlowsURI = "chatflow://flows"

// EventResponse mirrors the HTTP adapter so both surfaces return the same shape.
type EventResponse struct {
	Success bool            `json:"success" jsonschema_description:"Whether the event was handled"`
	Message string          `json:"message,omitempty" jsonschema_description:"Diagnostic message"`
	Session *domain.Session `json:"session,omitempty" jsonschema_description:"The session after the event"`
}

// SessionReader is the read side of the session store.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	List(ctx context.Context) ([]string, error)
}

// Server exposes the engine as an MCP server, so assistants can simulate
// inbound messages and inspect sessions and flows.
type Server struct {
	events    ports.EventHandler
	sessions  SessionReader
	flows     ports.FlowLister
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(events ports.EventHandler, sessions SessionReader, flows ports.FlowLister, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		events:    events,
		sessions:  sessions,
		flows:     flows,
		mcpServer: server.NewMCPServer("chatflow-mcp", version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts it down
// when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: simulate_event
	simulateTool := mcp.NewTool("simulate_event",
		mcp.WithDescription("Deliver an inbound message from a contact to the engine, as the messaging webhook would."),
		mcp.WithString("contact_id", mcp.Required(), mcp.Description("Contact phone number or id")),
		mcp.WithString("phone_number_id", mcp.Required(), mcp.Description("Business phone number id that received the message")),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project owning the flows")),
		mcp.WithString("tenant_id", mcp.Description("Tenant owning the project")),
		mcp.WithString("input", mcp.Description("Text typed by the contact")),
		mcp.WithString("button_id", mcp.Description("Id of the tapped interactive button (optional)")),
		mcp.WithOutputSchema[EventResponse](),
	)
	s.mcpServer.AddTool(simulateTool, mcp.NewStructuredToolHandler(s.handleSimulateEvent))

	// TOOL: get_session
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get a session by id, whatever its status."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)

	// TOOL: list_sessions
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the ids of stored sessions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.sessions.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return jsonResult(ids)
	})

	// TOOL: list_flows
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List every flow definition for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		flows, err := s.listFlows(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(flows)
	})
}

func (s *Server) handleSimulateEvent(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EventResponse, error) {
	str := func(k string) string {
		v, _ := args[k].(string)
		return v
	}
	ev := domain.InboundEvent{
		ContactID:             str("contact_id"),
		PhoneNumberID:         str("phone_number_id"),
		ProjectID:             str("project_id"),
		TenantID:              str("tenant_id"),
		InteractiveResponseID: str("button_id"),
	}

	input, err := domain.SanitizeInput(str("input"), 0)
	if err != nil {
		s.logger.Warn("MCP simulate_event: Input rejected", "error", err)
		return EventResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	ev.UserInput = input

	res, err := s.events.HandleIncomingEvent(ctx, ev)
	if err != nil {
		return EventResponse{}, fmt.Errorf("event failed: %w", err)
	}
	return EventResponse{Success: res.Success, Message: res.Message, Session: res.Session}, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, err := s.sessions.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("session %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(session)
}

func (s *Server) listFlows(ctx context.Context) ([]domain.Flow, error) {
	if s.flows == nil {
		return nil, fmt.Errorf("flow listing not supported by this provider")
	}
	flows, err := s.flows.ListFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	return flows, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: chatflow://flows
	s.mcpServer.AddResource(mcp.NewResource(FlowsURI, "Flow Definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		flows, err := s.listFlows(ctx)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(flows)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      FlowsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
