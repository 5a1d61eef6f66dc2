// Package mcp exposes the engine over the Model Context Protocol so that
// MCP-capable agents can create sessions, step them and fold agent results
// back in, using the same effect-based contract as the HTTP adapter.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/switchyard-dev/switchyard/internal/presentation/graph"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
	"github.com/switchyard-dev/switchyard/pkg/session"
)

// Engine is the execution surface the MCP server drives.
type Engine interface {
	ports.Engine
	Attach(state *domain.ExecutionState) error
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	machine   *domain.Graph
	sessions  *session.Manager
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(engine Engine, machine *domain.Graph, sessions *session.Manager, version string) *Server {
	s := &Server{
		engine:    engine,
		machine:   machine,
		sessions:  sessions,
		mcpServer: server.NewMCPServer("switchyard-mcp", version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
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
		slog.Info("MCP server listening (SSE)", "address", addr)
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

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: create_session
	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new execution session for the loaded machine. Returns the session id and the initial snapshot."),
		mcp.WithString("session_id", mcp.Description("Session id to use (generated when omitted)")),
	), s.handleCreateSession)

	// TOOL: step_session
	s.mcpServer.AddTool(mcp.NewTool("step_session",
		mcp.WithDescription("Advance a session by one step. Returns the run status and any effects the caller must execute."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleStep)

	// TOOL: apply_result
	s.mcpServer.AddTool(mcp.NewTool("apply_result",
		mcp.WithDescription("Fold an agent result back into a waiting session. The result JSON must match the shape returned alongside an invoke_llm effect."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("result", mcp.Required(), mcp.Description("JSON-encoded agent result")),
	), s.handleApplyResult)

	// TOOL: get_session
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Fetch the current snapshot of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)

	// TOOL: list_sessions
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List known session ids."),
	), s.handleListSessions)

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the machine definition for introspection. Pass format=mermaid for a diagram."),
		mcp.WithString("format", mcp.Description("Output format: json (default) or mermaid")),
		mcp.WithString("session_id", mcp.Description("Overlay the visited/current nodes of this session (mermaid only)")),
	), s.handleGetGraph)
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		sessionID = domain.NewID()
	}

	state, err := s.sessions.LoadOrStart(ctx, sessionID, func(ctx context.Context) (*domain.ExecutionState, error) {
		return s.engine.Initialize(s.machine)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create session failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"session_id": sessionID, "state": state})
}

func (s *Server) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result *domain.StepResult
	err = s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, err := s.sessions.Store().Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := s.engine.Attach(state); err != nil {
			return err
		}
		result, err = s.engine.Step(ctx, state)
		if err != nil {
			return err
		}
		return s.sessions.Store().Save(ctx, sessionID, result.State)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("step failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (s *Server) handleApplyResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawResult, err := request.RequireString("result")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var agentResult domain.AgentResult
	if err := json.Unmarshal([]byte(rawResult), &agentResult); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid result payload: %v", err)), nil
	}

	var next *domain.ExecutionState
	err = s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, err := s.sessions.Store().Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := s.engine.Attach(state); err != nil {
			return err
		}
		next, err = s.engine.ApplyAgentResult(ctx, state, agentResult)
		if err != nil {
			return err
		}
		return s.sessions.Store().Save(ctx, sessionID, next)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("apply result failed: %v", err)), nil
	}
	return jsonResult(next)
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load session failed: %v", err)), nil
	}
	return jsonResult(state)
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.sessions.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"sessions": ids})
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if request.GetString("format", "json") == "mermaid" {
		var overlay *graph.GraphOverlay
		if sessionID := request.GetString("session_id", ""); sessionID != "" {
			if state, err := s.sessions.Load(ctx, sessionID); err == nil {
				overlay = graph.OverlayFromState(state)
			}
		}
		return mcp.NewToolResultText(graph.GenerateMermaid(s.machine, overlay)), nil
	}
	return jsonResult(s.machine)
}

func (s *Server) registerResources() {
	// EXPOSE: switchyard://graph
	s.mcpServer.AddResource(mcp.NewResource("switchyard://graph", "Machine Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.machine)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "switchyard://graph",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
