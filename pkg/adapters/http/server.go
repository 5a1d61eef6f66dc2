// Package http exposes sessions, stepping and checkpoints over a REST API.
// The API is effect-based: POST /step returns the effects the host must
// execute, and POST /result folds the outcome back in. The server itself
// never calls a model.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/switchyard-dev/switchyard/internal/presentation/graph"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
	"github.com/switchyard-dev/switchyard/pkg/session"
)

// Engine is the execution surface the server drives: stepping plus
// checkpoint handling and re-attachment of restored snapshots.
type Engine interface {
	ports.Engine
	Attach(state *domain.ExecutionState) error
	CreateCheckpoint(state *domain.ExecutionState, name string) *domain.Checkpoint
	RestoreCheckpoint(cp *domain.Checkpoint) (*domain.ExecutionState, error)
}

// Server wires the engine, the machine definition and session persistence
// into an HTTP handler.
type Server struct {
	engine      Engine
	machine     *domain.Graph
	sessions    *session.Manager
	checkpoints ports.CheckpointStore
	logger      *slog.Logger
}

// NewServer creates the server. checkpoints may be nil to disable the
// checkpoint routes.
func NewServer(engine Engine, machine *domain.Graph, sessions *session.Manager, checkpoints ports.CheckpointStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:      engine,
		machine:     machine,
		sessions:    sessions,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/graph", s.handleGraph)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/step", s.handleStep)
			r.Post("/result", s.handleResult)
			if s.checkpoints != nil {
				r.Get("/checkpoints", s.handleListCheckpoints)
				r.Post("/checkpoints", s.handleCreateCheckpoint)
				r.Post("/checkpoints/{checkpointID}/restore", s.handleRestoreCheckpoint)
			}
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "mermaid" {
		var overlay *graph.GraphOverlay
		if sessionID := r.URL.Query().Get("session"); sessionID != "" {
			if state, err := s.sessions.Load(r.Context(), sessionID); err == nil {
				overlay = graph.OverlayFromState(state)
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, graph.GenerateMermaid(s.machine, overlay))
		return
	}
	writeJSON(w, http.StatusOK, s.machine)
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = domain.NewID()
	}

	state, err := s.sessions.LoadOrStart(r.Context(), sessionID, func(ctx context.Context) (*domain.ExecutionState, error) {
		return s.engine.Initialize(s.machine)
	})
	if err != nil {
		s.writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": sessionID, "state": state})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.sessions.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, "load session", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var result *domain.StepResult
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
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
		s.writeError(w, "step", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var agentResult domain.AgentResult
	if err := json.NewDecoder(r.Body).Decode(&agentResult); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var next *domain.ExecutionState
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
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
		s.writeError(w, "apply result", err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

type createCheckpointRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var body createCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var cp *domain.Checkpoint
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		state, err := s.sessions.Store().Load(ctx, sessionID)
		if err != nil {
			return err
		}
		cp = s.engine.CreateCheckpoint(state, body.Name)
		return s.checkpoints.SaveCheckpoint(ctx, sessionID, cp)
	})
	if err != nil {
		s.writeError(w, "create checkpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": cp.ID, "name": cp.Name, "created_at": cp.CreatedAt,
	})
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.checkpoints.ListCheckpoints(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, "list checkpoints", err)
		return
	}
	summaries := make([]map[string]any, 0, len(cps))
	for _, cp := range cps {
		summaries = append(summaries, map[string]any{
			"id": cp.ID, "name": cp.Name, "created_at": cp.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": summaries})
}

func (s *Server) handleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	checkpointID := chi.URLParam(r, "checkpointID")

	var restored *domain.ExecutionState
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		cp, err := s.checkpoints.LoadCheckpoint(ctx, sessionID, checkpointID)
		if err != nil {
			return err
		}
		restored, err = s.engine.RestoreCheckpoint(cp)
		if err != nil {
			return err
		}
		return s.sessions.Store().Save(ctx, sessionID, restored)
	})
	if err != nil {
		s.writeError(w, "restore checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrCheckpointNotFound):
		status = http.StatusNotFound
	}
	var permErr *domain.PermissionError
	if errors.As(err, &permErr) {
		status = http.StatusForbidden
	}
	s.logger.Warn("request failed", "op", op, "err", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
