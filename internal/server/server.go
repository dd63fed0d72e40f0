// Package server exposes the task flows over HTTP.
//
// Every response uses a {"success": ...} envelope. Task creation responses
// additionally carry a "method" field ("enriched" or "degraded") so clients
// can tell whether canonical matching ran.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/auth"
	"github.com/sensei-app/sensei/internal/storage"
	"github.com/sensei-app/sensei/internal/tasks"
	"github.com/sensei-app/sensei/internal/types"
)

// Config holds HTTP server settings
type Config struct {
	Addr           string
	AllowedOrigins []string
	// FallbackUser is the user id requests run as when auth is disabled
	FallbackUser string
}

// DefaultConfig returns server defaults for local use
func DefaultConfig() Config {
	return Config{
		Addr:           ":8787",
		AllowedOrigins: []string{"http://localhost:5173"},
		FallbackUser:   "local",
	}
}

// Server routes HTTP requests to the task flows
type Server struct {
	store   storage.Storage
	creator *tasks.Creator
	linker  *tasks.Linker
	oracle  *ai.Client
	auth    *auth.Authenticator
	config  Config
}

// New creates a Server. The oracle may be nil; /healthz then skips the
// oracle probe.
func New(store storage.Storage, creator *tasks.Creator, linker *tasks.Linker, oracle *ai.Client, authenticator *auth.Authenticator, config Config) *Server {
	return &Server{
		store:   store,
		creator: creator,
		linker:  linker,
		oracle:  oracle,
		auth:    authenticator,
		config:  config,
	}
}

// Handler returns the fully wired HTTP handler: routes, auth, CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.handleCompleteTask)
	mux.HandleFunc("POST /api/projects/{id}/link-orphans", s.handleLinkOrphans)
	mux.HandleFunc("GET /api/canonical-tasks", s.handleListCanonicalTasks)
	mux.HandleFunc("PATCH /api/canonical-tasks/{id}/notes", s.handleUpdateCanonicalNotes)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(s.auth.Middleware(s.config.FallbackUser, mux))
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] listening on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.oracle != nil {
		probeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.oracle.Ping(probeCtx); err != nil {
			status["oracle"] = "unavailable"
		} else {
			status["oracle"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req.UserID = auth.UserFromContext(r.Context())

	result, err := s.creator.Create(r.Context(), req)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":          true,
		"data":             result.Task,
		"canonical_task":   result.Canonical,
		"method":           result.Method,
		"matched_existing": result.MatchedExisting,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.InstanceFilter{
		ProjectID:     q.Get("project_id"),
		ScheduledDate: q.Get("date"),
	}
	if q.Get("backlog") != "" {
		backlog, err := strconv.ParseBool(q.Get("backlog"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid backlog parameter")
			return
		}
		filter.Backlog = backlog
	}
	if filter.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	instances, err := s.store.ListTaskInstances(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": instances})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	updated, err := s.store.UpdateTaskInstance(r.Context(), r.PathValue("id"), updates)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": updated})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTaskInstance(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var completion types.Completion
	if err := json.NewDecoder(r.Body).Decode(&completion); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now().UTC()
	}

	completed, err := s.store.CompleteTaskInstance(r.Context(), r.PathValue("id"), completion)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": completed})
}

func (s *Server) handleListCanonicalTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.CanonicalFilter{
		UserID:    auth.UserFromContext(r.Context()),
		ProjectID: q.Get("project_id"),
		DomainID:  q.Get("domain_id"),
		Version:   q.Get("version"),
	}
	if filter.DomainID == "" {
		writeError(w, http.StatusBadRequest, "domain_id is required")
		return
	}

	canonicals, err := s.store.ListCanonicalTasks(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": canonicals})
}

func (s *Server) handleUpdateCanonicalNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	id := r.PathValue("id")
	if err := s.store.UpdateCanonicalTaskNotes(r.Context(), id, body.Notes); err != nil {
		writeFlowError(w, err)
		return
	}
	canonical, err := s.store.GetCanonicalTask(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": canonical})
}

func (s *Server) handleLinkOrphans(w http.ResponseWriter, r *http.Request) {
	result, err := s.linker.LinkOrphans(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"linked":  result.Linked,
		"created": result.Created,
	})
}

// writeFlowError maps domain errors to HTTP status codes
func writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case types.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("[SERVER] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[SERVER] failed to encode response: %v", err)
	}
}
