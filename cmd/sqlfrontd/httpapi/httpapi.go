// Package httpapi is the demo CRUD surface described in spec.md §6: a
// small net/http server translating HTTP verbs into Executor Facade calls
// and Command constructions. It is explicitly non-core — an external
// collaborator exercising the coordination engine end to end, not part of
// it — so it reaches for nothing beyond http.ServeMux's method+pattern
// routing rather than pulling in a third-party router for this surface
// alone.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/command"
	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/executor"
	"github.com/sqlfront/proxy/pkg/registry"
	"github.com/sqlfront/proxy/pkg/router"
	"github.com/sqlfront/proxy/pkg/strategy"
)

// Server wires the coordination engine's public entry points to HTTP.
type Server struct {
	facade   *executor.Facade
	registry *registry.Registry
	router   *router.Router
	bus      *events.Bus
	logger   zerolog.Logger
	mux      *http.ServeMux
}

// New builds a Server and registers its routes.
func New(facade *executor.Facade, reg *registry.Registry, rt *router.Router, bus *events.Bus, logger zerolog.Logger) *Server {
	s := &Server{
		facade:   facade,
		registry: reg,
		router:   rt,
		bus:      bus,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /users", s.handleListUsers)
	s.mux.HandleFunc("POST /users", s.handleCreateUser)
	s.mux.HandleFunc("PUT /users/{id}", s.handleUpdateUser)
	s.mux.HandleFunc("DELETE /users/{id}", s.handleDeleteUser)
	s.mux.HandleFunc("GET /nodes", s.handleListNodes)
	s.mux.HandleFunc("POST /nodes/{name}/{action}", s.handleNodeAction)
	s.mux.HandleFunc("POST /strategy/{name}", s.handleSetStrategy)
}

type userPayload struct {
	Name string `json:"name"`
}

type execResponse struct {
	Rows     []backend.Row `json:"rows"`
	ServedBy string        `json:"served_by"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	result, err := s.facade.ExecuteRead(r.Context(), "SELECT id, name FROM users ORDER BY id")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execResponse{Rows: result.Rows, ServedBy: result.ServedBy})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	cmd := command.Insert("users", map[string]any{
		"id":   uuid.New().String(),
		"name": payload.Name,
	})
	s.execute(w, r, cmd, http.StatusAccepted)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	cmd := command.Update("users",
		map[string]any{"name": payload.Name},
		map[string]any{"id": r.PathValue("id")},
	)
	s.execute(w, r, cmd, http.StatusAccepted)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	cmd := command.Delete("users", map[string]any{"id": r.PathValue("id")})
	s.execute(w, r, cmd, http.StatusAccepted)
}

// execute builds the statement from cmd, runs it on the write path, and
// journals cmd itself — never the statement — to whichever nodes miss the
// broadcast.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd command.Command, successStatus int) {
	stmt, params, err := cmd.BuildStatement()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.facade.ExecuteWrite(r.Context(), stmt, backend.Params(params), &cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successStatus, execResponse{Rows: result.Rows, ServedBy: result.ServedBy})
}

type nodeView struct {
	Name       string  `json:"name"`
	Enabled    bool    `json:"enabled"`
	Weight     int     `json:"weight"`
	AvgLatency float64 `json:"avg_latency_seconds"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.Snapshot()
	views := make([]nodeView, len(nodes))
	for i, n := range nodes {
		views[i] = nodeView{
			Name:       n.Name,
			Enabled:    n.Enabled(),
			Weight:     n.Weight,
			AvgLatency: n.AvgLatency().Seconds(),
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleNodeAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	action := r.PathValue("action")

	var status events.Status
	switch action {
	case "disable":
		status = events.StatusDown
	case "enable":
		status = events.StatusUp
	default:
		http.Error(w, "action must be disable or enable", http.StatusBadRequest)
		return
	}

	if s.registry.Get(name) == nil {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}

	s.bus.Notify(events.StatusEvent{Node: name, Status: status})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	strat, ok := strategy.ByName(name)
	if !ok {
		http.Error(w, "unknown strategy", http.StatusBadRequest)
		return
	}
	s.router.SetStrategy(strat)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already on the wire; nothing more to do beyond this
		// being visible in logs via the server's access pattern.
		return
	}
}

func writeError(w http.ResponseWriter, err error) {
	var noNodes *errs.NoEnabledNodes
	var backendErr *errs.BackendUnavailable
	var invalidCmd *command.ErrInvalidCommand

	switch {
	case errors.As(err, &noNodes):
		// A write-path NoEnabledNodes means the whole cluster was disabled,
		// but ExecuteWrite has already journaled the command to every node
		// before returning it — the caller's data isn't lost, just not
		// applied yet. That's worth surfacing differently than a read
		// finding no candidate node at all.
		if noNodes.Op == errs.OpWrite {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "detail": err.Error()})
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &backendErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &invalidCmd):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
