// Package api is the agent control surface: HTTP actions for desk state and
// call handling, plus a WebSocket channel that pushes assignments to agent
// desks.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Reverse-Call-Center/routing-engine/router"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

type Server struct {
	coord  *router.Coordinator
	hub    *Hub
	logger *slog.Logger
}

func NewServer(coord *router.Coordinator, logger *slog.Logger) *Server {
	s := &Server{
		coord:  coord,
		hub:    NewHub(logger),
		logger: logger.With("subsystem", "api"),
	}
	coord.SetNotifier(s.hub)
	return s
}

// Router builds the chi mux with all agent and call routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/agents/{id}", func(r chi.Router) {
		r.Post("/sign-in", s.agentAction(s.coord.AgentSignIn))
		r.Post("/sign-out", s.agentAction(s.coord.AgentSignOut))
		r.Post("/ready", s.agentState(types.AgentReady))
		r.Post("/busy", s.agentState(types.AgentBusy))
		r.Post("/after-call", s.agentState(types.AgentAfterCall))
		r.Post("/break", s.agentState(types.AgentOnBreak))
		r.Post("/answer", s.agentAction(s.coord.AgentAnswered))
		r.Get("/ws", s.hub.Serve)
	})

	r.Route("/calls/{id}", func(r chi.Router) {
		r.Post("/hold", s.callAction(s.coord.HoldCall))
		r.Post("/resume", s.callAction(s.coord.ResumeCall))
		r.Post("/consult", s.callAction(s.coord.StartConsult))
		r.Post("/consult/end", s.callAction(s.coord.EndConsult))
		r.Post("/transfer", s.transfer)
	})

	r.Post("/dial", s.dial)
	r.Get("/queues/stats", s.queueStats)
	return r
}

func (s *Server) agentAction(fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			s.fail(w, http.StatusConflict, err)
			return
		}
		s.ok(w)
	}
}

func (s *Server) agentState(state types.AgentState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.coord.SetAgentState(id, state); err != nil {
			s.fail(w, http.StatusConflict, err)
			return
		}
		s.ok(w)
	}
}

func (s *Server) callAction(fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			s.fail(w, http.StatusConflict, err)
			return
		}
		s.ok(w)
	}
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Destination == "" {
		s.fail(w, http.StatusBadRequest, errMissing("destination"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.coord.TransferCall(id, body.Destination); err != nil {
		s.fail(w, http.StatusConflict, err)
		return
	}
	s.ok(w)
}

func (s *Server) dial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID string `json:"campaign_id"`
		Caller     string `json:"caller"`
		Called     string `json:"called"`
		Queue      string `json:"queue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if body.Called == "" || body.Queue == "" {
		s.fail(w, http.StatusBadRequest, errMissing("called, queue"))
		return
	}
	sessionID, err := s.coord.PredictiveDial(body.CampaignID, body.Caller, body.Called, body.Queue)
	if err != nil {
		s.fail(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.json(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, s.coord.Stats())
}

type fieldError string

func errMissing(fields string) error { return fieldError(fields) }

func (e fieldError) Error() string { return "missing required field(s): " + string(e) }

func (s *Server) ok(w http.ResponseWriter) {
	s.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	s.json(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}
