package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/Reverse-Call-Center/routing-engine/router"
)

// Hub tracks one WebSocket connection per signed-in agent desk and pushes
// assignment offers down it. An agent without a connection still gets calls
// through the SIP leg; the push is advisory.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*websocket.Conn),
		logger: logger.With("subsystem", "hub"),
	}
}

// Serve upgrades the request and parks it until the desk disconnects. A new
// connection for the same agent replaces the old one.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "agent", agentID, "error", err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[agentID]; ok {
		old.Close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}
	h.conns[agentID] = ws
	h.mu.Unlock()

	h.logger.Info("agent desk connected", "agent", agentID)
	defer func() {
		h.mu.Lock()
		if h.conns[agentID] == ws {
			delete(h.conns, agentID)
		}
		h.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("agent desk disconnected", "agent", agentID)
	}()

	// Desks only receive; drain reads to notice the close.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			return
		}
	}
}

type assignmentMessage struct {
	Type string            `json:"type"`
	Data router.Assignment `json:"data"`
}

// NotifyAssignment implements router.Notifier.
func (h *Hub) NotifyAssignment(agentID string, a router.Assignment) {
	h.mu.Lock()
	ws := h.conns[agentID]
	h.mu.Unlock()
	if ws == nil {
		return
	}

	payload, err := json.Marshal(assignmentMessage{Type: "assignment", Data: a})
	if err != nil {
		h.logger.Error("assignment marshal failed", "agent", agentID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
		h.logger.Warn("assignment push failed", "agent", agentID, "error", err)
	}
}
