package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// CallEvent is the payload published on every call state change.
type CallEvent struct {
	SessionID string  `json:"session_id"`
	State     string  `json:"state"`
	Caller    string  `json:"caller,omitempty"`
	Called    string  `json:"called,omitempty"`
	Queue     string  `json:"queue,omitempty"`
	AgentID   string  `json:"agent_id,omitempty"`
	RingSec   float64 `json:"ring_sec,omitempty"`
	TalkSec   float64 `json:"talk_sec,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// QueueEvent is published for abandonments and escalations.
type QueueEvent struct {
	SessionID string  `json:"session_id"`
	Queue     string  `json:"queue"`
	Kind      string  `json:"kind"`
	WaitedSec float64 `json:"waited_sec"`
	Timestamp string  `json:"timestamp"`
}

// AgentEvent is published when an agent changes state.
type AgentEvent struct {
	AgentID   string `json:"agent_id"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Reporter serializes routing events and hands them to a Publisher.
// Publish failures are logged, never propagated: reporting must not
// stall call handling.
type Reporter struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func New(pub Publisher, topicPrefix string, logger *slog.Logger) *Reporter {
	return &Reporter{
		pub:    pub,
		prefix: topicPrefix,
		logger: logger.With("subsystem", "reporter"),
		now:    time.Now,
	}
}

// SetClock overrides the timestamp source for tests.
func (r *Reporter) SetClock(now func() time.Time) { r.now = now }

func (r *Reporter) CallState(ctx context.Context, ev CallEvent) {
	ev.Timestamp = r.now().UTC().Format(time.RFC3339)
	r.emit(ctx, fmt.Sprintf("%s/calls/%s/state", r.prefix, ev.SessionID), ev)
}

func (r *Reporter) QueueActivity(ctx context.Context, ev QueueEvent) {
	ev.Timestamp = r.now().UTC().Format(time.RFC3339)
	r.emit(ctx, fmt.Sprintf("%s/queues/%s/%s", r.prefix, ev.Queue, ev.Kind), ev)
}

func (r *Reporter) AgentState(ctx context.Context, ev AgentEvent) {
	ev.Timestamp = r.now().UTC().Format(time.RFC3339)
	r.emit(ctx, fmt.Sprintf("%s/agents/%s/state", r.prefix, ev.AgentID), ev)
}

func (r *Reporter) emit(ctx context.Context, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal event", "topic", topic, "error", err)
		return
	}
	if err := r.pub.Publish(ctx, topic, payload); err != nil {
		r.logger.Error("publish event", "topic", topic, "error", err)
	}
}

func (r *Reporter) Close() error { return r.pub.Close() }
