package reporter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/reporter"
)

func newReporter() (*reporter.Reporter, *reporter.MockPublisher) {
	pub := reporter.NewMockPublisher()
	r := reporter.New(pub, "acd", slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.SetClock(func() time.Time {
		return time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	})
	return r, pub
}

func TestCallStateTopicAndPayload(t *testing.T) {
	r, pub := newReporter()
	r.CallState(context.Background(), reporter.CallEvent{
		SessionID: "call-1", State: "connected", AgentID: "alice", RingSec: 4.2,
	})

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	if msgs[0].Topic != "acd/calls/call-1/state" {
		t.Fatalf("topic = %q", msgs[0].Topic)
	}

	var got reporter.CallEvent
	if err := json.Unmarshal(msgs[0].Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.State != "connected" || got.AgentID != "alice" {
		t.Fatalf("payload = %+v", got)
	}
	if got.Timestamp != "2026-08-26T10:00:00Z" {
		t.Fatalf("timestamp = %q", got.Timestamp)
	}
}

func TestQueueActivityTopic(t *testing.T) {
	r, pub := newReporter()
	r.QueueActivity(context.Background(), reporter.QueueEvent{
		SessionID: "call-1", Queue: "sales", Kind: "abandoned", WaitedSec: 33,
	})
	if got := pub.Messages()[0].Topic; got != "acd/queues/sales/abandoned" {
		t.Fatalf("topic = %q", got)
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	r, pub := newReporter()
	pub.SetError(errors.New("broker gone"))
	// Must not panic or block; failures only get logged.
	r.AgentState(context.Background(), reporter.AgentEvent{AgentID: "alice", State: "ready"})
}
