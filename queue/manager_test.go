package queue_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/queue"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) (*queue.Manager, *time.Time) {
	t.Helper()
	m := queue.NewManager(discard())
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })
	m.Declare("sales")
	return m, &now
}

func session(t *testing.T, id string) *types.CallSession {
	t.Helper()
	s := types.NewCallSession(context.Background(), id, types.DirectionInbound, "+1555"+id, "100")
	t.Cleanup(s.Cancel)
	return s
}

func drain(t *testing.T, m *queue.Manager, name string) []string {
	t.Helper()
	var order []string
	for {
		s, ok := m.TakeHead(name)
		if !ok {
			return order
		}
		order = append(order, s.ID)
	}
}

func TestPriorityThenFIFO(t *testing.T) {
	m, now := newManager(t)

	// Arrivals one second apart: low, high, low, high.
	for i, tc := range []struct {
		id   string
		prio int
	}{
		{"a", 5}, {"b", 9}, {"c", 5}, {"d", 9},
	} {
		*now = now.Add(time.Second)
		if err := m.Enqueue(session(t, tc.id), "sales", tc.prio); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	want := []string{"b", "d", "a", "c"}
	got := drain(t, m, "sales")
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("dequeue order %v, want %v", got, want)
	}
}

func TestUnknownQueue(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Enqueue(session(t, "x"), "ghost", 5); err != queue.ErrUnknownQueue {
		t.Fatalf("err = %v, want ErrUnknownQueue", err)
	}
}

func TestRequeueKeepsOriginalPosition(t *testing.T) {
	m, now := newManager(t)

	first := session(t, "first")
	entry := *now
	if err := m.Enqueue(first, "sales", 5); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(10 * time.Second)
	if err := m.Enqueue(session(t, "second"), "sales", 5); err != nil {
		t.Fatal(err)
	}

	// Simulate a no-answer bounce: first leaves for ringing and comes
	// back at the same tier with its original entry time.
	if s, ok := m.TakeHead("sales"); !ok || s.ID != "first" {
		t.Fatalf("head = %v", s)
	}
	if err := m.Requeue(first, "sales", 5, entry); err != nil {
		t.Fatal(err)
	}

	got := drain(t, m, "sales")
	if fmt.Sprint(got) != "[first second]" {
		t.Fatalf("order after requeue = %v", got)
	}
}

func TestRemove(t *testing.T) {
	m, _ := newManager(t)
	a, b := session(t, "a"), session(t, "b")
	m.Enqueue(a, "sales", 5)
	m.Enqueue(b, "sales", 5)

	if !m.Remove(a, "sales") {
		t.Fatal("remove reported miss")
	}
	if m.Remove(a, "sales") {
		t.Fatal("second remove reported hit")
	}
	if name, _, _ := a.Queue(); name != "" {
		t.Fatalf("session still queued: %q", name)
	}
	if m.Len("sales") != 1 {
		t.Fatalf("len = %d", m.Len("sales"))
	}
}

func TestPeekWaitTime(t *testing.T) {
	m, now := newManager(t)
	if m.PeekWaitTime("sales") != 0 {
		t.Fatal("empty queue has nonzero wait")
	}
	m.Enqueue(session(t, "a"), "sales", 5)
	*now = now.Add(42 * time.Second)
	if got := m.PeekWaitTime("sales"); got != 42*time.Second {
		t.Fatalf("wait = %v", got)
	}
}

func TestOverdue(t *testing.T) {
	m, now := newManager(t)
	m.Enqueue(session(t, "old"), "sales", 5)
	*now = now.Add(90 * time.Second)
	m.Enqueue(session(t, "fresh"), "sales", 5)
	*now = now.Add(40 * time.Second)

	over := m.Overdue("sales", 2*time.Minute)
	if len(over) != 1 || over[0].ID != "old" {
		t.Fatalf("overdue = %v", over)
	}
}

func TestEnqueueRejectsDoubleParking(t *testing.T) {
	m, _ := newManager(t)
	m.Declare("general")

	s := session(t, "a")
	if err := m.Enqueue(s, "sales", 5); err != nil {
		t.Fatal(err)
	}
	if err := m.Enqueue(s, "general", 5); err == nil {
		t.Fatal("second enqueue accepted while still waiting in sales")
	}
	if m.Len("general") != 0 {
		t.Fatalf("general depth = %d", m.Len("general"))
	}

	// Once dequeued, the session may be parked again.
	if _, ok := m.TakeHead("sales"); !ok {
		t.Fatal("take head missed")
	}
	if err := m.Enqueue(s, "general", 5); err != nil {
		t.Fatal(err)
	}
}
