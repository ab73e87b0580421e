package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/store"
)

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "acd.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRouteValueLongestPrefixWins(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, r := range []struct{ caller, called, value string }{
		{"", "", "default"},
		{"+1555", "", "domestic"},
		{"+1555123", "", "vip"},
	} {
		if err := s.AddRouteRule(ctx, r.caller, r.called, r.value); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct{ caller, want string }{
		{"+15551234567", "vip"},
		{"+15559990000", "domestic"},
		{"+4930123456", "default"},
	}
	for _, tc := range cases {
		got, err := s.RouteValue(ctx, tc.caller, "100")
		if err != nil {
			t.Fatalf("RouteValue(%s): %v", tc.caller, err)
		}
		if got != tc.want {
			t.Errorf("RouteValue(%s) = %q, want %q", tc.caller, got, tc.want)
		}
	}
}

func TestRouteValueNoMatch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.AddRouteRule(ctx, "+49", "", "intl"); err != nil {
		t.Fatal(err)
	}
	_, err := s.RouteValue(ctx, "+15551234", "100")
	if !errors.Is(err, store.ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}

func TestRouteValueDeterministic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	// Two rules with identical prefix length: the older rule must win
	// every time.
	s.AddRouteRule(ctx, "+1555", "", "first")
	s.AddRouteRule(ctx, "+1555", "", "second")

	for i := 0; i < 5; i++ {
		got, err := s.RouteValue(ctx, "+15551234", "100")
		if err != nil {
			t.Fatal(err)
		}
		if got != "first" {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}

func TestWriteCDRAndQueueEvent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	cdr := &store.CDR{
		SessionID:   "call-1",
		Direction:   "inbound",
		Caller:      "+15551234",
		Called:      "100",
		QueueName:   "sales",
		AgentID:     "alice",
		StartTime:   now,
		QueueEnter:  now.Add(10 * time.Second),
		RingAt:      now.Add(40 * time.Second),
		AnswerAt:    now.Add(45 * time.Second),
		EndAt:       now.Add(245 * time.Second),
		TalkSeconds: 200,
		EndReason:   "completed",
	}
	if err := s.WriteCDR(ctx, cdr); err != nil {
		t.Fatalf("WriteCDR: %v", err)
	}
	// Replays are upserts, not duplicates.
	if err := s.WriteCDR(ctx, cdr); err != nil {
		t.Fatalf("WriteCDR replay: %v", err)
	}

	ev := &store.QueueEvent{
		SessionID: "call-2", QueueName: "sales", Kind: "abandoned",
		At: now, WaitedSec: 33,
	}
	if err := s.WriteQueueEvent(ctx, ev); err != nil {
		t.Fatalf("WriteQueueEvent: %v", err)
	}
}
