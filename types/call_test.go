package types_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Reverse-Call-Center/routing-engine/types"
)

func newSession(t *testing.T) *types.CallSession {
	t.Helper()
	s := types.NewCallSession(context.Background(), "call-1", types.DirectionInbound, "+15551234", "100")
	t.Cleanup(s.Cancel)
	return s
}

func TestLifecycleHappyPath(t *testing.T) {
	s := newSession(t)
	for _, next := range []types.CallState{
		types.StateIVR, types.StateQueued, types.StateConnecting,
		types.StateConnected, types.StateHold, types.StateConnected,
		types.StateEnded,
	} {
		if err := s.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if s.State() != types.StateEnded {
		t.Fatalf("final state = %s, want ended", s.State())
	}
}

func TestEndedReachableFromAnywhere(t *testing.T) {
	for _, via := range []types.CallState{types.StateIVR, types.StateQueued} {
		s := newSession(t)
		if err := s.Transition(via); err != nil {
			t.Fatalf("setup transition to %s: %v", via, err)
		}
		if err := s.Transition(types.StateEnded); err != nil {
			t.Errorf("hangup from %s: %v", via, err)
		}
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	s := newSession(t)
	err := s.Transition(types.StateConnected) // ringing -> connected skips connecting
	var bad *types.ErrBadTransition
	if !errors.As(err, &bad) {
		t.Fatalf("got %v, want ErrBadTransition", err)
	}
	if s.State() != types.StateRinging {
		t.Fatalf("state changed on rejected transition: %s", s.State())
	}
}

func TestNoAnswerReturnsToQueued(t *testing.T) {
	s := newSession(t)
	for _, next := range []types.CallState{types.StateIVR, types.StateQueued, types.StateConnecting} {
		if err := s.Transition(next); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	if err := s.Transition(types.StateQueued); err != nil {
		t.Fatalf("connecting -> queued after no-answer: %v", err)
	}
}

func TestMarkEscalatedIsOnceOnly(t *testing.T) {
	s := newSession(t)
	if !s.MarkEscalated() {
		t.Fatal("first MarkEscalated returned false")
	}
	if s.MarkEscalated() {
		t.Fatal("second MarkEscalated returned true")
	}
}

func TestVisitNodeBudget(t *testing.T) {
	s := newSession(t)
	for i := 0; i < 3; i++ {
		if !s.VisitNode(3) {
			t.Fatalf("visit %d rejected within budget", i+1)
		}
	}
	if s.VisitNode(3) {
		t.Fatal("visit beyond budget allowed")
	}
}

func TestDigitBuffer(t *testing.T) {
	s := newSession(t)
	s.AppendDigit("4")
	s.AppendDigit("2")
	if got := s.Digits(); got != "42" {
		t.Fatalf("digits = %q, want 42", got)
	}
	s.ResetDigits()
	if got := s.Digits(); got != "" {
		t.Fatalf("digits after reset = %q", got)
	}
}
