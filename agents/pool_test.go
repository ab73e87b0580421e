package agents_test

import (
	"testing"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/agents"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

func TestSignInStartsOnBreak(t *testing.T) {
	p := agents.NewPool(discard())
	p.SignIn("alice", "Alice", []string{"sales"})
	a, ok := p.Get("alice")
	if !ok || a.State != types.AgentOnBreak {
		t.Fatalf("agent after sign-in = %+v", a)
	}
}

func TestBusyAgentCannotGoReadyWithActiveSession(t *testing.T) {
	p := agents.NewPool(discard())
	p.SignIn("alice", "Alice", []string{"sales"})
	if err := p.SetState("alice", types.AgentReady); err != nil {
		t.Fatal(err)
	}

	a, ok := p.Claim("sales", types.StrategyLongestWaiting)
	if !ok {
		t.Fatal("claim failed")
	}
	p.AttachSession(a.ID, "call-1")

	if err := p.SetState("alice", types.AgentReady); err == nil {
		t.Fatal("busy agent with session accepted ready")
	}
}

func TestReleaseRollsBackUnattachedClaim(t *testing.T) {
	p := agents.NewPool(discard())
	p.SignIn("alice", "Alice", []string{"sales"})
	if err := p.SetState("alice", types.AgentReady); err != nil {
		t.Fatal(err)
	}

	a, _ := p.Claim("sales", types.StrategyLongestWaiting)
	p.Release(a.ID)

	got, _ := p.Get("alice")
	if got.State != types.AgentReady {
		t.Fatalf("state after release = %v", got.State)
	}
}

func TestIdleAccounting(t *testing.T) {
	p := agents.NewPool(discard())
	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return now })

	p.SignIn("alice", "Alice", []string{"sales"})
	if err := p.SetState("alice", types.AgentReady); err != nil {
		t.Fatal(err)
	}

	now = now.Add(4 * time.Minute)
	if _, ok := p.Claim("sales", types.StrategyLongestWaiting); !ok {
		t.Fatal("claim failed")
	}
	p.FinishCall("alice", 2*time.Minute)

	a, _ := p.Get("alice")
	if a.AvgIdle() != 4*time.Minute {
		t.Fatalf("avg idle = %v", a.AvgIdle())
	}
	if a.TotalTalk != 2*time.Minute {
		t.Fatalf("total talk = %v", a.TotalTalk)
	}
	if a.State != types.AgentAfterCall {
		t.Fatalf("state = %v", a.State)
	}
}

func TestReadyCount(t *testing.T) {
	p := agents.NewPool(discard())
	p.SignIn("a", "A", []string{"sales"})
	p.SignIn("b", "B", []string{"support"})
	p.SignIn("c", "C", nil)
	for _, id := range []string{"a", "b"} {
		if err := p.SetState(id, types.AgentReady); err != nil {
			t.Fatal(err)
		}
	}
	if got := p.ReadyCount("sales"); got != 1 {
		t.Fatalf("ready(sales) = %d", got)
	}
	// Empty skill matches every ready agent.
	if got := p.ReadyCount(""); got != 2 {
		t.Fatalf("ready() = %d", got)
	}
}
