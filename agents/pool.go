// Package agents tracks agent identity, skills and availability, and pairs
// waiting sessions with agents. Agent state transitions are the single
// source of truth for availability.
package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/types"
)

var ErrUnknownAgent = errors.New("unknown agent")

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Pool owns all agent records. Every mutation happens under one pool lock;
// records never escape, callers receive copies.
type Pool struct {
	mu     sync.RWMutex
	agents map[string]*types.Agent
	clock  Clock
	logger *slog.Logger
}

func NewPool(logger *slog.Logger) *Pool {
	return &Pool{
		agents: make(map[string]*types.Agent),
		clock:  time.Now,
		logger: logger.With("subsystem", "agents"),
	}
}

// SetClock overrides the time source; test use only.
func (p *Pool) SetClock(c Clock) { p.clock = c }

// SignIn registers an agent. A signed-in agent starts on-break and becomes
// matchable only after an explicit ready action.
func (p *Pool) SignIn(id, name string, skills []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	skillSet := make(map[string]bool, len(skills))
	for _, s := range skills {
		skillSet[s] = true
	}
	p.agents[id] = &types.Agent{
		ID:     id,
		Name:   name,
		Skills: skillSet,
		State:  types.AgentOnBreak,
	}
	p.logger.Info("agent signed in", "agent", id, "name", name, "skills", skills)
}

func (p *Pool) SignOut(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.agents, id)
	p.logger.Info("agent signed out", "agent", id)
}

// SetState applies an agent control action (ready, busy, after-call,
// on-break). Idle time accounting happens at the ready boundary.
func (p *Pool) SetState(id string, state types.AgentState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.agents[id]
	if !ok {
		return ErrUnknownAgent
	}
	if a.State == types.AgentBusy && state == types.AgentReady && a.SessionID != "" {
		return fmt.Errorf("agent %s has an active session", id)
	}
	p.setStateLocked(a, state)
	return nil
}

func (p *Pool) setStateLocked(a *types.Agent, state types.AgentState) {
	now := p.clock()
	if a.State == types.AgentReady && state != types.AgentReady && !a.IdleSince.IsZero() {
		a.TotalIdle += now.Sub(a.IdleSince)
		a.IdlePeriods++
	}
	if state == types.AgentReady {
		a.IdleSince = now
	}
	a.State = state
}

// Claim atomically selects one eligible ready agent for the given skill
// using the queue's strategy and marks it busy. The single pool critical
// section makes a double claim structurally impossible.
func (p *Pool) Claim(skill string, strategy types.Strategy) (types.Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	var candidates []*types.Agent
	for _, a := range p.agents {
		if a.State != types.AgentReady {
			continue
		}
		if !a.HasSkill(skill) {
			continue
		}
		if now.Before(a.PenaltyUntil) {
			continue
		}
		candidates = append(candidates, a)
	}
	chosen := pickAgent(candidates, strategy)
	if chosen == nil {
		return types.Agent{}, false
	}
	p.setStateLocked(chosen, types.AgentBusy)
	return *chosen, true
}

// ClaimByID marks one specific ready agent busy, for transfers that
// target an agent directly rather than a skill group.
func (p *Pool) ClaimByID(id string) (types.Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok || a.State != types.AgentReady || p.clock().Before(a.PenaltyUntil) {
		return types.Agent{}, false
	}
	p.setStateLocked(a, types.AgentBusy)
	return *a, true
}

// Release undoes a claim whose session vanished before assignment.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.agents[id]; ok && a.State == types.AgentBusy && a.SessionID == "" {
		p.setStateLocked(a, types.AgentReady)
	}
}

// AttachSession binds the claimed agent to its session.
func (p *Pool) AttachSession(id, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.agents[id]; ok {
		a.SessionID = sessionID
	}
}

// RecordAnswer bumps the answered-call counter when a bridge succeeds.
func (p *Pool) RecordAnswer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.agents[id]; ok {
		a.Answered++
	}
}

// FinishCall releases the agent into after-call work and accumulates talk
// time for the strategy counters.
func (p *Pool) FinishCall(id string, talk time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return
	}
	a.SessionID = ""
	a.TotalTalk += talk
	a.LastCallEnded = p.clock()
	p.setStateLocked(a, types.AgentAfterCall)
}

// Penalize pulls a no-answer agent out of rotation until the deadline and
// drops its session binding.
func (p *Pool) Penalize(id string, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return
	}
	a.SessionID = ""
	a.PenaltyUntil = until
	p.setStateLocked(a, types.AgentAfterCall)
	p.logger.Warn("agent penalized for no-answer", "agent", id, "until", until)
}

// Get returns a copy of the agent record.
func (p *Pool) Get(id string) (types.Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *a, true
}

// ReadyCount reports how many agents could take a call for the skill now.
func (p *Pool) ReadyCount(skill string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.clock()
	n := 0
	for _, a := range p.agents {
		if a.State == types.AgentReady && a.HasSkill(skill) && !now.Before(a.PenaltyUntil) {
			n++
		}
	}
	return n
}
