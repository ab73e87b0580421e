package types

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

type CallState int

const (
	StateRinging CallState = iota
	StateIVR
	StateQueued
	StateConnecting
	StateConnected
	StateHold
	StateConsult
	StateTransferring
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateIVR:
		return "ivr"
	case StateQueued:
		return "queued"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHold:
		return "hold"
	case StateConsult:
		return "consult"
	case StateTransferring:
		return "transferring"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// validTransitions encodes the session lifecycle. StateEnded is reachable
// from every state via hangup and is therefore not listed per source state.
var validTransitions = map[CallState][]CallState{
	StateRinging:      {StateIVR, StateQueued, StateConnecting},
	StateIVR:          {StateQueued, StateConnecting},
	StateQueued:       {StateConnecting, StateIVR, StateQueued},
	StateConnecting:   {StateConnected, StateQueued},
	StateConnected:    {StateHold, StateConsult, StateTransferring},
	StateHold:         {StateConnected},
	StateConsult:      {StateConnected},
	StateTransferring: {StateConnected, StateQueued, StateConnecting},
	StateEnded:        {},
}

// ErrBadTransition is returned when a state change violates the lifecycle.
type ErrBadTransition struct {
	From, To CallState
}

func (e *ErrBadTransition) Error() string {
	return fmt.Sprintf("invalid call state transition %s -> %s", e.From, e.To)
}

type InputKind int

const (
	InputDTMF InputKind = iota
	InputAnswered
	InputDisconnected
	InputTransfer
)

// Input carries a DTMF digit or a lifecycle signal from the telephony layer
// into the session's own event loop. Target carries the destination of an
// agent-initiated transfer.
type Input struct {
	Kind   InputKind
	Digit  string
	Reason string
	Target string
}

// CallSession represents one call for its whole lifetime. The routing
// coordinator drives it from a single goroutine; the matcher and the agent
// control surface touch it cross-goroutine, so mutable fields are guarded
// by mu and accessed through the methods below.
type CallSession struct {
	ID         string
	Direction  Direction
	Caller     string
	Called     string
	CampaignID string
	StartTime  time.Time

	Context context.Context
	Cancel  context.CancelFunc

	Inputs chan Input

	mu         sync.Mutex
	state      CallState
	flowName   string
	nodeID     string
	digits     string
	vars       map[string]string
	priority   int
	queueName  string
	lastQueue  string
	enqueuedAt time.Time
	agentID    string
	escalated  bool
	visits     int

	// CDR timing, written by the coordinator only.
	QueueEnter time.Time
	RingAt     time.Time
	AnswerAt   time.Time
	EndAt      time.Time
	EndReason  string
}

func NewCallSession(ctx context.Context, id string, dir Direction, caller, called string) *CallSession {
	cctx, cancel := context.WithCancel(ctx)
	return &CallSession{
		ID:        id,
		Direction: dir,
		Caller:    caller,
		Called:    called,
		StartTime: time.Now(),
		Context:   cctx,
		Cancel:    cancel,
		Inputs:    make(chan Input, 16),
		state:     StateRinging,
		vars:      map[string]string{"caller": caller, "called": called},
	}
}

// Transition moves the session to next, enforcing the lifecycle edges.
// Hangup (StateEnded) is always legal.
func (s *CallSession) Transition(next CallState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return nil
	}
	if next == StateEnded {
		s.state = StateEnded
		return nil
	}
	for _, allowed := range validTransitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return &ErrBadTransition{From: s.state, To: next}
}

func (s *CallSession) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) SetVar(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

func (s *CallSession) Var(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars[name]
}

func (s *CallSession) Vars() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

func (s *CallSession) AppendDigit(d string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digits += d
}

func (s *CallSession) ResetDigits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digits = ""
}

func (s *CallSession) Digits() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digits
}

func (s *CallSession) SetNode(flowName, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowName = flowName
	s.nodeID = nodeID
}

func (s *CallSession) Node() (flowName, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flowName, s.nodeID
}

// VisitNode bumps the per-session node visit counter and reports whether
// the budget still allows another node. Loops in the flow graph are legal;
// this bound guarantees termination.
func (s *CallSession) VisitNode(max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits++
	return s.visits <= max
}

func (s *CallSession) SetQueue(name string, priority int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueName = name
	s.lastQueue = name
	s.priority = priority
	s.enqueuedAt = at
	if s.QueueEnter.IsZero() {
		s.QueueEnter = at
	}
}

func (s *CallSession) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueName = ""
}

// LastQueue reports the most recent queue the session waited in, surviving
// the dequeue on match so detail records can attribute the call.
func (s *CallSession) LastQueue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQueue
}

func (s *CallSession) Queue() (name string, priority int, enqueuedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueName, s.priority, s.enqueuedAt
}

func (s *CallSession) BoostPriority(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priority += delta
}

func (s *CallSession) SetAgent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentID = id
}

func (s *CallSession) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// MarkEscalated flips the secondary-routing flag exactly once. Later calls
// return false so a repeated wait-threshold check cannot move the session
// twice.
func (s *CallSession) MarkEscalated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.escalated {
		return false
	}
	s.escalated = true
	return true
}
