package types

import "time"

type AgentState int

const (
	AgentSignedOut AgentState = iota
	AgentReady
	AgentBusy
	AgentAfterCall
	AgentOnBreak
)

func (s AgentState) String() string {
	switch s {
	case AgentSignedOut:
		return "signed-out"
	case AgentReady:
		return "ready"
	case AgentBusy:
		return "busy"
	case AgentAfterCall:
		return "after-call"
	case AgentOnBreak:
		return "on-break"
	}
	return "unknown"
}

// Agent is the pool's record for one signed-in agent. All fields are owned
// by the agent pool and mutated only under its lock; callers outside the
// pool work with copies.
type Agent struct {
	ID     string
	Name   string
	Skills map[string]bool

	State     AgentState
	SessionID string

	// Selection-strategy inputs.
	Answered      int
	TotalTalk     time.Duration
	TotalIdle     time.Duration
	IdlePeriods   int
	IdleSince     time.Time
	PenaltyUntil  time.Time
	LastCallEnded time.Time
}

func (a *Agent) HasSkill(skill string) bool {
	if skill == "" {
		return true
	}
	return a.Skills[skill]
}

// AvgIdle is the agent's historical mean idle stretch between calls.
func (a *Agent) AvgIdle() time.Duration {
	if a.IdlePeriods == 0 {
		return 0
	}
	return a.TotalIdle / time.Duration(a.IdlePeriods)
}

// AvgTalk is the mean talk duration across answered calls.
func (a *Agent) AvgTalk() time.Duration {
	if a.Answered == 0 {
		return 0
	}
	return a.TotalTalk / time.Duration(a.Answered)
}
