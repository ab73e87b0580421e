package router

import (
	"fmt"

	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/reporter"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

// AgentSignIn registers an agent from the configured skill mapping. Agents
// start on-break; an explicit ready action makes them matchable.
func (c *Coordinator) AgentSignIn(id string) error {
	snap := c.registry.Current()
	for _, def := range snap.Queues.Agents {
		if def.ID == id {
			c.pool.SignIn(def.ID, def.Name, def.Skills)
			c.events.AgentState(c.ctx, reporter.AgentEvent{
				AgentID: id, State: types.AgentOnBreak.String(),
			})
			return nil
		}
	}
	return fmt.Errorf("agent %s is not configured", id)
}

func (c *Coordinator) AgentSignOut(id string) error {
	a, ok := c.pool.Get(id)
	if !ok {
		return fmt.Errorf("agent %s is not signed in", id)
	}
	if a.State == types.AgentBusy {
		return fmt.Errorf("agent %s has an active call", id)
	}
	c.pool.SignOut(id)
	c.events.AgentState(c.ctx, reporter.AgentEvent{
		AgentID: id, State: types.AgentSignedOut.String(),
	})
	return nil
}

// SetAgentState applies a desk action. Moving to ready immediately re-runs
// matching, so a waiting caller connects without waiting for the sweep.
func (c *Coordinator) SetAgentState(id string, state types.AgentState) error {
	if err := c.pool.SetState(id, state); err != nil {
		return err
	}
	c.events.AgentState(c.ctx, reporter.AgentEvent{AgentID: id, State: state.String()})
	if state == types.AgentReady {
		c.matchAll()
	}
	return nil
}

// AgentAnswered signals that the agent accepted the session offered to
// them. SIP-registered agents answer through the telephony layer instead.
func (c *Coordinator) AgentAnswered(id string) error {
	a, ok := c.pool.Get(id)
	if !ok {
		return fmt.Errorf("agent %s is not signed in", id)
	}
	if a.SessionID == "" {
		return fmt.Errorf("agent %s has no pending assignment", id)
	}
	sess, ok := c.sessions.Get(a.SessionID)
	if !ok {
		return fmt.Errorf("session %s is gone", a.SessionID)
	}
	c.deliver(sess, types.Input{Kind: types.InputAnswered})
	return nil
}

// HoldCall parks a connected caller.
func (c *Coordinator) HoldCall(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	if err := sess.Transition(types.StateHold); err != nil {
		return err
	}
	return c.driver.Hold(sess.Context, sessionID)
}

// ResumeCall takes a held caller back.
func (c *Coordinator) ResumeCall(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	if err := sess.Transition(types.StateConnected); err != nil {
		return err
	}
	return c.driver.Unhold(sess.Context, sessionID)
}

// StartConsult holds the caller while the agent confers off-call.
func (c *Coordinator) StartConsult(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	if err := sess.Transition(types.StateConsult); err != nil {
		return err
	}
	return c.driver.Hold(sess.Context, sessionID)
}

// EndConsult returns a consulting session to the caller.
func (c *Coordinator) EndConsult(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	if err := sess.Transition(types.StateConnected); err != nil {
		return err
	}
	return c.driver.Unhold(sess.Context, sessionID)
}

// TransferCall hands a connected caller to another queue, another agent,
// or an external line. Queue and agent targets re-enter the lifecycle at
// queued and connecting respectively; a dial target leaves the system once
// the telephony layer reports our leg released.
func (c *Coordinator) TransferCall(sessionID, destination string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	target, err := config.ParseTarget(destination)
	if err != nil {
		return err
	}

	switch target.Kind {
	case config.TargetDial:
		if err := sess.Transition(types.StateTransferring); err != nil {
			return err
		}
		return c.driver.Transfer(sess.Context, sessionID, target.Dest)
	case config.TargetQueue:
		if _, ok := c.registry.Current().Queue(target.Queue); !ok {
			return fmt.Errorf("unknown queue %s", target.Queue)
		}
	case config.TargetNode:
		a, ok := c.pool.Get(target.Node)
		if !ok {
			return fmt.Errorf("unknown agent %s", target.Node)
		}
		if a.State != types.AgentReady {
			return fmt.Errorf("agent %s is %s", target.Node, a.State)
		}
	}

	if err := sess.Transition(types.StateTransferring); err != nil {
		return err
	}
	c.deliver(sess, types.Input{Kind: types.InputTransfer, Target: destination})
	return nil
}

// QueueStats is a point-in-time view of one queue for the control surface.
type QueueStats struct {
	Name        string  `json:"name"`
	Depth       int     `json:"depth"`
	HeadWaitSec float64 `json:"head_wait_sec"`
	ReadyAgents int     `json:"ready_agents"`
}

// Stats reports depth, head-of-line wait and ready-agent count per queue.
func (c *Coordinator) Stats() []QueueStats {
	snap := c.registry.Current()
	out := make([]QueueStats, 0, len(snap.Queues.Queues))
	for name, q := range snap.Queues.Queues {
		out = append(out, QueueStats{
			Name:        name,
			Depth:       c.queues.Len(name),
			HeadWaitSec: c.queues.PeekWaitTime(name).Seconds(),
			ReadyAgents: c.pool.ReadyCount(q.Skill),
		})
	}
	return out
}
