package router

import (
	"fmt"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/reporter"
	"github.com/Reverse-Call-Center/routing-engine/types"
	"github.com/Reverse-Call-Center/routing-engine/utils"
)

// overflowPriority is where a predictive call lands when no agent freed up
// within the hold bound. It outranks every normal tier so the live customer
// takes the next agent.
const overflowPriority = 8

// dialTimeout bounds how long an outbound leg may ring before the attempt
// is written off.
const dialTimeout = 45 * time.Second

// PredictiveDial originates an outbound call for a campaign before an agent
// is confirmed free, betting on near-term availability. The answered
// customer races agent availability: if no agent turns up within the
// configured hold bound, the session jumps to the overflow priority tier so
// dead air stays short.
func (c *Coordinator) PredictiveDial(campaignID, callerID, called, queueName string) (string, error) {
	snap := c.registry.Current()
	if _, ok := snap.Queue(queueName); !ok {
		return "", fmt.Errorf("unknown queue %q", queueName)
	}

	sess := types.NewCallSession(c.ctx, utils.NewSessionID(), types.DirectionOutbound, callerID, called)
	sess.CampaignID = campaignID
	c.sessions.Register(sess)

	if err := c.driver.Dial(sess.Context, sess.ID, callerID, called); err != nil {
		c.sessions.Unregister(sess.ID)
		sess.Cancel()
		return "", fmt.Errorf("originate %s: %w", called, err)
	}

	c.logger.Info("predictive dial started", "session", sess.ID,
		"campaign", campaignID, "called", called, "queue", queueName)
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(),
		Caller: callerID, Called: called,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runOutbound(sess, queueName)
	}()
	return sess.ID, nil
}

func (c *Coordinator) runOutbound(sess *types.CallSession, queueName string) {
	ring := time.NewTimer(dialTimeout)
	defer ring.Stop()

	for {
		select {
		case in := <-sess.Inputs:
			switch in.Kind {
			case types.InputAnswered:
				c.holdForAgent(sess, queueName)
				return
			case types.InputDisconnected:
				c.finish(sess, "no-answer")
				return
			}
		case <-ring.C:
			c.finish(sess, "no-answer")
			return
		case <-sess.Context.Done():
			c.finish(sess, "shutdown")
			return
		}
	}
}

// holdForAgent parks the live customer. The overflow timer fires once: if
// the session is still waiting after the hold bound, it re-enters its queue
// at the overflow tier.
func (c *Coordinator) holdForAgent(sess *types.CallSession, queueName string) {
	snap := c.registry.Current()
	sess.AnswerAt = c.clock()

	hold := c.settings.PredictiveHold()
	timer := time.AfterFunc(hold, func() {
		name, _, _ := sess.Queue()
		if name == "" {
			return
		}
		if !c.queues.Remove(sess, name) {
			return
		}
		if err := c.queues.Enqueue(sess, name, overflowPriority); err != nil {
			c.logger.Error("overflow requeue failed", "session", sess.ID, "error", err)
			return
		}
		c.logger.Warn("predictive hold exceeded, session moved to overflow tier",
			"session", sess.ID, "queue", name, "held", hold)
		c.matchQueue(name)
	})
	defer timer.Stop()

	c.enqueue(sess, snap, queueName, 5)
}
