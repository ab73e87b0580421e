// Package router orchestrates the whole call lifecycle: it receives
// telephony events, drives each session's IVR flow, parks sessions in
// queues, pairs them with agents and records the outcome. Every call gets
// its own goroutine; one misbehaving leg never stalls the rest.
package router

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/agents"
	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/flow"
	"github.com/Reverse-Call-Center/routing-engine/queue"
	"github.com/Reverse-Call-Center/routing-engine/reporter"
	"github.com/Reverse-Call-Center/routing-engine/session"
	"github.com/Reverse-Call-Center/routing-engine/store"
	"github.com/Reverse-Call-Center/routing-engine/telephony"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

// Assignment is the payload pushed to an agent's desk when a session is
// offered to them.
type Assignment struct {
	SessionID string `json:"session_id"`
	Caller    string `json:"caller"`
	Called    string `json:"called"`
	Queue     string `json:"queue"`
}

// Notifier pushes assignments to agent desks. The HTTP/WebSocket surface
// implements it; a nil notifier is legal (pure SIP deployments).
type Notifier interface {
	NotifyAssignment(agentID string, a Assignment)
}

// offer is handed from the matcher path to the session's own goroutine,
// which stays the only writer of the session's lifecycle.
type offer struct {
	agent types.Agent
	queue string
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Settings *config.Settings
	Registry *config.Registry
	Engine   *flow.Engine
	Queues   *queue.Manager
	Pool     *agents.Pool
	Matcher  *agents.Matcher
	Driver   telephony.Driver
	Sessions *session.Registry
	Repo     store.Repository
	Events   *reporter.Reporter
	Logger   *slog.Logger
}

type Coordinator struct {
	settings *config.Settings
	registry *config.Registry
	engine   *flow.Engine
	queues   *queue.Manager
	pool     *agents.Pool
	matcher  *agents.Matcher
	driver   telephony.Driver
	sessions *session.Registry
	repo     store.Repository
	events   *reporter.Reporter
	logger   *slog.Logger

	notifier Notifier
	clock    func() time.Time

	mu      sync.Mutex
	pending map[string]chan offer // sessionID -> offer channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(d Deps) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		settings: d.Settings,
		registry: d.Registry,
		engine:   d.Engine,
		queues:   d.Queues,
		pool:     d.Pool,
		matcher:  d.Matcher,
		driver:   d.Driver,
		sessions: d.Sessions,
		repo:     d.Repo,
		events:   d.Events,
		logger:   d.Logger.With("subsystem", "router"),
		clock:    time.Now,
		pending:  make(map[string]chan offer),
		ctx:      ctx,
		cancel:   cancel,
	}
	for name := range d.Registry.Current().Queues.Queues {
		d.Queues.Declare(name)
	}
	return c
}

// SetNotifier installs the agent desk push surface.
func (c *Coordinator) SetNotifier(n Notifier) { c.notifier = n }

// SetClock overrides the time source; test use only.
func (c *Coordinator) SetClock(now func() time.Time) { c.clock = now }

// Start launches the background sweep that re-runs matching as penalties
// expire and moves overdue sessions to their escalation queues.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.sweep()
}

// Stop cancels all in-flight sessions and waits for their goroutines.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) sweep() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.escalateOverdue()
			c.matchAll()
		}
	}
}

// OnCallStarted implements telephony.Handler for inbound legs. The session
// captures the configuration snapshot current at creation and keeps it for
// its whole life, so a hot reload never changes an in-flight decision.
func (c *Coordinator) OnCallStarted(ev telephony.CallStarted) {
	sess := types.NewCallSession(c.ctx, ev.SessionID, types.DirectionInbound, ev.Caller, ev.Called)
	c.sessions.Register(sess)
	snap := c.registry.Current()

	c.logger.Info("call started", "session", sess.ID, "caller", ev.Caller, "called", ev.Called)
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(),
		Caller: ev.Caller, Called: ev.Called,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(sess, snap, c.settings.Routing.DefaultFlow)
	}()
}

// OnDTMF implements telephony.Handler. Digits for unknown sessions are a
// protocol violation: logged and dropped.
func (c *Coordinator) OnDTMF(sessionID, digit string) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.logger.Warn("dtmf for unknown session dropped", "session", sessionID, "digit", digit)
		return
	}
	c.deliver(sess, types.Input{Kind: types.InputDTMF, Digit: digit})
}

// OnAnswered implements telephony.Handler: the far end picked up. For a
// queued inbound call this is the agent leg; for a predictive outbound
// call it is the customer.
func (c *Coordinator) OnAnswered(sessionID string) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.logger.Warn("answer for unknown session dropped", "session", sessionID)
		return
	}
	c.deliver(sess, types.Input{Kind: types.InputAnswered})
}

// OnDisconnected implements telephony.Handler.
func (c *Coordinator) OnDisconnected(sessionID, reason string) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.logger.Warn("disconnect for unknown session dropped", "session", sessionID)
		return
	}
	c.deliver(sess, types.Input{Kind: types.InputDisconnected, Reason: reason})
}

func (c *Coordinator) deliver(sess *types.CallSession, in types.Input) {
	select {
	case sess.Inputs <- in:
	default:
		c.logger.Warn("session input buffer full, dropping",
			"session", sess.ID, "kind", in.Kind)
	}
}

// run drives one session from IVR entry to hangup.
func (c *Coordinator) run(sess *types.CallSession, snap *config.Snapshot, flowName string) {
	f, ok := snap.Flow(flowName)
	if !ok {
		c.logger.Error("default flow missing", "flow", flowName)
		c.finish(sess, "configuration")
		return
	}
	if err := sess.Transition(types.StateIVR); err != nil {
		c.finish(sess, "internal")
		return
	}

	nodeID := f.Entry
	for {
		if !sess.VisitNode(c.settings.Routing.MaxNodeVisits) {
			c.logger.Warn("node visit budget exhausted", "session", sess.ID, "flow", flowName)
			c.finish(sess, "loop")
			return
		}
		sess.SetNode(flowName, nodeID)

		action := c.engine.Evaluate(sess.Context, sess, snap, flowName, nodeID)
		next, done := c.apply(sess, snap, flowName, nodeID, action)
		if done {
			return
		}
		nodeID = next
	}
}

// apply executes one action. It returns the next node to evaluate, or
// done=true when the session left the IVR (queued, transferred, hung up).
func (c *Coordinator) apply(sess *types.CallSession, snap *config.Snapshot, flowName, nodeID string, action types.Action) (next string, done bool) {
	switch action.Kind {
	case types.ActionAdvance:
		return action.NextNode, false

	case types.ActionPlay:
		if err := c.driver.Play(sess.Context, sess.ID, action.Prompt); err != nil {
			c.logger.Warn("play failed", "session", sess.ID, "prompt", action.Prompt, "error", err)
		}
		return c.apply(sess, snap, flowName, nodeID,
			c.engine.Resolve(sess, snap, flowName, nodeID, ""))

	case types.ActionCollect:
		input, alive := c.collect(sess, action)
		if !alive {
			c.finish(sess, "abandoned")
			return "", true
		}
		return c.apply(sess, snap, flowName, nodeID,
			c.engine.Resolve(sess, snap, flowName, nodeID, input))

	case types.ActionEnqueue:
		c.enqueue(sess, snap, action.QueueName, action.Priority)
		return "", true

	case types.ActionTransfer:
		if err := sess.Transition(types.StateTransferring); err == nil {
			if err := c.driver.Transfer(sess.Context, sess.ID, action.Destination); err != nil {
				c.logger.Error("transfer failed", "session", sess.ID,
					"destination", action.Destination, "error", err)
				c.finish(sess, "transfer-failed")
				return "", true
			}
		}
		c.finish(sess, "transferred")
		return "", true

	case types.ActionConference:
		if err := c.driver.Conference(sess.Context, sess.ID, action.Participants); err != nil {
			c.logger.Error("conference failed", "session", sess.ID, "error", err)
		}
		c.finish(sess, "conference")
		return "", true

	case types.ActionHangup:
		c.finish(sess, action.Reason)
		return "", true
	}

	c.finish(sess, "internal")
	return "", true
}

// collect plays the prompt and gathers digits from the session's input
// channel. The inter-digit timer restarts on every keypress; collection
// ends at max digits, on the terminator, or when the timer fires. A
// timeout returns whatever was entered so far (possibly nothing), which
// the flow resolves through its default edge.
func (c *Coordinator) collect(sess *types.CallSession, action types.Action) (digits string, alive bool) {
	spec := telephony.CollectSpec{
		Prompt:     action.Prompt,
		MaxDigits:  action.MaxDigits,
		Terminator: action.Terminator,
		Timeout:    action.Timeout,
	}
	sess.ResetDigits()
	if err := c.driver.CollectDigits(sess.Context, sess.ID, spec); err != nil {
		c.logger.Warn("collect failed", "session", sess.ID, "error", err)
		return "", true
	}

	timer := time.NewTimer(action.Timeout)
	defer timer.Stop()

	for {
		select {
		case in := <-sess.Inputs:
			switch in.Kind {
			case types.InputDisconnected:
				return "", false
			case types.InputDTMF:
				if in.Digit == action.Terminator && action.Terminator != "" {
					return sess.Digits(), true
				}
				sess.AppendDigit(in.Digit)
				if len(sess.Digits()) >= action.MaxDigits {
					return sess.Digits(), true
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(action.Timeout)
			}
		case <-timer.C:
			return sess.Digits(), true
		case <-sess.Context.Done():
			return "", false
		}
	}
}

// enqueue parks the session and hands it to the waiting loop.
func (c *Coordinator) enqueue(sess *types.CallSession, snap *config.Snapshot, queueName string, priority int) {
	if err := sess.Transition(types.StateQueued); err != nil {
		c.logger.Error("cannot queue session", "session", sess.ID, "error", err)
		c.finish(sess, "internal")
		return
	}
	if err := c.queues.Enqueue(sess, queueName, priority); err != nil {
		c.logger.Error("enqueue failed", "session", sess.ID, "queue", queueName, "error", err)
		c.finish(sess, "configuration")
		return
	}
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(), Queue: queueName,
	})

	ch := make(chan offer, 1)
	c.mu.Lock()
	c.pending[sess.ID] = ch
	c.mu.Unlock()

	c.matchQueue(queueName)
	c.waitInQueue(sess, snap, ch)
}

// waitInQueue blocks the session's goroutine until an agent offer arrives
// or the caller abandons. Hold music and position announcements play on
// the caller leg while waiting.
func (c *Coordinator) waitInQueue(sess *types.CallSession, snap *config.Snapshot, ch chan offer) {
	defer func() {
		c.mu.Lock()
		delete(c.pending, sess.ID)
		c.mu.Unlock()
	}()

	c.playQueueAudio(sess, snap)
	announce := c.announceTicker(sess, snap)
	defer announce.Stop()

	for {
		select {
		case o := <-ch:
			if c.connect(sess, snap, o) {
				return
			}
			// No answer: the session is queued again, keep waiting.
			c.playQueueAudio(sess, snap)

		case in := <-sess.Inputs:
			if in.Kind != types.InputDisconnected {
				continue
			}
			c.abandon(sess, drainOffer(ch))
			return

		case <-announce.C:
			c.playAnnouncement(sess, snap)

		case <-sess.Context.Done():
			c.abandon(sess, drainOffer(ch))
			return
		}
	}
}

// drainOffer drains a racing offer so an abandoning session can hand the claimed
// agent back to the pool.
func drainOffer(ch chan offer) *offer {
	select {
	case o := <-ch:
		return &o
	default:
		return nil
	}
}

func (c *Coordinator) abandon(sess *types.CallSession, racing *offer) {
	name, _, enqueuedAt := sess.Queue()
	waited := c.clock().Sub(enqueuedAt).Seconds()

	// Remove can miss even with a queue name in hand: the matcher may pop
	// the session between the Queue() read above and this call. That pop
	// means an offer is in flight, so fall through to the wait below.
	removed := name != "" && c.queues.Remove(sess, name)
	if !removed && racing == nil {
		// Popped by the matcher but the offer has not landed yet; wait
		// for it so the agent is not stranded busy.
		c.mu.Lock()
		ch := c.pending[sess.ID]
		c.mu.Unlock()
		if ch != nil {
			select {
			case o := <-ch:
				racing = &o
			case <-time.After(time.Second):
			}
		}
	}
	if racing != nil {
		name = racing.queue
		c.pool.AttachSession(racing.agent.ID, "")
		c.pool.Release(racing.agent.ID)
	}
	if name == "" {
		name = sess.LastQueue()
	}

	c.logger.Info("caller abandoned", "session", sess.ID, "queue", name, "waited_sec", waited)
	c.recordQueueEvent(sess, name, "abandoned", waited)
	c.finish(sess, "abandoned")
}

// connect rings the chosen agent. Returns true when the session reached a
// terminal point (connected-then-ended, or abandoned); false when the
// agent did not answer and the session went back to its queue.
func (c *Coordinator) connect(sess *types.CallSession, snap *config.Snapshot, o offer) bool {
	if err := sess.Transition(types.StateConnecting); err != nil {
		c.pool.AttachSession(o.agent.ID, "")
		c.pool.Release(o.agent.ID)
		return true
	}
	sess.RingAt = c.clock()
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(),
		Queue: o.queue, AgentID: o.agent.ID,
	})
	if c.notifier != nil {
		c.notifier.NotifyAssignment(o.agent.ID, Assignment{
			SessionID: sess.ID, Caller: sess.Caller, Called: sess.Called, Queue: o.queue,
		})
	}

	ringTimer := time.NewTimer(c.settings.RingTimeout())
	defer ringTimer.Stop()

	for {
		select {
		case in := <-sess.Inputs:
			switch in.Kind {
			case types.InputAnswered:
				c.bridge(sess, snap, o)
				return true
			case types.InputDisconnected:
				c.pool.AttachSession(o.agent.ID, "")
				c.pool.Release(o.agent.ID)
				waited := c.clock().Sub(sess.QueueEnter).Seconds()
				c.recordQueueEvent(sess, o.queue, "abandoned", waited)
				c.finish(sess, "abandoned")
				return true
			}

		case <-ringTimer.C:
			c.noAnswer(sess, o)
			return false

		case <-sess.Context.Done():
			c.pool.AttachSession(o.agent.ID, "")
			c.pool.Release(o.agent.ID)
			c.finish(sess, "shutdown")
			return true
		}
	}
}

// noAnswer handles a ring timeout: the agent is penalized out of rotation
// and the caller goes back to the head region of its queue, one priority
// tier up, keeping its original entry time.
func (c *Coordinator) noAnswer(sess *types.CallSession, o offer) {
	penalty := c.clock().Add(c.settings.NoAnswerPenalty())
	c.pool.Penalize(o.agent.ID, penalty)
	c.events.AgentState(c.ctx, reporter.AgentEvent{
		AgentID: o.agent.ID, State: types.AgentAfterCall.String(),
	})

	sess.SetAgent("")
	sess.RingAt = time.Time{}
	if err := sess.Transition(types.StateQueued); err != nil {
		c.finish(sess, "internal")
		return
	}
	_, prio, enqueuedAt := sess.Queue()
	if err := c.queues.Requeue(sess, o.queue, prio+1, enqueuedAt); err != nil {
		c.finish(sess, "configuration")
		return
	}
	c.logger.Warn("agent did not answer, session requeued",
		"session", sess.ID, "agent", o.agent.ID, "queue", o.queue, "priority", prio+1)
	c.matchQueue(o.queue)
}

// bridge joins the caller and the answered agent and holds the session's
// goroutine until the call ends.
func (c *Coordinator) bridge(sess *types.CallSession, snap *config.Snapshot, o offer) {
	if q, ok := snap.Queue(o.queue); ok && q.ConnectWhisper != "" {
		if err := c.driver.Play(sess.Context, sess.ID, q.ConnectWhisper); err != nil {
			c.logger.Warn("whisper failed", "session", sess.ID, "error", err)
		}
	}
	if err := c.driver.Bridge(sess.Context, sess.ID, o.agent.ID); err != nil {
		c.logger.Error("bridge failed", "session", sess.ID, "agent", o.agent.ID, "error", err)
		c.pool.FinishCall(o.agent.ID, 0)
		c.finish(sess, "bridge-failed")
		return
	}

	sess.AnswerAt = c.clock()
	c.pool.RecordAnswer(o.agent.ID)
	if err := sess.Transition(types.StateConnected); err != nil {
		c.pool.FinishCall(o.agent.ID, 0)
		c.finish(sess, "internal")
		return
	}
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(),
		Queue: o.queue, AgentID: o.agent.ID,
		RingSec: sess.AnswerAt.Sub(sess.RingAt).Seconds(),
	})

	for {
		select {
		case in := <-sess.Inputs:
			switch in.Kind {
			case types.InputTransfer:
				talk := c.clock().Sub(sess.AnswerAt)
				c.pool.FinishCall(o.agent.ID, talk)
				c.events.AgentState(c.ctx, reporter.AgentEvent{
					AgentID: o.agent.ID, State: types.AgentAfterCall.String(),
				})
				c.transferOut(sess, snap, o, in.Target)
				return
			case types.InputDisconnected:
				talk := c.clock().Sub(sess.AnswerAt)
				c.pool.FinishCall(o.agent.ID, talk)
				c.events.AgentState(c.ctx, reporter.AgentEvent{
					AgentID: o.agent.ID, State: types.AgentAfterCall.String(),
				})
				reason := in.Reason
				if reason == "" {
					reason = "completed"
				}
				c.finish(sess, reason)
				return
			}
		case <-sess.Context.Done():
			talk := c.clock().Sub(sess.AnswerAt)
			c.pool.FinishCall(o.agent.ID, talk)
			c.finish(sess, "shutdown")
			return
		}
	}
}

// transferOut moves a connected caller off its agent: queue targets park
// the caller again, agent targets ring the named agent directly. The
// previous agent has already been put in after-call by the bridge loop.
func (c *Coordinator) transferOut(sess *types.CallSession, snap *config.Snapshot, prev offer, destination string) {
	target, err := config.ParseTarget(destination)
	if err != nil {
		c.logger.Error("bad transfer target", "session", sess.ID, "target", destination, "error", err)
		c.finish(sess, "configuration")
		return
	}

	sess.SetAgent("")
	sess.RingAt = time.Time{}
	sess.AnswerAt = time.Time{}

	switch target.Kind {
	case config.TargetQueue:
		c.enqueue(sess, snap, target.Queue, target.Priority)

	case config.TargetNode:
		agent, ok := c.pool.ClaimByID(target.Node)
		if !ok {
			// The target stopped being ready since the transfer was
			// accepted; park the caller back in its original queue.
			_, prio, _ := sess.Queue()
			c.enqueue(sess, snap, prev.queue, prio)
			return
		}
		sess.SetAgent(agent.ID)
		c.pool.AttachSession(agent.ID, sess.ID)

		ch := make(chan offer, 1)
		c.mu.Lock()
		c.pending[sess.ID] = ch
		c.mu.Unlock()
		if c.connect(sess, snap, offer{agent: agent, queue: prev.queue}) {
			c.mu.Lock()
			delete(c.pending, sess.ID)
			c.mu.Unlock()
			return
		}
		// No answer from the named agent: the session is back in its
		// original queue, keep waiting there.
		c.waitInQueue(sess, snap, ch)

	default:
		c.finish(sess, "configuration")
	}
}

func (c *Coordinator) playQueueAudio(sess *types.CallSession, snap *config.Snapshot) {
	name, _, _ := sess.Queue()
	q, ok := snap.Queue(name)
	if !ok || q.HoldMusic == "" {
		return
	}
	go func() {
		if err := c.driver.Play(sess.Context, sess.ID, q.HoldMusic); err != nil {
			c.logger.Debug("hold music stopped", "session", sess.ID, "error", err)
		}
	}()
}

func (c *Coordinator) playAnnouncement(sess *types.CallSession, snap *config.Snapshot) {
	name, _, _ := sess.Queue()
	q, ok := snap.Queue(name)
	if !ok || q.AnnouncePrompt == "" {
		return
	}
	go func() {
		if err := c.driver.Play(sess.Context, sess.ID, q.AnnouncePrompt); err != nil {
			c.logger.Debug("announcement failed", "session", sess.ID, "error", err)
		}
	}()
}

func (c *Coordinator) announceTicker(sess *types.CallSession, snap *config.Snapshot) *time.Ticker {
	name, _, _ := sess.Queue()
	interval := time.Hour
	if q, ok := snap.Queue(name); ok && q.AnnounceEvery > 0 {
		interval = time.Duration(q.AnnounceEvery) * time.Second
	}
	return time.NewTicker(interval)
}

// matchQueue runs pairings for one queue until either side is exhausted.
func (c *Coordinator) matchQueue(name string) {
	q, ok := c.registry.Current().Queue(name)
	if !ok {
		return
	}
	for {
		m := c.matcher.Match(q)
		if m == nil {
			return
		}
		c.mu.Lock()
		ch := c.pending[m.Session.ID]
		c.mu.Unlock()
		if ch == nil {
			// The waiting goroutine is gone; hand the agent back.
			c.pool.AttachSession(m.Agent.ID, "")
			c.pool.Release(m.Agent.ID)
			continue
		}
		ch <- offer{agent: m.Agent, queue: q.Name}
	}
}

func (c *Coordinator) matchAll() {
	for name := range c.registry.Current().Queues.Queues {
		c.matchQueue(name)
	}
}

// escalateOverdue moves sessions past their queue's wait threshold into
// the escalation queue, exactly once per session.
func (c *Coordinator) escalateOverdue() {
	snap := c.registry.Current()
	for name, q := range snap.Queues.Queues {
		if q.EscalateAfter <= 0 {
			continue
		}
		for _, sess := range c.queues.Overdue(name, q.EscalateThreshold()) {
			if !sess.MarkEscalated() {
				continue
			}
			if !c.queues.Remove(sess, name) {
				continue
			}
			_, prio, _ := sess.Queue()
			waited := c.clock().Sub(sess.QueueEnter).Seconds()
			if err := c.queues.Enqueue(sess, q.EscalateTo, prio+q.EscalateBoost); err != nil {
				c.logger.Error("escalation enqueue failed", "session", sess.ID,
					"queue", q.EscalateTo, "error", err)
				continue
			}
			c.logger.Info("session escalated", "session", sess.ID,
				"from", name, "to", q.EscalateTo, "waited_sec", waited)
			c.recordQueueEvent(sess, name, "escalated", waited)
			c.matchQueue(q.EscalateTo)
		}
	}
}

func (c *Coordinator) recordQueueEvent(sess *types.CallSession, queueName, kind string, waited float64) {
	c.events.QueueActivity(c.ctx, reporter.QueueEvent{
		SessionID: sess.ID, Queue: queueName, Kind: kind, WaitedSec: waited,
	})
	ev := &store.QueueEvent{
		SessionID: sess.ID, QueueName: queueName, Kind: kind,
		At: c.clock(), WaitedSec: waited,
	}
	if err := c.repo.WriteQueueEvent(c.ctx, ev); err != nil {
		c.logger.Error("queue event write failed", "session", sess.ID, "error", err)
	}
}

// finish terminates the session: hangs up the leg, publishes the final
// state, writes the detail record and releases the registry slot.
func (c *Coordinator) finish(sess *types.CallSession, reason string) {
	if err := sess.Transition(types.StateEnded); err != nil {
		c.logger.Error("end transition failed", "session", sess.ID, "error", err)
	}
	sess.EndAt = c.clock()
	sess.EndReason = reason

	if !isRemoteHangup(reason) {
		if err := c.driver.Hangup(context.Background(), sess.ID, reason); err != nil {
			c.logger.Debug("hangup failed", "session", sess.ID, "error", err)
		}
	}

	var ringSec, talkSec float64
	if !sess.RingAt.IsZero() && !sess.AnswerAt.IsZero() {
		ringSec = sess.AnswerAt.Sub(sess.RingAt).Seconds()
	}
	if !sess.AnswerAt.IsZero() {
		talkSec = sess.EndAt.Sub(sess.AnswerAt).Seconds()
	}

	queueName := sess.LastQueue()
	c.events.CallState(c.ctx, reporter.CallEvent{
		SessionID: sess.ID, State: sess.State().String(),
		Caller: sess.Caller, Called: sess.Called,
		Queue: queueName, AgentID: sess.AgentID(),
		RingSec: ringSec, TalkSec: talkSec, Reason: reason,
	})

	cdr := &store.CDR{
		SessionID:   sess.ID,
		Direction:   sess.Direction.String(),
		Caller:      sess.Caller,
		Called:      sess.Called,
		QueueName:   queueName,
		AgentID:     sess.AgentID(),
		CampaignID:  sess.CampaignID,
		StartTime:   sess.StartTime,
		QueueEnter:  sess.QueueEnter,
		RingAt:      sess.RingAt,
		AnswerAt:    sess.AnswerAt,
		EndAt:       sess.EndAt,
		TalkSeconds: talkSec,
		EndReason:   reason,
	}
	if err := c.repo.WriteCDR(context.Background(), cdr); err != nil {
		c.logger.Error("cdr write failed", "session", sess.ID, "error", err)
	}

	c.sessions.Unregister(sess.ID)
	sess.Cancel()
	c.logger.Info("call ended", "session", sess.ID, "reason", reason,
		"talk_sec", talkSec)
}

// isRemoteHangup reports whether the far end already tore the leg down,
// in which case a hangup command would target a dead dialog.
func isRemoteHangup(reason string) bool {
	return reason == "abandoned" || reason == "completed" ||
		strings.HasPrefix(reason, "remote")
}
