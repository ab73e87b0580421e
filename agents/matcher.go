package agents

import (
	"log/slog"
	"math/rand"
	"sync"

	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/queue"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

// Match is one successful pairing of a waiting session with an agent.
type Match struct {
	Session *types.CallSession
	Agent   types.Agent
}

// Matcher pairs queued sessions with ready agents. Match attempts for a
// given queue are serialized by a per-queue mutex; the agent claim itself
// is a single pool critical section. Together no agent can be matched to
// two sessions and no session can be claimed twice; there is no runtime
// double-claim recovery because the race cannot happen.
type Matcher struct {
	pool   *Pool
	queues *queue.Manager
	logger *slog.Logger

	mu      sync.Mutex
	matchMu map[string]*sync.Mutex
}

func NewMatcher(pool *Pool, queues *queue.Manager, logger *slog.Logger) *Matcher {
	return &Matcher{
		pool:    pool,
		queues:  queues,
		logger:  logger.With("subsystem", "matcher"),
		matchMu: make(map[string]*sync.Mutex),
	}
}

func (m *Matcher) queueLock(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.matchMu[name]
	if !ok {
		l = &sync.Mutex{}
		m.matchMu[name] = l
	}
	return l
}

// Match attempts one pairing for the queue. It returns nil when the queue
// is empty or no eligible agent is ready; the session simply keeps
// waiting — that is not an error.
func (m *Matcher) Match(q *config.Queue) *Match {
	l := m.queueLock(q.Name)
	l.Lock()
	defer l.Unlock()

	if m.queues.Len(q.Name) == 0 {
		return nil
	}

	agent, ok := m.pool.Claim(q.Skill, q.SelectionStrategy())
	if !ok {
		return nil
	}

	sess, ok := m.queues.TakeHead(q.Name)
	if !ok {
		// The last waiter abandoned between the length check and the
		// claim; hand the agent back.
		m.pool.Release(agent.ID)
		return nil
	}

	sess.SetAgent(agent.ID)
	m.pool.AttachSession(agent.ID, sess.ID)
	m.logger.Info("matched", "session", sess.ID, "agent", agent.ID, "queue", q.Name)
	return &Match{Session: sess, Agent: agent}
}

// pickAgent applies the queue's selection strategy over the eligible set.
// Ties on the primary metric fall back to ascending agent identifier so
// the choice is deterministic.
func pickAgent(candidates []*types.Agent, strategy types.Strategy) *types.Agent {
	if len(candidates) == 0 {
		return nil
	}
	if strategy == types.StrategyRandom {
		return candidates[rand.Intn(len(candidates))]
	}

	best := candidates[0]
	for _, a := range candidates[1:] {
		switch compare(a, best, strategy) {
		case -1:
			best = a
		case 0:
			if a.ID < best.ID {
				best = a
			}
		}
	}
	return best
}

// compare returns -1 when a beats b on the strategy's primary metric,
// 1 when b wins, 0 on a tie.
func compare(a, b *types.Agent, strategy types.Strategy) int {
	switch strategy {
	case types.StrategyLongestWaiting:
		// Earlier ready time means longer idle.
		if a.IdleSince.Before(b.IdleSince) {
			return -1
		}
		if b.IdleSince.Before(a.IdleSince) {
			return 1
		}
	case types.StrategyLongestAvgWait:
		ai, bi := a.AvgIdle(), b.AvgIdle()
		if ai > bi {
			return -1
		}
		if bi > ai {
			return 1
		}
	case types.StrategyFewestAnswered:
		if a.Answered < b.Answered {
			return -1
		}
		if b.Answered < a.Answered {
			return 1
		}
	case types.StrategyShortestAvgTalk:
		at, bt := a.AvgTalk(), b.AvgTalk()
		if at < bt {
			return -1
		}
		if bt < at {
			return 1
		}
	}
	return 0
}
