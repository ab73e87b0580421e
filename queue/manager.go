// Package queue holds sessions waiting for an agent. Each named queue has
// its own lock, so traffic on one queue never stalls another.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/types"
)

var ErrUnknownQueue = errors.New("unknown queue")

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

type waiting struct {
	sess       *types.CallSession
	priority   int
	enqueuedAt time.Time
}

type namedQueue struct {
	mu      sync.Mutex
	name    string
	waiters []waiting
}

// Manager owns the waiting lists. Ordering is descending priority, then
// ascending entry time (FIFO within a priority tier). The matcher removes
// sessions under the same queue lock it claims agents under.
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*namedQueue
	clock  Clock
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		queues: make(map[string]*namedQueue),
		clock:  time.Now,
		logger: logger.With("subsystem", "queue"),
	}
}

// SetClock overrides the time source; test use only.
func (m *Manager) SetClock(c Clock) { m.clock = c }

// Declare registers a queue name. Safe to call repeatedly.
func (m *Manager) Declare(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = &namedQueue{name: name}
	}
}

func (m *Manager) get(name string) (*namedQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	return q, ok
}

// Enqueue inserts the session in priority order. The session records its
// queue membership inside the same queue critical section, preserving the
// one-queue-at-a-time invariant.
func (m *Manager) Enqueue(sess *types.CallSession, queueName string, priority int) error {
	q, ok := m.get(queueName)
	if !ok {
		return ErrUnknownQueue
	}
	if cur, _, _ := sess.Queue(); cur != "" {
		return fmt.Errorf("session %s already waiting in %s", sess.ID, cur)
	}

	now := m.clock()
	w := waiting{sess: sess, priority: priority, enqueuedAt: now}

	q.mu.Lock()
	idx := len(q.waiters)
	for i, other := range q.waiters {
		if priority > other.priority {
			idx = i
			break
		}
	}
	q.waiters = append(q.waiters, waiting{})
	copy(q.waiters[idx+1:], q.waiters[idx:])
	q.waiters[idx] = w
	sess.SetQueue(queueName, priority, now)
	depth := len(q.waiters)
	q.mu.Unlock()

	m.logger.Info("session enqueued", "session", sess.ID, "queue", queueName,
		"priority", priority, "depth", depth)
	return nil
}

// Requeue puts a session back preserving its original entry timestamp, so
// a no-answer bounce does not lose its place within the priority tier.
func (m *Manager) Requeue(sess *types.CallSession, queueName string, priority int, enqueuedAt time.Time) error {
	q, ok := m.get(queueName)
	if !ok {
		return ErrUnknownQueue
	}

	w := waiting{sess: sess, priority: priority, enqueuedAt: enqueuedAt}

	q.mu.Lock()
	idx := len(q.waiters)
	for i, other := range q.waiters {
		if priority > other.priority ||
			(priority == other.priority && enqueuedAt.Before(other.enqueuedAt)) {
			idx = i
			break
		}
	}
	q.waiters = append(q.waiters, waiting{})
	copy(q.waiters[idx+1:], q.waiters[idx:])
	q.waiters[idx] = w
	sess.SetQueue(queueName, priority, enqueuedAt)
	q.mu.Unlock()
	return nil
}

// Head returns the next session in line without removing it.
func (m *Manager) Head(queueName string) (*types.CallSession, bool) {
	q, ok := m.get(queueName)
	if !ok {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return nil, false
	}
	return q.waiters[0].sess, true
}

// Remove drops a session from its queue (abandon, match, escalation).
// Returns false if it was not queued there.
func (m *Manager) Remove(sess *types.CallSession, queueName string) bool {
	q, ok := m.get(queueName)
	if !ok {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(sess)
}

func (q *namedQueue) removeLocked(sess *types.CallSession) bool {
	for i, w := range q.waiters {
		if w.sess.ID == sess.ID {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			sess.ClearQueue()
			return true
		}
	}
	return false
}

// Len reports the number of waiting sessions.
func (m *Manager) Len(queueName string) int {
	q, ok := m.get(queueName)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// PeekWaitTime returns the head-of-line wait duration, zero when empty.
func (m *Manager) PeekWaitTime(queueName string) time.Duration {
	q, ok := m.get(queueName)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return 0
	}
	return m.clock().Sub(q.waiters[0].enqueuedAt)
}

// Overdue returns sessions that have waited longer than threshold, for
// secondary-routing re-evaluation. The caller decides what to do with
// them; idempotence is enforced on the session itself.
func (m *Manager) Overdue(queueName string, threshold time.Duration) []*types.CallSession {
	q, ok := m.get(queueName)
	if !ok || threshold <= 0 {
		return nil
	}
	cutoff := m.clock().Add(-threshold)

	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*types.CallSession
	for _, w := range q.waiters {
		if w.enqueuedAt.Before(cutoff) || w.enqueuedAt.Equal(cutoff) {
			out = append(out, w.sess)
		}
	}
	return out
}

// TakeHead pops the head-of-line session. The matcher calls this inside
// its per-queue match section after claiming an agent.
func (m *Manager) TakeHead(queueName string) (*types.CallSession, bool) {
	q, ok := m.get(queueName)
	if !ok {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return nil, false
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	w.sess.ClearQueue()
	return w.sess, true
}
