// Package session tracks live call sessions by identifier. Telephony
// events for unknown sessions are a protocol violation: logged by the
// caller and dropped, never fatal.
package session

import (
	"sync"

	"github.com/Reverse-Call-Center/routing-engine/types"
)

type Registry struct {
	mu    sync.RWMutex
	calls map[string]*types.CallSession
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*types.CallSession)}
}

func (r *Registry) Register(sess *types.CallSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[sess.ID] = sess
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

func (r *Registry) Get(id string) (*types.CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.calls[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

func (r *Registry) InState(state types.CallState) []*types.CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.CallSession
	for _, s := range r.calls {
		if s.State() == state {
			out = append(out, s)
		}
	}
	return out
}
