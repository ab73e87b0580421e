package config

import (
	"fmt"
	"sync/atomic"
)

// Snapshot is one immutable, cross-validated configuration generation.
// Sessions capture the snapshot current when they are created (or at a
// secondary-routing re-evaluation point) and keep it for the evaluation,
// so a hot reload can never corrupt an in-flight decision.
type Snapshot struct {
	Flows  *FlowDoc
	Queues *QueueDoc
}

// Flow returns the named flow graph, if present.
func (s *Snapshot) Flow(name string) (*Flow, bool) {
	f, ok := s.Flows.Flows[name]
	return f, ok
}

// Queue returns the named queue definition, if present.
func (s *Snapshot) Queue(name string) (*Queue, bool) {
	q, ok := s.Queues.Queues[name]
	return q, ok
}

// Registry holds the current configuration snapshot and swaps it
// atomically on reload.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry builds a registry from already-parsed documents, running the
// cross-document checks (queue references inside flow edges).
func NewRegistry(flows *FlowDoc, queues *QueueDoc) (*Registry, error) {
	snap := &Snapshot{Flows: flows, Queues: queues}
	if err := crossValidate(snap); err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(snap)
	return r, nil
}

// Current returns the active snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap validates and installs a new snapshot. In-flight sessions keep the
// snapshot they started with.
func (r *Registry) Swap(flows *FlowDoc, queues *QueueDoc) error {
	snap := &Snapshot{Flows: flows, Queues: queues}
	if err := crossValidate(snap); err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

// ValidateDefaultFlow checks the routing entry point against a parsed flow
// document. An unknown flow name is fatal at load, not at the first call,
// so it runs wherever settings and flow config meet: startup and reload.
func ValidateDefaultFlow(flows *FlowDoc, name string) error {
	if _, ok := flows.Flows[name]; !ok {
		return fmt.Errorf("default flow %q is not defined", name)
	}
	return nil
}

func crossValidate(s *Snapshot) error {
	check := func(section, to string) error {
		t, err := ParseTarget(to)
		if err != nil {
			return errf(section, "%v", err)
		}
		if t.Kind == TargetQueue {
			if _, ok := s.Queues.Queues[t.Queue]; !ok {
				return errf(section, "unknown queue reference %q", t.Queue)
			}
		}
		return nil
	}

	for name, f := range s.Flows.Flows {
		section := fmt.Sprintf("flow %s", name)
		if f.Fallback != "" {
			if err := check(section, f.Fallback); err != nil {
				return err
			}
		}
		for id, n := range f.Nodes {
			for _, e := range n.Edges {
				if err := check(fmt.Sprintf("%s node %s", section, id), e.To); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
