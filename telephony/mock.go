package telephony

import (
	"context"
	"strings"
	"sync"
)

// Command records one driver call for test assertions.
type Command struct {
	Kind      string
	SessionID string
	Arg       string
}

// Mock records all commands and never touches a network. Tests deliver
// events by calling the Handler themselves.
type Mock struct {
	mu       sync.Mutex
	commands []Command
	errs     map[string]error // per command kind
}

func NewMock() *Mock {
	return &Mock{errs: make(map[string]error)}
}

// FailWith makes every subsequent command of the given kind return err.
func (m *Mock) FailWith(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind] = err
}

func (m *Mock) record(kind, sessionID, arg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, Command{Kind: kind, SessionID: sessionID, Arg: arg})
	return m.errs[kind]
}

// Commands returns a copy of everything recorded so far.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// CommandsFor filters recorded commands by session.
func (m *Mock) CommandsFor(sessionID string) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Command
	for _, c := range m.commands {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out
}

func (m *Mock) Play(_ context.Context, sessionID, prompt string) error {
	return m.record("play", sessionID, prompt)
}

func (m *Mock) CollectDigits(_ context.Context, sessionID string, spec CollectSpec) error {
	return m.record("collect", sessionID, spec.Prompt)
}

func (m *Mock) Bridge(_ context.Context, sessionID, agentID string) error {
	return m.record("bridge", sessionID, agentID)
}

func (m *Mock) Hold(_ context.Context, sessionID string) error {
	return m.record("hold", sessionID, "")
}

func (m *Mock) Unhold(_ context.Context, sessionID string) error {
	return m.record("unhold", sessionID, "")
}

func (m *Mock) Transfer(_ context.Context, sessionID, target string) error {
	return m.record("transfer", sessionID, target)
}

func (m *Mock) Conference(_ context.Context, sessionID string, participants []string) error {
	return m.record("conference", sessionID, strings.Join(participants, ","))
}

func (m *Mock) Hangup(_ context.Context, sessionID, reason string) error {
	return m.record("hangup", sessionID, reason)
}

func (m *Mock) Dial(_ context.Context, sessionID, caller, called string) error {
	return m.record("dial", sessionID, called)
}
