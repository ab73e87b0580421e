// Package telephony is the boundary to the media/signaling stack. The core
// receives call-lifecycle events through Handler and issues commands
// through Driver; it never touches SIP or RTP itself.
package telephony

import (
	"context"
	"time"
)

// CollectSpec parametrizes a digit collection command.
type CollectSpec struct {
	Prompt     string
	MaxDigits  int
	Terminator string
	Timeout    time.Duration
}

// Driver is the command surface the routing core drives the telephony
// layer with. Implementations must not block unrelated sessions: a slow
// leg suspends only its own call.
type Driver interface {
	Play(ctx context.Context, sessionID, prompt string) error
	CollectDigits(ctx context.Context, sessionID string, spec CollectSpec) error
	Bridge(ctx context.Context, sessionID, agentID string) error
	Hold(ctx context.Context, sessionID string) error
	Unhold(ctx context.Context, sessionID string) error
	Transfer(ctx context.Context, sessionID, target string) error
	Conference(ctx context.Context, sessionID string, participants []string) error
	Hangup(ctx context.Context, sessionID, reason string) error

	// Dial originates an outbound leg for the prepared session
	// (predictive dialing). Answer arrives as an Answered event.
	Dial(ctx context.Context, sessionID, caller, called string) error
}

// CallStarted announces a new inbound leg.
type CallStarted struct {
	SessionID string
	Caller    string
	Called    string
}

// Handler receives call-lifecycle events from the telephony layer. The
// routing coordinator implements it.
type Handler interface {
	OnCallStarted(ev CallStarted)
	OnDTMF(sessionID, digit string)
	OnAnswered(sessionID string)
	OnDisconnected(sessionID, reason string)
}
