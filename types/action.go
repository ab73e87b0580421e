package types

import "time"

// ActionKind is the closed set of outcomes a flow node evaluation can
// produce.
type ActionKind int

const (
	// ActionAdvance moves the session to the next node with no side effect.
	ActionAdvance ActionKind = iota
	// ActionPlay plays a prompt and then advances (voice-broadcast).
	ActionPlay
	// ActionCollect plays a prompt and waits for caller input; the result
	// is fed back through Engine.Resolve.
	ActionCollect
	// ActionEnqueue parks the session in a named queue.
	ActionEnqueue
	// ActionTransfer hands the session to an external destination.
	ActionTransfer
	// ActionConference joins the session with additional participants.
	ActionConference
	// ActionHangup terminates the session.
	ActionHangup
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdvance:
		return "advance"
	case ActionPlay:
		return "play"
	case ActionCollect:
		return "collect"
	case ActionEnqueue:
		return "enqueue"
	case ActionTransfer:
		return "transfer"
	case ActionConference:
		return "conference"
	case ActionHangup:
		return "hangup"
	}
	return "unknown"
}

// Action is the tagged result of evaluating a flow node. Only the fields
// relevant to Kind are set.
type Action struct {
	Kind ActionKind

	// ActionAdvance / ActionPlay / ActionCollect
	NextNode string
	Prompt   string

	// ActionCollect
	MaxDigits  int
	Terminator string
	Timeout    time.Duration
	VarName    string

	// ActionEnqueue
	QueueName string
	Priority  int

	// ActionTransfer
	Destination string

	// ActionConference
	Participants []string

	// ActionHangup
	Reason string
}

func Advance(next string) Action  { return Action{Kind: ActionAdvance, NextNode: next} }
func Hangup(reason string) Action { return Action{Kind: ActionHangup, Reason: reason} }

func Enqueue(queue string, priority int) Action {
	return Action{Kind: ActionEnqueue, QueueName: queue, Priority: priority}
}

func Transfer(dest string) Action {
	return Action{Kind: ActionTransfer, Destination: dest}
}
