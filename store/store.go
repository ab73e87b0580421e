// Package store persists call detail records and routing lookup data.
package store

import (
	"context"
	"time"
)

// CDR is one finished call's detail record.
type CDR struct {
	SessionID  string
	Direction  string
	Caller     string
	Called     string
	QueueName  string
	AgentID    string
	CampaignID string

	StartTime  time.Time
	QueueEnter time.Time
	RingAt     time.Time
	AnswerAt   time.Time
	EndAt      time.Time

	TalkSeconds float64
	EndReason   string
}

// QueueEvent records an abandonment or escalation for reporting.
type QueueEvent struct {
	SessionID string
	QueueName string
	Kind      string // "abandoned" or "escalated"
	At        time.Time
	WaitedSec float64
}

// Repository is the reporting/lookup collaborator contract.
type Repository interface {
	// RouteValue resolves a route-select database lookup. Deterministic
	// for identical inputs: longest matching prefix rule wins.
	RouteValue(ctx context.Context, caller, called string) (string, error)

	WriteCDR(ctx context.Context, cdr *CDR) error
	WriteQueueEvent(ctx context.Context, ev *QueueEvent) error

	Ping(ctx context.Context) error
	Close() error
}
