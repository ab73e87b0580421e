// Package reporter emits routing lifecycle events to an external broker.
package reporter

import "context"

// Publisher is the outbound message contract. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
