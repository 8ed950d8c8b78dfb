package github

import (
	"time"

	"go.uber.org/zap"
)

// Event is a validated GitHub webhook delivery.
type Event struct {
	DeliveryID string
	// Type is the value of the X-GitHub-Event header.
	Type string
	// JSON is the raw payload, it is used to evaluate event filters.
	JSON []byte
	// Event is the payload parsed by github.ParseWebHook().
	Event any
	// ReceivedAt is when the HTTP request was accepted.
	ReceivedAt time.Time
	LogFields  []zap.Field
}

// QueueDuration returns how long ago the event was received.
func (e *Event) QueueDuration() time.Duration {
	if e.ReceivedAt.IsZero() {
		return 0
	}

	return time.Since(e.ReceivedAt)
}
