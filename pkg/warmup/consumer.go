// Package warmup pre-populates the cache from a stream of entity names, so
// popular lookups are served without a remote round trip.
package warmup

import (
	"context"
	"time"
)

// Message is one warm-up request read from the broker.
type Message struct {
	ID          string
	Payload     []byte
	Attributes  map[string]string
	PublishTime time.Time

	// Ack marks the message as handled.
	Ack func()
	// Nack asks the broker to redeliver the message.
	Nack func()
}

// Consumer is a source of warm-up messages.
type Consumer interface {
	// Messages returns the channel workers receive from. It is closed when
	// the consumer stops.
	Messages() <-chan Message
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Done is closed once the consumer has fully shut down.
	Done() <-chan struct{}
}
