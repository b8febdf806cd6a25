// Package bus connects the service to the platform event bus. The consumer
// side is abstracted behind a small lifecycle interface so the delivery
// pipeline can run against a fake bus in tests.
package bus

import "context"

// Message is one event received from the bus.
type Message struct {
	RoutingKey string
	Body       []byte
}

// Disposition tells the bus what to do with a consumed message.
type Disposition int

const (
	// Ack acknowledges the message.
	Ack Disposition = iota
	// Discard negatively acknowledges without requeue (poison message).
	Discard
)

// HandlerFunc processes one message and decides its disposition.
type HandlerFunc func(ctx context.Context, msg Message) Disposition

// Bus is a connection-lifecycle manager for the event bus subscription.
type Bus interface {
	// Start opens the subscription and dispatches messages to handler until
	// ctx is cancelled or Stop is called.
	Start(ctx context.Context, handler HandlerFunc) error
	// Stop tears down the subscription and its connection.
	Stop() error
}
