// Package broker moves canonical message events between server processes.
// The event pipeline publishes through the Publisher interface and stays
// transport-agnostic; each process runs one Consumer that feeds the bridge.
package broker

import "context"

// Publisher publishes canonical events under a topic-style routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Handler processes one consumed event body. A non-nil error drops the
// message without requeue; it is never retried.
type Handler func(ctx context.Context, body []byte) error

// Consumer owns a process-exclusive subscription to the event stream.
type Consumer interface {
	// Start begins consuming in the background.
	Start(handler Handler) error
	// Stop stops accepting new messages, waits for in-flight handler calls
	// to finish, then releases the subscription, in that order.
	Stop(ctx context.Context) error
}

// RoutingKeyPattern builds the wildcard binding for one event kind, matching
// conversation.<id>.<kind> keys for every conversation.
func RoutingKeyPattern(kind string) string {
	return "conversation.*." + kind
}
