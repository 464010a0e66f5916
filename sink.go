package relay

import "context"

// MessageID is an opaque handle to a message created through a Sink.
type MessageID string

// Sink is the chat channel a response is delivered to. Implementations are
// called sequentially for one response and need no locking for it.
type Sink interface {
	// Send creates a new message and returns its handle.
	Send(ctx context.Context, content string) (MessageID, error)
	// Edit replaces the content of a message previously created by Send.
	Edit(ctx context.Context, id MessageID, content string) error
}
