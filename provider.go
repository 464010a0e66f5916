package relay

import (
	"context"
	"time"
)

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, receiving deltas.
	StreamStateComplete                     // Next() returned io.EOF.
	StreamStateError                        // Next() returned non-EOF error.
	StreamStateClosed                       // Close() called before terminal state.
)

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed to Backend.Stream().
//
// Reply() returns the text assembled so far. Behavior by stream state:
//   - StreamStateComplete: complete reply, nil error.
//   - StreamStateError: partial reply, nil error. StopReason is StopError
//     for transport/protocol failures, StopAborted for context cancellation.
//   - StreamStateStreaming: partial reply, nil error.
//   - StreamStateNew: zero-value reply, ErrStreamNotReady.
//   - StreamStateClosed: partial reply with StopReason = StopAborted.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Reply() (Reply, error)
	Close() error
}

// Backend is a strategy pattern interface for language-model services.
// Implementations receive Request by value; they must not modify the
// elements of Request.Messages.
type Backend interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Completer is implemented by backends that can return a finished response in
// one call. Block mode uses it when available and drains Stream otherwise.
type Completer interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// Model describes a model installed on a backend.
type Model struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}
