package mock

import (
	"context"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Sink = (*Sink)(nil)

// Sink is a test double for relay.Sink.
// Set SendFn and EditFn before use.
type Sink struct {
	SendFn func(ctx context.Context, content string) (relay.MessageID, error)
	EditFn func(ctx context.Context, id relay.MessageID, content string) error
}

// Send delegates to SendFn.
func (s *Sink) Send(ctx context.Context, content string) (relay.MessageID, error) {
	return s.SendFn(ctx, content)
}

// Edit delegates to EditFn.
func (s *Sink) Edit(ctx context.Context, id relay.MessageID, content string) error {
	return s.EditFn(ctx, id, content)
}
