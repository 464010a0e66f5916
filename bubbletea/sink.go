package bubbletea

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Sink = (*Sink)(nil)

// Sink turns Send and Edit calls into Bubble Tea messages on a channel. Ids
// are sequential: m1, m2, ...
type Sink struct {
	ops chan<- tea.Msg

	mu    sync.Mutex
	n     int
	known map[relay.MessageID]bool
}

// NewSink returns a Sink that delivers to ops.
func NewSink(ops chan<- tea.Msg) *Sink {
	return &Sink{ops: ops, known: make(map[relay.MessageID]bool)}
}

// Send emits a MessageSentMsg for a new message.
func (s *Sink) Send(ctx context.Context, content string) (relay.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("bubbletea: send: %w", err)
	}
	s.mu.Lock()
	s.n++
	id := relay.MessageID("m" + strconv.Itoa(s.n))
	s.known[id] = true
	s.mu.Unlock()

	if err := s.push(ctx, MessageSentMsg{ID: id, Content: content}); err != nil {
		return "", fmt.Errorf("bubbletea: send: %w", err)
	}
	return id, nil
}

// Edit emits a MessageEditedMsg for message id.
func (s *Sink) Edit(ctx context.Context, id relay.MessageID, content string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bubbletea: edit: %w", err)
	}
	s.mu.Lock()
	ok := s.known[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bubbletea: edit: unknown message %q", id)
	}

	if err := s.push(ctx, MessageEditedMsg{ID: id, Content: content}); err != nil {
		return fmt.Errorf("bubbletea: edit: %w", err)
	}
	return nil
}

// push blocks until the view has room for msg or ctx ends.
func (s *Sink) push(ctx context.Context, msg tea.Msg) error {
	select {
	case s.ops <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
