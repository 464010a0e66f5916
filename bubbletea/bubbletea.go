// Package bubbletea provides a Bubble Tea view of a relayed response. Messages
// the relay creates and edits are redrawn in place, keyed by message id.
package bubbletea

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
)

// RespondFunc relays one response into sink. It blocks until delivery ends,
// successfully or not.
type RespondFunc func(ctx context.Context, sink relay.Sink) relay.Result

// Run runs the program until the response is delivered and returns the final
// model.
func Run(m Model, opts ...tea.ProgramOption) (Model, error) {
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return m, fmt.Errorf("bubbletea: %w", err)
	}
	fm, ok := final.(Model)
	if !ok {
		return m, fmt.Errorf("bubbletea: unexpected final model %T", final)
	}
	return fm, nil
}

// MessageSentMsg reports a message created through the Sink.
type MessageSentMsg struct {
	ID      relay.MessageID
	Content string
}

// MessageEditedMsg reports a new content for a message created earlier.
type MessageEditedMsg struct {
	ID      relay.MessageID
	Content string
}

// RelayDoneMsg signals that delivery has ended.
type RelayDoneMsg struct {
	Result relay.Result
}
