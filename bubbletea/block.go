package bubbletea

import (
	"fmt"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
)

// messageBlock is one chat message as last written by the relay.
type messageBlock struct {
	id      relay.MessageID
	content string
	edits   int
}

func (b *messageBlock) edit(content string) {
	b.content = content
	b.edits++
}

func (b *messageBlock) failed() bool {
	return strings.HasPrefix(b.content, relay.FailureHeadline)
}

// view renders the block at width. A pending block is a placeholder still
// waiting for text; it is drawn muted behind spin, the current spinner frame.
func (b *messageBlock) view(width int, pending bool, spin string, theme relay.Theme, st Styles) string {
	header := st.Created.Render(string(b.id))
	if b.edits > 0 {
		header += " " + st.Edited.Render(fmt.Sprintf("edited %d×", b.edits))
	}
	header += " " + st.Muted.Render(fmt.Sprintf("%d runes", relay.Runes(b.content)))

	var body string
	switch {
	case pending:
		body = spin + " " + st.Muted.Render(goldmark.Sanitize(b.content))
	case b.content == "":
		body = st.Muted.Render("(empty)")
	case b.failed():
		body = st.Error.Render("✗") + " " + goldmark.Render(b.content, width-2, theme)
	default:
		// A fence left open mid-stream runs to the end of the message.
		body = goldmark.Render(b.content, width, theme)
	}
	return header + "\n" + body
}
