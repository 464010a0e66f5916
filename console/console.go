// Package console implements a relay.Sink that prints message operations to
// a terminal instead of posting them to a chat platform. It is used to try
// backends and relay settings locally.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
	"github.com/mattn/go-runewidth"
)

// Interface compliance check.
var _ relay.Sink = (*Sink)(nil)

// Sink prints every Send and Edit as a header line followed by the message
// body. In compact mode each operation is a single truncated line.
type Sink struct {
	w       io.Writer
	theme   relay.Theme
	width   int
	compact bool

	created lipgloss.Style
	edited  lipgloss.Style
	muted   lipgloss.Style

	mu       sync.Mutex
	n        int
	order    []relay.MessageID
	contents map[relay.MessageID]string
}

// Option configures a [Sink].
type Option func(*Sink)

// WithTheme sets the colors used for headers and markdown.
func WithTheme(t relay.Theme) Option {
	return func(s *Sink) { s.theme = t }
}

// WithWidth sets the terminal width used for wrapping and truncation.
func WithWidth(w int) Option {
	return func(s *Sink) { s.width = w }
}

// WithCompact prints one line per operation instead of the rendered body.
func WithCompact(compact bool) Option {
	return func(s *Sink) { s.compact = compact }
}

// NewSink returns a Sink writing to w.
func NewSink(w io.Writer, opts ...Option) *Sink {
	s := &Sink{
		w:        w,
		theme:    relay.DefaultTheme(),
		width:    goldmark.DefaultWidth,
		contents: make(map[relay.MessageID]string),
	}
	for _, o := range opts {
		o(s)
	}
	s.created = lipgloss.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(s.theme.Created))).Bold(true)
	s.edited = lipgloss.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(s.theme.Edited)))
	s.muted = lipgloss.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(s.theme.Muted))).Faint(true)
	return s
}

// Send prints content as a new message and returns its sequential id.
func (s *Sink) Send(ctx context.Context, content string) (relay.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("console: send: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	id := relay.MessageID("m" + strconv.Itoa(s.n))
	s.order = append(s.order, id)
	s.contents[id] = content
	return id, s.print(s.created.Render("+ "+string(id)), content)
}

// Edit prints the new content of message id.
func (s *Sink) Edit(ctx context.Context, id relay.MessageID, content string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("console: edit: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[id]; !ok {
		return fmt.Errorf("console: edit: unknown message %q", id)
	}
	s.contents[id] = content
	return s.print(s.edited.Render("~ "+string(id)), content)
}

// Messages returns the latest content of every sent message, oldest first.
func (s *Sink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	for i, id := range s.order {
		out[i] = s.contents[id]
	}
	return out
}

func (s *Sink) print(header, content string) error {
	content = goldmark.Sanitize(content)
	var err error
	if s.compact {
		_, err = fmt.Fprintf(s.w, "%s %s\n", header, s.preview(content, s.width-lipgloss.Width(header)-1))
	} else {
		body := goldmark.Render(content, s.width, s.theme)
		_, err = fmt.Fprintf(s.w, "%s %s\n%s\n", header, s.muted.Render(fmt.Sprintf("(%d runes)", relay.Runes(content))), body)
	}
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

// preview flattens content to one line no wider than width cells.
func (s *Sink) preview(content string, width int) string {
	line := strings.Join(strings.Fields(content), " ")
	if width < 1 {
		width = 1
	}
	return runewidth.Truncate(line, width, "…")
}
