package bubbletea

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
)

var _ tea.Model = Model{}

// opBuffer bounds how far the relay may run ahead of rendering.
const opBuffer = 256

// Model shows the messages of one relayed response, redrawing each message
// whenever the relay edits it. It quits when delivery ends.
type Model struct {
	run    RespondFunc
	theme  relay.Theme
	styles Styles
	width  int

	spinner spinner.Model
	blocks  []*messageBlock
	byID    map[relay.MessageID]*messageBlock

	ctx    context.Context
	cancel context.CancelFunc
	sink   *Sink
	opCh   chan tea.Msg
	doneCh chan relay.Result

	running     bool
	interrupted bool
	result      relay.Result
}

// New creates a Model that runs run when the program starts. Cancelling ctx,
// or pressing Ctrl+C, cancels the response; the model keeps running until the
// relay has written its failure notice.
func New(ctx context.Context, run RespondFunc, theme relay.Theme) Model {
	ctx, cancel := context.WithCancel(ctx)
	styles := NewStyles(theme)
	opCh := make(chan tea.Msg, opBuffer)
	return Model{
		run:     run,
		theme:   theme,
		styles:  styles,
		width:   goldmark.DefaultWidth,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(styles.Spinner)),
		byID:    make(map[relay.MessageID]*messageBlock),
		ctx:     ctx,
		cancel:  cancel,
		sink:    NewSink(opCh),
		opCh:    opCh,
		doneCh:  make(chan relay.Result, 1),
		running: true,
	}
}

// Running reports whether delivery is still in progress.
func (m Model) Running() bool { return m.running }

// Interrupted reports whether the user cancelled the response.
func (m Model) Interrupted() bool { return m.interrupted }

// Result returns the delivery result once the model stopped running.
func (m Model) Result() relay.Result { return m.result }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		startRelay(m.ctx, m.run, m.sink, m.opCh, m.doneCh),
		listenForOp(m.opCh, m.doneCh),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if !m.running {
				return m, tea.Quit
			}
			m.interrupted = true
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case MessageSentMsg:
		b := &messageBlock{id: msg.ID, content: msg.Content}
		m.blocks = append(m.blocks, b)
		m.byID[msg.ID] = b
		return m, listenForOp(m.opCh, m.doneCh)

	case MessageEditedMsg:
		if b, ok := m.byID[msg.ID]; ok {
			b.edit(msg.Content)
		}
		return m, listenForOp(m.opCh, m.doneCh)

	case RelayDoneMsg:
		m.running = false
		m.result = msg.Result
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	spin := m.spinner.View()
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		// Only the newest message can still be a placeholder.
		pending := m.running && block.edits == 0 && i == len(m.blocks)-1
		b.WriteString(block.view(m.width, pending, spin, m.theme, m.styles))
	}
	if len(m.blocks) > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.running && m.interrupted:
		return m.styles.Muted.Render("Stopping...")
	case m.running:
		return m.styles.Muted.Render("Generating... Ctrl+C to stop")
	case m.result.Err != nil:
		return m.styles.Error.Render(fmt.Sprintf("Failed (%s) after %d message(s)", m.result.Err.Kind, len(m.result.Messages)))
	default:
		return m.styles.Muted.Render(fmt.Sprintf("Done: %d message(s), %d runes", len(m.result.Messages), relay.Runes(m.result.Text)))
	}
}

// startRelay runs the response in the command goroutine, closing opCh once
// the relay has made its last Send or Edit.
func startRelay(ctx context.Context, run RespondFunc, sink relay.Sink, opCh chan<- tea.Msg, doneCh chan<- relay.Result) tea.Cmd {
	return func() tea.Msg {
		res := run(ctx, sink)
		close(opCh)
		doneCh <- res
		return nil
	}
}

// listenForOp waits for the next sink operation. When the channel closes it
// reads the result from doneCh and returns RelayDoneMsg.
func listenForOp(ch <-chan tea.Msg, doneCh <-chan relay.Result) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return RelayDoneMsg{Result: <-doneCh}
		}
		return msg
	}
}
