package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/relay"
)

// Content block types that carry reply text.
const blockText = "text"

// stream reads the Messages API event stream and keeps what a chat message
// can show. Text deltas become EventTextDelta and the reply text. Thinking is
// passed on as EventThinkingDelta. Tool input, citations and signatures are
// dropped. Block types are tracked by index, so a block announced as
// anything other than text never contributes to the reply.
type stream struct {
	ctx   context.Context
	body  io.ReadCloser
	r     *bufio.Reader
	state relay.StreamState
	kinds map[int]string // content block type by index
	text  strings.Builder
	reply relay.Reply
	err   error // terminal error, if any
}

// Interface compliance check.
var _ relay.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		ctx:   ctx,
		body:  body,
		r:     bufio.NewReader(body),
		state: relay.StreamStateNew,
		kinds: make(map[int]string),
	}
}

// frame is one server-sent event.
type frame struct {
	event string
	data  string
}

// Next returns the next text or thinking delta. Returns io.EOF after
// message_stop.
func (s *stream) Next() (relay.Event, error) {
	switch s.state {
	case relay.StreamStateComplete:
		return nil, io.EOF
	case relay.StreamStateError:
		return nil, s.err
	case relay.StreamStateClosed:
		return nil, relay.ErrStreamClosed
	}

	for {
		f, err := s.readFrame()
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		s.state = relay.StreamStateStreaming

		evt, err := s.dispatch(f)
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		if s.state == relay.StreamStateComplete {
			return nil, io.EOF
		}
		if evt != nil {
			return evt, nil
		}
	}
}

// State returns the current stream state.
func (s *stream) State() relay.StreamState {
	return s.state
}

// Reply returns the reply text received so far.
func (s *stream) Reply() (relay.Reply, error) {
	if s.state == relay.StreamStateNew {
		return relay.Reply{}, relay.ErrStreamNotReady
	}
	r := s.reply
	r.Text = s.text.String()
	return r, nil
}

// Close closes the response body. A stream closed before message_stop
// reports an aborted reply.
func (s *stream) Close() error {
	if s.state != relay.StreamStateComplete && s.state != relay.StreamStateError {
		s.state = relay.StreamStateClosed
		s.reply.StopReason = relay.StopAborted
		s.reply.RawStopReason = "aborted"
	}
	return s.body.Close()
}

func (s *stream) terminate(err error) {
	s.state = relay.StreamStateError
	s.reply.StopReason = relay.StopError
	s.reply.RawStopReason = "error"
	switch {
	case errors.Is(err, io.EOF):
		// message_stop completes the stream first, so EOF here is a cut.
		s.err = errors.New("anthropic: unexpected end of stream")
	case s.ctx.Err() != nil:
		s.err = err
		s.reply.StopReason = relay.StopAborted
		s.reply.RawStopReason = "aborted"
	default:
		s.err = err
	}
}

// readFrame reads lines up to the blank line ending an event. Comment lines
// and fields other than event and data are skipped.
func (s *stream) readFrame() (frame, error) {
	var f frame
	var data []string
	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) > 0 {
				f.data = strings.Join(data, "\n")
				return f, nil
			}
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				f.event = value
			case "data":
				data = append(data, value)
			}
		}
		if err == io.EOF {
			if len(data) > 0 {
				f.data = strings.Join(data, "\n")
				return f, nil
			}
			return frame{}, io.EOF
		}
		if err != nil {
			return frame{}, fmt.Errorf("anthropic: %w", err)
		}
	}
}

// dispatch applies one event. It returns a nil event for everything the
// relay does not show.
func (s *stream) dispatch(f frame) (relay.Event, error) {
	switch f.event {
	case "message_start":
		var evt sseMessageStart
		if err := decode(f, &evt); err != nil {
			return nil, err
		}
		s.reply.Usage.InputTokens = evt.Message.Usage.InputTokens
		return nil, nil
	case "content_block_start":
		var evt sseContentBlockStart
		if err := decode(f, &evt); err != nil {
			return nil, err
		}
		s.kinds[evt.Index] = evt.ContentBlock.Type
		if evt.ContentBlock.Type == blockText {
			return s.appendText(evt.ContentBlock.Text), nil
		}
		return nil, nil
	case "content_block_delta":
		var evt sseContentBlockDelta
		if err := decode(f, &evt); err != nil {
			return nil, err
		}
		return s.delta(evt), nil
	case "message_delta":
		var evt sseMessageDelta
		if err := decode(f, &evt); err != nil {
			return nil, err
		}
		s.reply.Usage.OutputTokens = evt.Usage.OutputTokens
		if evt.Usage.InputTokens != nil {
			s.reply.Usage.InputTokens = *evt.Usage.InputTokens
		}
		if evt.Delta.StopReason != nil {
			s.reply.RawStopReason = *evt.Delta.StopReason
			s.reply.StopReason = mapStopReason(*evt.Delta.StopReason)
		}
		return nil, nil
	case "message_stop":
		s.state = relay.StreamStateComplete
		return nil, nil
	case "error":
		var evt sseError
		if err := decode(f, &evt); err != nil {
			return nil, err
		}
		return nil, apiError(evt.Error)
	default:
		// ping, content_block_stop and event types added later.
		return nil, nil
	}
}

func (s *stream) delta(evt sseContentBlockDelta) relay.Event {
	switch evt.Delta.Type {
	case "text_delta":
		if kind, ok := s.kinds[evt.Index]; ok && kind != blockText {
			return nil
		}
		return s.appendText(evt.Delta.Text)
	case "thinking_delta":
		if evt.Delta.Thinking == "" {
			return nil
		}
		return relay.EventThinkingDelta{Delta: evt.Delta.Thinking}
	default:
		// input_json_delta, citations_delta, signature_delta.
		return nil
	}
}

// appendText records text as part of the reply. Empty text yields no event.
func (s *stream) appendText(text string) relay.Event {
	if text == "" {
		return nil
	}
	s.text.WriteString(text)
	return relay.EventTextDelta{Delta: text}
}

func decode(f frame, v any) error {
	if err := json.Unmarshal([]byte(f.data), v); err != nil {
		return fmt.Errorf("anthropic: failed to parse %s: %w", f.event, err)
	}
	return nil
}

// apiError converts an error reported by the API. An unknown model is
// classified so the channel shows the model-unavailable notice.
func apiError(d sseErrorDetail) error {
	err := fmt.Errorf("anthropic: %s: %s", d.Type, d.Message)
	if d.Type == "not_found_error" {
		return relay.Classify(relay.KindModelUnavailable, err)
	}
	return err
}

// mapStopReason maps the API's stop reasons. tool_use and pause_turn cannot
// occur for requests without tools and map to StopUnknown with the rest.
func mapStopReason(raw string) relay.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return relay.StopEndTurn
	case "max_tokens":
		return relay.StopLength
	default:
		return relay.StopUnknown
	}
}
