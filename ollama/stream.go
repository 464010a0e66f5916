package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/relay"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 1 << 20

// stream implements [relay.Stream] over an NDJSON response body.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	state   relay.StreamState
	text    strings.Builder
	reply   relay.Reply
	err     error
}

// Interface compliance check.
var _ relay.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &stream{
		body:    body,
		scanner: sc,
		ctx:     ctx,
		state:   relay.StreamStateNew,
	}
}

// Next returns the next text delta. It returns io.EOF after the chunk marked
// done.
func (s *stream) Next() (relay.Event, error) {
	switch s.state {
	case relay.StreamStateComplete:
		return nil, io.EOF
	case relay.StreamStateError:
		return nil, s.err
	case relay.StreamStateClosed:
		return nil, relay.ErrStreamClosed
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		s.state = relay.StreamStateStreaming

		var chunk apiChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			s.terminate(fmt.Errorf("ollama: failed to parse chunk: %w", err))
			return nil, s.err
		}
		if chunk.Error != "" {
			s.terminate(classifyMessage(chunk.Error))
			return nil, s.err
		}
		if chunk.Done {
			s.reply.RawStopReason = chunk.DoneReason
			s.reply.StopReason = mapStopReason(chunk.DoneReason)
			s.reply.Usage = relay.Usage{InputTokens: chunk.PromptEvalCount, OutputTokens: chunk.EvalCount}
			s.state = relay.StreamStateComplete
			if chunk.Message.Content != "" {
				s.text.WriteString(chunk.Message.Content)
				return relay.EventTextDelta{Delta: chunk.Message.Content}, nil
			}
			return nil, io.EOF
		}
		if chunk.Message.Content == "" {
			continue
		}
		s.text.WriteString(chunk.Message.Content)
		return relay.EventTextDelta{Delta: chunk.Message.Content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.terminate(fmt.Errorf("ollama: %w", err))
	} else {
		s.terminate(fmt.Errorf("ollama: unexpected end of stream"))
	}
	return nil, s.err
}

// State returns the current stream state.
func (s *stream) State() relay.StreamState {
	return s.state
}

// Reply returns the text assembled so far.
func (s *stream) Reply() (relay.Reply, error) {
	if s.state == relay.StreamStateNew {
		return relay.Reply{}, relay.ErrStreamNotReady
	}
	r := s.reply
	r.Text = s.text.String()
	return r, nil
}

// Close closes the response body.
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
	s.err = err
	if s.ctx.Err() != nil {
		s.reply.StopReason = relay.StopAborted
		s.reply.RawStopReason = "aborted"
		return
	}
	s.reply.StopReason = relay.StopError
	s.reply.RawStopReason = "error"
}
