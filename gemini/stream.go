package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/fwojciec/relay"
	"google.golang.org/genai"
)

// stream implements [relay.Stream] by wrapping the genai SDK's streaming
// iterator. One response chunk may carry several parts; they are queued and
// handed out one event per Next call.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	state   relay.StreamState
	pending []relay.Event
	text    strings.Builder
	reply   relay.Reply
	err     error
}

// Interface compliance check.
var _ relay.Stream = (*stream)(nil)

// NewStreamFromIter adapts a genai response iterator to [relay.Stream].
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) relay.Stream {
	next, stop := iter.Pull2(seq)
	return &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: relay.StreamStateNew,
	}
}

func (s *stream) Next() (relay.Event, error) {
	switch s.state {
	case relay.StreamStateComplete:
		return nil, io.EOF
	case relay.StreamStateError:
		return nil, s.err
	case relay.StreamStateClosed:
		return nil, relay.ErrStreamClosed
	}

	for len(s.pending) == 0 {
		if err := s.ctx.Err(); err != nil {
			s.terminate(fmt.Errorf("gemini: %w", err))
			return nil, s.err
		}
		resp, err, ok := s.pull()
		if !ok {
			s.state = relay.StreamStateComplete
			if s.reply.StopReason == "" {
				s.reply.StopReason = relay.StopEndTurn
				s.reply.RawStopReason = "end_turn"
			}
			return nil, io.EOF
		}
		s.state = relay.StreamStateStreaming
		if err != nil {
			s.terminate(classify(err))
			return nil, s.err
		}
		s.consume(resp)
	}

	evt := s.pending[0]
	s.pending = s.pending[1:]
	return evt, nil
}

// consume queues the events of one response chunk.
func (s *stream) consume(resp *genai.GenerateContentResponse) {
	applyMetadata(&s.reply, resp)
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Text == "" {
			continue
		}
		if p.Thought {
			s.pending = append(s.pending, relay.EventThinkingDelta{Delta: p.Text})
			continue
		}
		s.text.WriteString(p.Text)
		s.pending = append(s.pending, relay.EventTextDelta{Delta: p.Text})
	}
}

func (s *stream) State() relay.StreamState {
	return s.state
}

func (s *stream) Reply() (relay.Reply, error) {
	if s.state == relay.StreamStateNew {
		return relay.Reply{}, relay.ErrStreamNotReady
	}
	r := s.reply
	r.Text = s.text.String()
	return r, nil
}

func (s *stream) Close() error {
	if s.state != relay.StreamStateComplete && s.state != relay.StreamStateError {
		s.state = relay.StreamStateClosed
		s.reply.StopReason = relay.StopAborted
		s.reply.RawStopReason = "aborted"
	}
	s.stop()
	return nil
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
