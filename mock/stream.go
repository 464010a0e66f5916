package mock

import (
	"io"
	"strings"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Stream = (*Stream)(nil)

// Stream is a test double for relay.Stream.
// Set the function fields for the methods you need. NextFn and ReplyFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because code under test commonly calls
// defer stream.Close() and these methods rarely need custom behavior.
type Stream struct {
	NextFn  func() (relay.Event, error)
	StateFn func() relay.StreamState
	ReplyFn func() (relay.Reply, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (relay.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() relay.StreamState {
	if s.StateFn == nil {
		return relay.StreamStateNew
	}
	return s.StateFn()
}

// Reply delegates to ReplyFn.
func (s *Stream) Reply() (relay.Reply, error) {
	return s.ReplyFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// TextStream returns a Stream that yields one EventTextDelta per delta, then
// err (io.EOF when err is nil). Reply reports the concatenated deltas.
func TextStream(err error, deltas ...string) *Stream {
	if err == nil {
		err = io.EOF
	}
	i := 0
	state := relay.StreamStateNew
	return &Stream{
		NextFn: func() (relay.Event, error) {
			if i < len(deltas) {
				state = relay.StreamStateStreaming
				d := deltas[i]
				i++
				return relay.EventTextDelta{Delta: d}, nil
			}
			if err == io.EOF {
				state = relay.StreamStateComplete
			} else {
				state = relay.StreamStateError
			}
			return nil, err
		},
		StateFn: func() relay.StreamState { return state },
		ReplyFn: func() (relay.Reply, error) {
			stop := relay.StopEndTurn
			if state == relay.StreamStateError {
				stop = relay.StopError
			}
			return relay.Reply{Text: strings.Join(deltas[:i], ""), StopReason: stop}, nil
		},
	}
}
