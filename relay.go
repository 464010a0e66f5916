package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults for the relay limits. The block-mode chunk length sits below the
// platform's hard message limit; both are kept as separate settings.
const (
	DefaultChunkLength    = 1900
	DefaultHardLimit      = 2000
	DefaultMinEditLength  = 5
	DefaultReleaseTimeout = 5 * time.Second

	DefaultPlaceholder         = "Generating Response . . ."
	DefaultRolloverPlaceholder = "Creating new stream block..."
)

// Mode selects how a response is delivered.
type Mode int

const (
	ModeStream Mode = iota // Live edits driven by text deltas.
	ModeBlock              // One finished text, chunked after the fact.
)

func (m Mode) String() string {
	if m == ModeBlock {
		return "block"
	}
	return "stream"
}

// Relay delivers backend responses into a Sink.
type Relay struct {
	backend Backend
	logger  *zap.Logger
	length  LenFunc

	chunkLength    int
	hardLimit      int
	minEditLength  int
	releaseTimeout time.Duration

	placeholder         string
	rolloverPlaceholder string
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithChunkLength sets the block-mode segment length. Default 1900.
func WithChunkLength(n int) Option {
	return func(r *Relay) { r.chunkLength = n }
}

// WithHardLimit sets the per-message limit that triggers a new stream block.
// Default 2000.
func WithHardLimit(n int) Option {
	return func(r *Relay) { r.hardLimit = n }
}

// WithMinEditLength sets how long accumulated text must be before a stream
// edit is issued. Default 5.
func WithMinEditLength(n int) Option {
	return func(r *Relay) { r.minEditLength = n }
}

// WithLenFunc sets the unit limits are measured in. Default Runes.
func WithLenFunc(f LenFunc) Option {
	return func(r *Relay) { r.length = f }
}

// WithPlaceholders sets the texts of the initial and rollover placeholders.
func WithPlaceholders(initial, rollover string) Option {
	return func(r *Relay) {
		r.placeholder = initial
		r.rolloverPlaceholder = rollover
	}
}

// WithReleaseTimeout bounds the final edit made after the caller's context
// is cancelled. Default 5s.
func WithReleaseTimeout(d time.Duration) Option {
	return func(r *Relay) { r.releaseTimeout = d }
}

// New creates a Relay that generates text with backend.
func New(backend Backend, opts ...Option) *Relay {
	r := &Relay{
		backend:             backend,
		logger:              zap.NewNop(),
		length:              Runes,
		chunkLength:         DefaultChunkLength,
		hardLimit:           DefaultHardLimit,
		minEditLength:       DefaultMinEditLength,
		releaseTimeout:      DefaultReleaseTimeout,
		placeholder:         DefaultPlaceholder,
		rolloverPlaceholder: DefaultRolloverPlaceholder,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Result is the outcome of one relayed response. Failures are already
// visible in the channel when Respond returns; Err is informational.
type Result struct {
	Text     string      // Response text received so far, unsegmented.
	Messages []MessageID // Messages created, in creation order.
	Err      *Error      // Non-nil when delivery ended in the failure state.
}

// Respond delivers the response to req into sink using mode.
func (r *Relay) Respond(ctx context.Context, sink Sink, req Request, mode Mode) Result {
	if mode == ModeBlock {
		return r.Block(ctx, sink, req)
	}
	return r.Stream(ctx, sink, req)
}

// delivery is the state of one response.
type delivery struct {
	relay *Relay
	sink  Sink
	log   *zap.Logger
	block MessageID // Message a failure notice is written to.
	res   Result
}

func (r *Relay) begin(sink Sink, req Request, mode Mode) *delivery {
	return &delivery{
		relay: r,
		sink:  sink,
		log: r.logger.With(
			zap.String("response", uuid.NewString()),
			zap.String("model", req.Model),
			zap.Stringer("mode", mode),
		),
	}
}

// send creates a message and records it.
func (d *delivery) send(ctx context.Context, content string) (MessageID, error) {
	id, err := d.sink.Send(ctx, content)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrEmptyPlaceholder
	}
	d.res.Messages = append(d.res.Messages, id)
	return id, nil
}

// fail normalizes err and writes the notice into the open placeholder. A
// cancelled context is replaced by a detached one bounded by the release
// timeout so the placeholder is not left spinning.
func (d *delivery) fail(ctx context.Context, err error) Result {
	e := Normalize(err)
	d.res.Err = e
	d.log.Warn("response generation failed",
		zap.Stringer("kind", e.Kind),
		zap.String("raw", e.Raw),
		zap.Error(err))
	if d.block == "" {
		return d.res
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d.relay.releaseTimeout)
		defer cancel()
	}
	if editErr := d.sink.Edit(ctx, d.block, e.Notice()); editErr != nil {
		d.log.Error("write failure notice", zap.Error(editErr))
	}
	return d.res
}

// Stream relays req in streaming mode: a placeholder is edited as deltas
// arrive, and a new message is started whenever the next delta would push
// the open one past the hard limit.
func (r *Relay) Stream(ctx context.Context, sink Sink, req Request) Result {
	d := r.begin(sink, req, ModeStream)

	id, err := d.send(ctx, r.placeholder)
	if err != nil {
		return d.fail(ctx, err)
	}
	d.block = id

	if err := req.Validate(); err != nil {
		return d.fail(ctx, err)
	}
	stream, err := r.backend.Stream(ctx, req)
	if err != nil {
		return d.fail(ctx, err)
	}
	defer stream.Close()

	var full strings.Builder
	var result, written string
	for {
		if err := ctx.Err(); err != nil {
			d.res.Text = full.String()
			return d.fail(ctx, err)
		}
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			d.res.Text = full.String()
			return d.fail(ctx, err)
		}
		delta, ok := evt.(EventTextDelta)
		if !ok || delta.Delta == "" {
			continue
		}
		full.WriteString(delta.Delta)

		// An empty block takes the delta whatever its size; rolling over
		// would leave the placeholder behind unwritten.
		if result != "" && r.length(result+delta.Delta) > r.hardLimit {
			// Commit what the guard held back before leaving the block.
			if result != written {
				if err := sink.Edit(ctx, d.block, result); err != nil {
					d.res.Text = full.String()
					return d.fail(ctx, err)
				}
			}
			id, err := d.send(ctx, r.rolloverPlaceholder)
			if err != nil {
				d.res.Text = full.String()
				return d.fail(ctx, err)
			}
			d.block = id
			result, written = delta.Delta, ""
			d.log.Debug("stream block rollover", zap.Int("blocks", len(d.res.Messages)))
		} else {
			result += delta.Delta
		}

		if r.length(result) > r.minEditLength {
			if err := sink.Edit(ctx, d.block, result); err != nil {
				d.res.Text = full.String()
				return d.fail(ctx, err)
			}
			written = result
		}
	}
	d.res.Text = full.String()

	// Short replies never pass the edit guard; write what is left once.
	if result != "" && result != written {
		if err := sink.Edit(ctx, d.block, result); err != nil {
			return d.fail(ctx, err)
		}
	}

	if reply, err := stream.Reply(); err == nil {
		d.log.Debug("stream complete",
			zap.String("stop_reason", string(reply.StopReason)),
			zap.Int("input_tokens", reply.Usage.InputTokens),
			zap.Int("output_tokens", reply.Usage.OutputTokens),
			zap.Int("blocks", len(d.res.Messages)))
	}
	return d.res
}

// Block relays req in block mode: the finished text is split into segments,
// the first replaces the placeholder and the rest follow as new messages.
func (r *Relay) Block(ctx context.Context, sink Sink, req Request) Result {
	d := r.begin(sink, req, ModeBlock)

	id, err := d.send(ctx, r.placeholder)
	if err != nil {
		return d.fail(ctx, err)
	}
	d.block = id

	if err := req.Validate(); err != nil {
		return d.fail(ctx, err)
	}
	reply, err := r.complete(ctx, req)
	d.res.Text = reply.Text
	if err != nil {
		return d.fail(ctx, err)
	}

	segments := SplitFunc(reply.Text, r.chunkLength, r.length)
	first := ""
	if len(segments) > 0 {
		first = segments[0]
	}
	if err := sink.Edit(ctx, d.block, first); err != nil {
		return d.fail(ctx, err)
	}
	for _, seg := range segments[min(1, len(segments)):] {
		if err := ctx.Err(); err != nil {
			return d.fail(ctx, err)
		}
		if _, err := d.send(ctx, seg); err != nil {
			return d.fail(ctx, err)
		}
	}

	d.log.Debug("block complete",
		zap.Int("segments", len(segments)),
		zap.String("stop_reason", string(reply.StopReason)),
		zap.Int("input_tokens", reply.Usage.InputTokens),
		zap.Int("output_tokens", reply.Usage.OutputTokens))
	return d.res
}

// complete returns the finished reply, using the backend's Completer when it
// has one and draining a stream otherwise.
func (r *Relay) complete(ctx context.Context, req Request) (Reply, error) {
	if c, ok := r.backend.(Completer); ok {
		return c.Complete(ctx, req)
	}
	stream, err := r.backend.Stream(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	defer stream.Close()
	return Drain(stream)
}

// Drain consumes stream to the end and returns the assembled reply. On error
// the reply holds the text received before the failure.
func Drain(stream Stream) (Reply, error) {
	var text strings.Builder
	for {
		evt, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Reply{Text: text.String(), StopReason: StopError}, err
		}
		if delta, ok := evt.(EventTextDelta); ok {
			text.WriteString(delta.Delta)
		}
	}
	reply, err := stream.Reply()
	if err != nil {
		// A stream that ended before producing anything has no reply to report.
		return Reply{Text: text.String(), StopReason: StopEndTurn}, nil
	}
	reply.Text = text.String()
	return reply, nil
}
