package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fwojciec/relay"
	"golang.org/x/time/rate"
)

// Default edit pacing: Discord allows about five message edits per five
// seconds in a channel before it starts answering 429.
const (
	DefaultEditInterval = time.Second
	DefaultEditBurst    = 5
)

// Interface compliance check.
var _ relay.Sink = (*Sink)(nil)

// Sink sends and edits messages in one Discord channel.
type Sink struct {
	session   Session
	channelID string
	limiter   *rate.Limiter
}

// SinkOption configures a [Sink].
type SinkOption func(*Sink)

// WithEditLimiter replaces the limiter that paces edits. A nil limiter
// disables pacing.
func WithEditLimiter(l *rate.Limiter) SinkOption {
	return func(s *Sink) { s.limiter = l }
}

// NewSink returns a Sink writing to channelID.
func NewSink(session Session, channelID string, opts ...SinkOption) *Sink {
	s := &Sink{
		session:   session,
		channelID: channelID,
		limiter:   rate.NewLimiter(rate.Every(DefaultEditInterval), DefaultEditBurst),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send posts content as a new message.
func (s *Sink) Send(ctx context.Context, content string) (relay.MessageID, error) {
	msg, err := s.session.ChannelMessageSend(s.channelID, nonEmpty(content), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return relay.MessageID(msg.ID), nil
}

// Edit replaces the content of message id, waiting for the edit limiter first.
func (s *Sink) Edit(ctx context.Context, id relay.MessageID, content string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("discord: edit: %w", err)
		}
	}
	if _, err := s.session.ChannelMessageEdit(s.channelID, string(id), nonEmpty(content), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit: %w", err)
	}
	return nil
}

func nonEmpty(content string) string {
	if content == "" {
		return emptyContent
	}
	return content
}
