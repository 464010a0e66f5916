package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fwojciec/relay"
	"go.uber.org/zap"
)

// ResetCommand, sent as the whole prompt, clears the channel's history.
const ResetCommand = "!reset"

// ResetNotice confirms a cleared history.
const ResetNotice = "Conversation history cleared."

// Bot answers channel messages that mention it.
type Bot struct {
	relay   *relay.Relay
	session Session
	store   relay.HistoryStore
	userID  string
	logger  *zap.Logger

	mode         relay.Mode
	model        string
	systemPrompt string
	sinkOpts     []SinkOption
	now          func() time.Time

	mu       sync.Mutex
	channels map[string]*sync.Mutex
}

// BotOption configures a [Bot].
type BotOption func(*Bot)

// WithMode selects stream or block delivery. Default stream.
func WithMode(m relay.Mode) BotOption {
	return func(b *Bot) { b.mode = m }
}

// WithModel sets the model requested from the backend.
func WithModel(model string) BotOption {
	return func(b *Bot) { b.model = model }
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) BotOption {
	return func(b *Bot) { b.systemPrompt = prompt }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BotOption {
	return func(b *Bot) { b.logger = l }
}

// WithSinkOptions sets options applied to every channel sink.
func WithSinkOptions(opts ...SinkOption) BotOption {
	return func(b *Bot) { b.sinkOpts = opts }
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) BotOption {
	return func(b *Bot) { b.now = now }
}

// NewBot returns a Bot for the bot user userID.
func NewBot(r *relay.Relay, session Session, store relay.HistoryStore, userID string, opts ...BotOption) *Bot {
	b := &Bot{
		relay:    r,
		session:  session,
		store:    store,
		userID:   userID,
		logger:   zap.NewNop(),
		mode:     relay.ModeStream,
		now:      time.Now,
		channels: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handler returns a discordgo event handler bound to ctx.
func (b *Bot) Handler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil {
			return
		}
		b.HandleMessage(ctx, m.Message)
	}
}

// HandleMessage answers m if it mentions the bot. Responses in one channel
// are delivered one at a time. A prompt of ResetCommand clears the channel's
// history instead.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == b.userID {
		return
	}
	if !b.mentioned(m) {
		return
	}
	prompt := b.stripMention(m.Content)
	if prompt == "" {
		return
	}

	lock := b.channelLock(m.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	log := b.logger.With(zap.String("channel", m.ChannelID), zap.String("message", m.ID))

	history, err := b.store.Load(m.ChannelID)
	if err != nil {
		log.Error("load history", zap.Error(err))
		history = relay.NewHistory(relay.DefaultHistoryCapacity)
	}
	if strings.EqualFold(prompt, ResetCommand) {
		b.reset(m.ChannelID, history, log)
		return
	}
	remember(history, relay.Message{Role: relay.RoleUser, Content: prompt, Timestamp: b.now()}, log)

	req := relay.Request{
		Model:        b.model,
		SystemPrompt: b.systemPrompt,
		Messages:     history.Items(),
	}
	sink := NewSink(b.session, m.ChannelID, b.sinkOpts...)
	res := b.relay.Respond(ctx, sink, req, b.mode)

	if res.Err != nil {
		// The failed turn is not remembered, so a retry does not repeat it.
		history.Pop()
		log.Info("response failed", zap.Stringer("kind", res.Err.Kind))
		return
	}
	remember(history, relay.Message{Role: relay.RoleAssistant, Content: res.Text, Timestamp: b.now()}, log)
	if err := b.store.Save(m.ChannelID, history); err != nil {
		log.Error("save history", zap.Error(err))
	}
}

func (b *Bot) reset(channelID string, history *relay.History, log *zap.Logger) {
	dropped := history.Len()
	history.Clear()
	if err := b.store.Save(channelID, history); err != nil {
		log.Error("save history", zap.Error(err))
		return
	}
	log.Info("history cleared", zap.Int("dropped", dropped))
	if _, err := b.session.ChannelMessageSend(channelID, ResetNotice); err != nil {
		log.Error("send reset notice", zap.Error(err))
	}
}

// remember pushes msg, noting when the oldest message falls out.
func remember(history *relay.History, msg relay.Message, log *zap.Logger) {
	if history.Full() {
		log.Debug("history full, evicting oldest message", zap.Int("kept", history.Len()))
	}
	history.Push(msg)
}

func (b *Bot) mentioned(m *discordgo.Message) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == b.userID {
			return true
		}
	}
	return strings.Contains(m.Content, "<@"+b.userID+">") || strings.Contains(m.Content, "<@!"+b.userID+">")
}

func (b *Bot) stripMention(content string) string {
	content = strings.ReplaceAll(content, "<@!"+b.userID+">", "")
	content = strings.ReplaceAll(content, "<@"+b.userID+">", "")
	return strings.TrimSpace(content)
}

func (b *Bot) channelLock(channelID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.channels[channelID]
	if !ok {
		l = &sync.Mutex{}
		b.channels[channelID] = l
	}
	return l
}
