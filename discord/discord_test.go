package discord_test

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// call is one request observed by fakeSession.
type call struct {
	Op        string // "send" or "edit"
	ChannelID string
	MessageID string
	Content   string
}

// fakeSession records channel message requests.
type fakeSession struct {
	mu      sync.Mutex
	calls   []call
	n       int
	sendErr error
	editErr error
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.n++
	id := fmt.Sprintf("msg-%d", f.n)
	f.calls = append(f.calls, call{"send", channelID, id, content})
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.calls = append(f.calls, call{"edit", channelID, messageID, content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}
