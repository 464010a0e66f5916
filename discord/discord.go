// Package discord delivers relayed responses to Discord channels.
//
// [Sink] adapts a channel to [relay.Sink]; [Bot] answers messages that
// mention the bot user, keeping a bounded history per channel.
package discord

import "github.com/bwmarrin/discordgo"

// emptyContent stands in for empty text; Discord rejects empty messages.
const emptyContent = "\u200b"

// Session is the subset of *discordgo.Session used by this package.
type Session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Interface compliance check.
var _ Session = (*discordgo.Session)(nil)
