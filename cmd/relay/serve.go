package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/discord"
	"github.com/fwojciec/relay/json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and answer messages that mention the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if cfg.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN not set (use the environment or [discord] token)")
	}
	mode, err := cfg.mode()
	if err != nil {
		return err
	}
	opts, err := cfg.relayOptions()
	if err != nil {
		return err
	}
	backend, err := resolveBackend(ctx, cfg)
	if err != nil {
		return err
	}
	r := relay.New(backend, append(opts, relay.WithLogger(a.logger.Named("relay")))...)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open: %w", err)
	}
	defer session.Close()
	if session.State == nil || session.State.User == nil {
		return fmt.Errorf("discord: session has no bot user")
	}

	bot := discord.NewBot(r, session, json.NewStore(cfg.History.Dir, cfg.History.Capacity), session.State.User.ID,
		discord.WithMode(mode),
		discord.WithModel(cfg.Model),
		discord.WithSystemPrompt(cfg.SystemPrompt),
		discord.WithLogger(a.logger.Named("bot")),
		discord.WithSinkOptions(discord.WithEditLimiter(cfg.editLimiter())),
	)
	remove := session.AddHandler(bot.Handler(ctx))
	defer remove()

	a.logger.Info("relay connected",
		zap.String("user", session.State.User.Username),
		zap.String("backend", cfg.Backend),
		zap.Stringer("mode", mode))
	<-ctx.Done()
	a.logger.Info("relay shutting down")
	return nil
}
