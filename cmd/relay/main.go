// Command relay relays language-model responses into Discord channels.
//
// Usage:
//
//	relay serve              answer mentions in Discord
//	relay chat [prompt]      relay one prompt to the terminal
//	relay models             list the backend's installed models
//
// Configuration is read from relay.toml (or --config). DISCORD_TOKEN,
// OLLAMA_HOST, GEMINI_API_KEY and ANTHROPIC_API_KEY override the file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Env vars are read here and passed as values.
	env := environment{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		OllamaHost:      os.Getenv("OLLAMA_HOST"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}
	if err := newRootCmd(env).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	env        environment
	configPath string
	verbose    bool
	cfg        config
	logger     *zap.Logger

	// newLogger builds the logger; tests replace it.
	newLogger func(verbose bool) (*zap.Logger, error)
}

func newRootCmd(env environment) *cobra.Command {
	a := &app{env: env, newLogger: productionLogger}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay language-model responses into chat channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "Path to the TOML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newServeCmd(a), newChatCmd(a), newModelsCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"), a.env)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, err := a.newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

func productionLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}
