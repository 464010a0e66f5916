package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	bt "github.com/fwojciec/relay/bubbletea"
	"github.com/fwojciec/relay/console"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	mode    string
	plain   bool
	compact bool
	width   int
}

func newChatCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Relay one prompt and show its messages in the terminal",
		Long: `Relay one prompt through the configured backend and show every
message the relay creates, redrawn in place as it is edited. Ctrl+C stops
the response and leaves the failure notice in place.

With --plain or --compact every operation is printed as a new line
instead, which suits pipes and logs. The prompt is read from stdin when no
arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "", "Delivery mode: stream or block (default from config)")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Print every operation with its rendered message")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "Print one truncated line per operation")
	cmd.Flags().IntVar(&f.width, "width", 0, "Terminal width used by --plain")
	return cmd
}

func (a *app) chat(cmd *cobra.Command, args []string, f chatFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if f.mode != "" {
		cfg.Mode = f.mode
	}
	mode, err := cfg.mode()
	if err != nil {
		return err
	}
	opts, err := cfg.relayOptions()
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	fromStdin := prompt == ""
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("empty prompt")
	}

	backend, err := resolveBackend(ctx, cfg)
	if err != nil {
		return err
	}
	r := relay.New(backend, append(opts, relay.WithLogger(a.logger.Named("relay")))...)

	req := relay.Request{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Messages:     []relay.Message{{Role: relay.RoleUser, Content: prompt}},
	}
	respond := func(ctx context.Context, sink relay.Sink) relay.Result {
		return r.Respond(ctx, sink, req, mode)
	}

	var res relay.Result
	if f.plain || f.compact {
		sinkOpts := []console.Option{console.WithCompact(f.compact)}
		if f.width > 0 {
			sinkOpts = append(sinkOpts, console.WithWidth(f.width))
		}
		res = respond(ctx, console.NewSink(cmd.OutOrStdout(), sinkOpts...))
	} else {
		// The prompt consumed stdin, so keys cannot be read from it.
		in := cmd.InOrStdin()
		if fromStdin {
			in = nil
		}
		final, err := bt.Run(bt.New(ctx, respond, relay.DefaultTheme()),
			tea.WithInput(in),
			tea.WithOutput(cmd.OutOrStdout()),
			tea.WithoutSignalHandler(),
		)
		if err != nil {
			return err
		}
		res = final.Result()
	}
	if res.Err != nil {
		return fmt.Errorf("chat: %w", res.Err)
	}
	return nil
}
