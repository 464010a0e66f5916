package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/fwojciec/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.models(cmd)
		},
	}
}

// models prints the backend's models. A listing failure is logged and shown
// as an empty table.
func (a *app) models(cmd *cobra.Command) error {
	ctx := cmd.Context()
	backend, err := resolveBackend(ctx, a.cfg)
	if err != nil {
		return err
	}
	lister, ok := backend.(relay.ModelLister)
	if !ok {
		return fmt.Errorf("backend %q cannot list models", a.cfg.Backend)
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		a.logger.Error("list models", zap.String("backend", a.cfg.Backend), zap.Error(err))
		models = nil
	}

	t := table.New().Headers("NAME", "SIZE", "MODIFIED")
	for _, m := range models {
		t.Row(m.Name, formatSize(m.Size), formatTime(m.ModifiedAt))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}
