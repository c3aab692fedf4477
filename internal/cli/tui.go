package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"shieldflow/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long:  `Launch the full-screen dashboard with connection status, server list, AI assistant and settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := appInstance.RecoverSessions(ctx); err != nil {
			return err
		}
		if err := appInstance.StartBackground(ctx); err != nil {
			appInstance.Logger.Warn("failed to start history pruner", zap.Error(err))
		}

		// The scheduler fires the simulator's timers while the program runs.
		go appInstance.Scheduler.Run(ctx)

		p := tui.NewProgram(tui.Deps{
			App: appInstance,
		})
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
