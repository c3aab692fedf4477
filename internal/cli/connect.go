package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage/models"
	"shieldflow/internal/tui"
	pkgerrors "shieldflow/pkg/errors"
)

var connectCmd = &cobra.Command{
	Use:   "connect [server-id]",
	Short: "Run a simulated session in the terminal",
	Long: `Connect to a server and stream the connection log until interrupted.
Without an argument the selected server is used. Press Ctrl-C, or pass
--for, to disconnect.`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completeServerIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Get the server to connect to
		var server *models.Server
		var err error
		if len(args) > 0 {
			server, err = appInstance.Storage.GetServer(ctx, args[0])
		} else {
			server, err = appInstance.SelectedServer(ctx)
		}
		if err != nil {
			return err
		}

		prefs := appInstance.Simulator.Snapshot().Preferences
		if p, _ := cmd.Flags().GetString("protocol"); p != "" {
			prefs.Protocol = models.Protocol(p)
			if !prefs.Protocol.Valid() {
				return &pkgerrors.PreferenceError{Key: "protocol", Value: p, Err: pkgerrors.ErrInvalidPreference}
			}
		}
		duration, _ := cmd.Flags().GetDuration("for")
		showTraffic, _ := cmd.Flags().GetBool("traffic")

		if err := appInstance.RecoverSessions(ctx); err != nil {
			return err
		}
		if _, err := appInstance.SelectServer(ctx, *server); err != nil {
			return err
		}

		return runSession(ctx, cmd, *server, prefs, duration, showTraffic)
	},
}

// runSession drives the scheduler and the session side by side until the
// simulator is back to Disconnected. A positive duration is counted from the
// moment the tunnel is up.
func runSession(ctx context.Context, cmd *cobra.Command, server models.Server, prefs models.Preferences, duration time.Duration, showTraffic bool) error {
	s := appInstance.Simulator
	out := cmd.OutOrStdout()

	unsubLog := s.OnLogAppended(func(e sim.LogEntry) {
		fmt.Fprintf(out, "[%s] %s\n", e.Timestamp, e.Message)
	})
	defer unsubLog()

	if showTraffic {
		unsubTraffic := s.OnTrafficSample(func(ts sim.TrafficSample) {
			fmt.Fprintf(out, "           ↓ %.1f Mb/s  ↑ %.1f Mb/s\n", ts.DownloadMbps, ts.UploadMbps)
		})
		defer unsubTraffic()
	}

	var final sim.StateChange
	done := make(chan struct{})
	var once sync.Once
	unsubState := s.OnStateChange(func(c sim.StateChange) {
		switch {
		case c.To == sim.Connected && duration > 0:
			appInstance.Scheduler.After(duration, func(time.Time) { s.Disconnect() })
		case c.From == sim.Disconnecting && c.To == sim.Disconnected:
			final = c
			once.Do(func() { close(done) })
		}
	})
	defer unsubState()

	driverCtx, stopDriver := context.WithCancel(context.Background())
	var g errgroup.Group

	g.Go(func() error {
		if err := appInstance.Scheduler.Run(driverCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer stopDriver()

		if !s.Connect(server, prefs) {
			return fmt.Errorf("cannot connect while %s", s.State().Label())
		}

		poll := appInstance.Clock.NewTicker(100 * time.Millisecond)
		defer poll.Stop()

		interrupted := ctx.Done()
		wantDisconnect := false
		for {
			select {
			case <-done:
				return nil
			case <-interrupted:
				interrupted = nil
				wantDisconnect = true
			case <-poll.Chan():
			}

			// A disconnect is only accepted once the tunnel is up.
			if wantDisconnect && s.Disconnect() {
				wantDisconnect = false
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nSession: %s on %s\n", tui.FormatClock(final.Duration), server.Location())
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show selection, preferences and the last session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		server, err := appInstance.SelectedServer(ctx)
		if err != nil {
			return err
		}
		prefs, err := appInstance.LoadPreferences(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "ShieldFlow Status")
		fmt.Fprintln(out, "═════════════════")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Server:       %s %s (%s)\n", server.Flag, server.Location(), server.ID)
		fmt.Fprintf(out, "Server IP:    %s\n", server.IP)
		fmt.Fprintf(out, "Protocol:     %s\n", prefs.Protocol)
		fmt.Fprintf(out, "Kill Switch:  %s\n", enabledLabel(prefs.KillSwitch))
		fmt.Fprintf(out, "Auto-connect: %s\n", enabledLabel(prefs.AutoConnect))

		sessions, err := appInstance.Storage.GetSessionHistory(ctx, 1)
		if err != nil {
			return err
		}
		if len(sessions) > 0 {
			last := sessions[0]
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Last session: %s via %s\n", last.ServerID, last.Protocol)
			fmt.Fprintf(out, "  Started:    %s\n", last.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "  Duration:   %s\n", tui.FormatClock(last.DurationSec))
		}

		return nil
	},
}

func enabledLabel(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	// Connect flags
	connectCmd.Flags().Duration("for", 0, "disconnect after this long (0 = until Ctrl-C)")
	connectCmd.Flags().StringP("protocol", "p", "", "protocol for this session (IKEv2/WireGuard/OpenVPN)")
	connectCmd.Flags().Bool("traffic", false, "print traffic samples")

	connectCmd.RegisterFlagCompletionFunc("protocol", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var protocols []string
		for _, p := range models.Protocols {
			protocols = append(protocols, string(p))
		}
		return protocols, cobra.ShellCompDirectiveNoFileComp
	})

	// Add to root
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
}
