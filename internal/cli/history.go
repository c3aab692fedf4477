package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"shieldflow/internal/tui"
)

const historyTimeFormat = "2006-01-02 15:04"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := appInstance.Storage.GetSessionHistory(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to get session history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions yet.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSERVER\tPROTOCOL\tSTARTED\tDURATION")
		fmt.Fprintln(w, "--\t------\t--------\t-------\t--------")

		for _, s := range sessions {
			duration := "live"
			if s.EndedAt != nil {
				duration = tui.FormatClock(s.DurationSec)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				s.ID, s.ServerID, s.Protocol, s.StartedAt.Local().Format(historyTimeFormat), duration)
		}

		w.Flush()

		fmt.Fprintf(out, "\nTotal: %d sessions\n", len(sessions))

		return nil
	},
}

var historyRecommendationsCmd = &cobra.Command{
	Use:     "recommendations",
	Aliases: []string{"recs"},
	Short:   "Show past assistant answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := appInstance.Storage.GetRecommendationHistory(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to get recommendation history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No recommendations yet.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tQUERY\tSERVER\tREASON")
		fmt.Fprintln(w, "----\t-----\t------\t------")

		for _, r := range recs {
			reason := r.Reason
			if r.Fallback {
				reason = "(fallback) " + reason
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.CreatedAt.Local().Format(historyTimeFormat), r.Query, r.ServerID, reason)
		}

		w.Flush()

		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete history older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		retention := appInstance.Config.HistoryRetention
		if d, _ := cmd.Flags().GetDuration("older-than"); d > 0 {
			retention = d
		}
		if retention <= 0 {
			return fmt.Errorf("history retention is disabled; pass --older-than")
		}

		n, err := appInstance.Storage.PruneHistory(ctx, appInstance.Clock.Now().Add(-retention))
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "🛡  Deleted %d entries older than %s\n", n, retention.Round(time.Second))
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().IntP("limit", "n", 20, "number of entries to show")
	historyPruneCmd.Flags().Duration("older-than", 0, "override the configured retention")

	historyCmd.AddCommand(historyRecommendationsCmd)
	historyCmd.AddCommand(historyPruneCmd)

	rootCmd.AddCommand(historyCmd)
}
