package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"shieldflow/internal/recommend"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <query...>",
	Short: "Ask the assistant which server suits a need",
	Long: `Ask the AI assistant for a server recommendation.

The query is free text, for example:
  shieldflow recommend "` + strings.Join(recommend.Presets, `"
  shieldflow recommend "`) + `"

The API key is read from the environment variable named by
recommend.api_key_env in the config file. Without a key, or when the
service fails, the default server is suggested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		query := strings.Join(args, " ")

		rec, err := appInstance.Recommend.Ask(ctx, query)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if rec.Fallback {
			fmt.Fprintln(out, "Recommendation service unavailable, suggesting the default server.")
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "  Server: %s %s (%s)\n", rec.Server.Flag, rec.Server.Location(), rec.Server.ID)
		fmt.Fprintf(out, "  Ping:   %dms, load %d%%\n", rec.Server.PingMS, rec.Server.LoadPercent)
		if rec.Reason != "" {
			fmt.Fprintf(out, "  Reason: %s\n", rec.Reason)
		}

		apply, _ := cmd.Flags().GetBool("apply")
		if apply {
			ok, err := appInstance.ApplyRecommendation(ctx, rec.Server)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(out, "\n🛡  Selected server: %s\n", rec.Server.ID)
			}
		}

		return nil
	},
}

func init() {
	recommendCmd.Flags().Bool("apply", false, "select the recommended server")

	rootCmd.AddCommand(recommendCmd)
}
