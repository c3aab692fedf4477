package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"shieldflow/internal/catalog"
	"shieldflow/internal/storage"
)

var serversCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"server"},
	Short:   "Browse and manage the server catalog",
}

var serversListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List servers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Build filter
		filter := storage.ServerFilter{}
		if cmd.Flags().Changed("premium") {
			premium, _ := cmd.Flags().GetBool("premium")
			filter.Premium = &premium
		}
		filter.Feature, _ = cmd.Flags().GetString("feature")
		if len(args) > 0 {
			filter.SearchTerm = args[0]
		}

		servers, err := appInstance.Storage.GetAllServers(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to get servers: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(servers) == 0 {
			fmt.Fprintln(out, "No servers found.")
			return nil
		}

		selected := ""
		if s, err := appInstance.SelectedServer(ctx); err == nil {
			selected = s.ID
		}

		// Print table
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tLOCATION\tIP\tLOAD\tPING\tPREMIUM\tFEATURES")
		fmt.Fprintln(w, " \t--\t--------\t--\t----\t----\t-------\t--------")

		for _, s := range servers {
			marker := " "
			if s.ID == selected {
				marker = "●"
			}

			premium := "✗"
			if s.Premium {
				premium = "✓"
			}

			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%d%%\t%dms\t%s\t%s\n",
				marker, s.ID, s.Flag, s.Location(), s.IP, s.LoadPercent, s.PingMS, premium, strings.Join(s.Features, ", "))
		}

		w.Flush()

		fmt.Fprintf(out, "\nTotal: %d servers\n", len(servers))

		return nil
	},
}

var serversShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show server details",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeServerIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := appInstance.Storage.GetServer(context.Background(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", s.Flag, s.Location())
		fmt.Fprintf(out, "  ID:       %s\n", s.ID)
		fmt.Fprintf(out, "  IP:       %s\n", s.IP)
		fmt.Fprintf(out, "  Load:     %d%%\n", s.LoadPercent)
		fmt.Fprintf(out, "  Ping:     %dms\n", s.PingMS)
		fmt.Fprintf(out, "  Premium:  %v\n", s.Premium)
		if len(s.Features) > 0 {
			fmt.Fprintf(out, "  Features: %s\n", strings.Join(s.Features, ", "))
		}
		return nil
	},
}

var serversSelectCmd = &cobra.Command{
	Use:               "select <id>",
	Short:             "Select the server used by connect and the TUI",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeServerIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.SetSetting(context.Background(), storage.SettingSelectedServer, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🛡  Selected server: %s\n", args[0])
		return nil
	},
}

var serversImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace the catalog with servers from a YAML file",
	Long: `Replace the server catalog with the servers listed in a YAML file:

  servers:
    - id: de-fra-1
      country: Germany
      city: Frankfurt
      flag: 🇩🇪
      ip: 45.83.12.9
      load_percent: 31
      ping_ms: 28
      premium: false
      features: [P2P]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := catalog.ParseFile(args[0])
		if err != nil {
			return err
		}

		if err := catalog.Import(context.Background(), appInstance.Storage, servers); err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "🛡  Imported %d servers\n", len(servers))
		return nil
	},
}

func init() {
	// List flags
	serversListCmd.Flags().Bool("premium", false, "only premium (or, with =false, only free) servers")
	serversListCmd.Flags().StringP("feature", "f", "", "only servers with this feature (e.g. Streaming, P2P)")

	// Add subcommands
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversShowCmd)
	serversCmd.AddCommand(serversSelectCmd)
	serversCmd.AddCommand(serversImportCmd)

	rootCmd.AddCommand(serversCmd)
}
