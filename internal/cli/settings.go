package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"shieldflow/internal/storage"
)

// settingKeys are the keys accepted by `settings set`, in display order.
var settingKeys = []string{
	storage.SettingProtocol,
	storage.SettingKillSwitch,
	storage.SettingAutoConnect,
	storage.SettingSelectedServer,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change preferences",
	RunE:  listSettings,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE:  listSettings,
}

func listSettings(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	prefs, err := appInstance.LoadPreferences(ctx)
	if err != nil {
		return err
	}
	server, err := appInstance.SelectedServer(ctx)
	if err != nil {
		return err
	}

	values := map[string]string{
		storage.SettingProtocol:       string(prefs.Protocol),
		storage.SettingKillSwitch:     fmt.Sprint(prefs.KillSwitch),
		storage.SettingAutoConnect:    fmt.Sprint(prefs.AutoConnect),
		storage.SettingSelectedServer: server.ID,
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, key := range settingKeys {
		fmt.Fprintf(w, "%s\t%s\n", key, values[key])
	}
	return w.Flush()
}

var settingsGetCmd = &cobra.Command{
	Use:               "get <key>",
	Short:             "Print one setting",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSettingKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := appInstance.Storage.GetSetting(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:               "set <key> <value>",
	Short:             "Change one setting",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeSettingKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.SetSetting(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🛡  %s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	rootCmd.AddCommand(settingsCmd)
}
