package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"shieldflow/internal/app"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
)

// ensureApp lazily initializes appInstance for shell completion.
// Cobra may invoke ValidArgsFunction without running PersistentPreRunE.
func ensureApp(cmd *cobra.Command) error {
	if appInstance != nil {
		return nil
	}
	var err error
	appInstance, err = app.New(appOptions(cmd))
	return err
}

// completeServerIDs provides shell completion for server ids.
func completeServerIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if err := ensureApp(cmd); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	ctx := context.Background()
	servers, err := appInstance.Storage.GetAllServers(ctx, storage.ServerFilter{})
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var completions []string
	for _, s := range servers {
		if strings.HasPrefix(strings.ToLower(s.ID), strings.ToLower(toComplete)) {
			completions = append(completions, s.ID+"\t"+s.Location())
		}
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeSettingKeys provides completion for settings keys.
func completeSettingKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return completeSettingValues(cmd, args, toComplete)
	}
	return settingKeys, cobra.ShellCompDirectiveNoFileComp
}

// completeSettingValues completes the value of `settings set <key>`.
func completeSettingValues(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 1 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	switch args[0] {
	case storage.SettingProtocol:
		var protocols []string
		for _, p := range models.Protocols {
			protocols = append(protocols, string(p))
		}
		return protocols, cobra.ShellCompDirectiveNoFileComp
	case storage.SettingKillSwitch, storage.SettingAutoConnect:
		return []string{"true", "false"}, cobra.ShellCompDirectiveNoFileComp
	case storage.SettingSelectedServer:
		return completeServerIDs(cmd, nil, toComplete)
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completionScripts writes the completion script for each supported shell.
var completionScripts = map[string]func(w io.Writer) error{
	"bash": func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
	"zsh":  rootCmd.GenZshCompletion,
	"fish": func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion script",
	Long: `Print a completion script. Server ids, setting keys and protocols
complete from the local database.

  $ source <(shieldflow completion bash)
  $ shieldflow completion zsh > "${fpath[1]}/_shieldflow"
  $ shieldflow completion fish > ~/.config/fish/completions/shieldflow.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, ok := completionScripts[args[0]]
		if !ok {
			return fmt.Errorf("unsupported shell %q", args[0])
		}
		return gen(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
