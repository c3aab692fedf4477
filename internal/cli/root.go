package cli

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"shieldflow/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"

	// appClock drives the simulator; nil means the real clock.
	appClock clockwork.Clock
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shieldflow",
	Short: "🛡  ShieldFlow - a VPN client simulator for the terminal",
	Long: `🛡  ShieldFlow - a VPN client simulator for the terminal

  A dashboard that plays through the life of a VPN connection: status,
  server list, traffic chart, settings and an AI server assistant.
  Nothing is tunnelled; every network effect is simulated.

  Quick start:
    shieldflow tui
    shieldflow connect sg-sin-1 --for 30s
    shieldflow recommend "low ping gaming"
    shieldflow history

  Core features:
    • Connection lifecycle with simulated latency and live traffic chart
    • Server catalog with YAML import
    • Gemini-backed server recommendations with offline fallback
    • Session and recommendation history`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize app
		var err error
		appInstance, err = app.New(appOptions(cmd))
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Cleanup
		if appInstance != nil {
			err := appInstance.Close()
			appInstance = nil
			return err
		}
		return nil
	},
}

// Execute executes the root command
func Execute() {
	err := rootCmd.Execute()
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// closeApp releases appInstance when a command failed before
// PersistentPostRunE could.
func closeApp() {
	if appInstance != nil {
		appInstance.Close()
		appInstance = nil
	}
}

func appOptions(cmd *cobra.Command) app.Options {
	configFile, _ := cmd.Flags().GetString("config")
	dbFile, _ := cmd.Flags().GetString("db")
	logLevel, _ := cmd.Flags().GetString("log-level")
	return app.Options{
		ConfigFile: configFile,
		DBFile:     dbFile,
		LogLevel:   logLevel,
		Clock:      appClock,
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "database path")

	rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("🛡  ShieldFlow %s\n", version)
	},
}
