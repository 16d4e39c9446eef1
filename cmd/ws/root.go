package main

import (
	"fmt"

	"github.com/hpcws/ws/internal/wslog"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ws",
	Short: "Manage time-limited workspace directories on shared HPC storage",
	Long: `ws allocates, extends, lists, releases, and restores workspace
directories governed by a per-filesystem expiration and grace policy.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ws version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().StringP("config", "C", "", "configuration source (file or directory); defaults to /etc/ws.d then /etc/ws.conf")
	rootCmd.PersistentFlags().StringP("user", "u", "", "act on behalf of this user (root only)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured logs as JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "shorthand for --log-level debug")
	rootCmd.PersistentFlags().Bool("trace", false, "shorthand for --log-level debug (same as --debug)")
	_ = rootCmd.PersistentFlags().MarkHidden("trace")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(editdbCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	trace, _ := rootCmd.PersistentFlags().GetBool("trace")
	if debug || trace {
		level = "debug"
	}
	wslog.Init(wslog.Config{Level: wslog.Level(level), JSONOutput: jsonOut})
}

// buildApp resolves the shared startup context every subcommand needs,
// from the persistent --config and --user flags.
func buildApp(cmd *cobra.Command) (*app, error) {
	configSource, _ := cmd.Flags().GetString("config")
	userFlag, _ := cmd.Flags().GetString("user")
	return newApp(configSource, userFlag)
}
