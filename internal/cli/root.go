// Package cli implements the rclonetray CLI commands.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rclonetray",
	Short: "Mount, sync and serve rclone remotes from the tray",
	Long: `rclonetray supervises a local rclone daemon and exposes its remotes
("bookmarks") through the system tray. This CLI talks to the running tray host.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add subcommands (alphabetical)
	rootCmd.AddCommand(autopushCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(unmountCmd)
	rootCmd.AddCommand(versionCmd)
}
