package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/rclone"
	"github.com/rclonetray/rclonetray/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change rclonetray settings",
	Long: `Show or change ~/.rclonetray/settings.yaml.

Changes take effect the next time the tray host starts rclone
(use "Restart rclone" in the tray menu).`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings in effect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings()
		if err != nil {
			return err
		}
		path, err := config.GlobalSettingsFile()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		fmt.Println(styleHint.Render("# " + path))
		fmt.Print(string(data))
		return nil
	},
}

var settingsSetBinaryCmd = &cobra.Command{
	Use:   "set-binary <path>",
	Short: "Use a specific rclone binary",
	Long:  `Use a specific rclone binary. Pass "" to go back to rclone on PATH.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		binary := args[0]
		if binary != "" {
			pre, err := rclone.Preflight(context.Background(), binary)
			if err != nil {
				return err
			}
			binary = pre.Binary
			fmt.Printf("%s rclone %s\n", check(true), styleVersion.Render("v"+pre.Version.String()))
		}
		if _, err := config.UpdateSettings(func(s *models.Settings) error {
			s.Rclone.Binary = binary
			return nil
		}); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Println("Settings updated.")
		return nil
	},
}

var bookmarkFlags struct {
	localPath  string
	remotePath string
	autoMount  bool
	autopush   bool
}

var settingsBookmarkCmd = &cobra.Command{
	Use:   "bookmark <name>",
	Short: "Set per-bookmark options",
	Example: `  rclonetray settings bookmark docs --local-path ~/Documents --remote-path /backup
  rclonetray settings bookmark docs --auto-mount --autopush`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()
		settings, err := config.UpdateSettings(func(s *models.Settings) error {
			cfg := s.Bookmarks[name]
			if cfg == nil {
				cfg = &models.BookmarkConfig{}
				s.Bookmarks[name] = cfg
			}
			if flags.Changed("local-path") {
				cfg.LocalPath = bookmarkFlags.localPath
			}
			if flags.Changed("remote-path") {
				cfg.RemotePath = bookmarkFlags.remotePath
			}
			if flags.Changed("auto-mount") {
				cfg.AutoMount = bookmarkFlags.autoMount
			}
			if flags.Changed("autopush") {
				cfg.Autopush = bookmarkFlags.autopush
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		cfg := settings.Bookmark(name)
		fmt.Printf("%s\n", styleValue.Render(name))
		fmt.Printf("  %s %s\n", label("local path: "), cfg.LocalPath)
		fmt.Printf("  %s %s\n", label("remote path:"), cfg.RemotePath)
		fmt.Printf("  %s %t\n", label("auto mount: "), cfg.AutoMount)
		fmt.Printf("  %s %t\n", label("autopush:   "), cfg.Autopush)
		return nil
	},
}

func init() {
	f := settingsBookmarkCmd.Flags()
	f.StringVar(&bookmarkFlags.localPath, "local-path", "", "Local folder used by push, pull and autopush")
	f.StringVar(&bookmarkFlags.remotePath, "remote-path", "", "Path inside the remote")
	f.BoolVar(&bookmarkFlags.autoMount, "auto-mount", false, "Mount when rclone starts")
	f.BoolVar(&bookmarkFlags.autopush, "autopush", false, "Enable autopush when rclone starts")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetBinaryCmd)
	settingsCmd.AddCommand(settingsBookmarkCmd)
}
