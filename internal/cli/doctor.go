package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/rclone"
	"github.com/rclonetray/rclonetray/internal/version"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the rclone installation",
	Long: `Check that rclone can be found and is recent enough, show where its
configuration lives and whether a newer release is available.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip the latest release check")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pre, err := rclone.Preflight(ctx, settings.Rclone.Binary)
	if err != nil {
		fmt.Printf("%s %s\n", check(false), err)
		if hint := preflightHint(err); hint != "" {
			fmt.Printf("  %s\n", styleHint.Render(hint))
		}
		return errors.New("rclone is not usable")
	}

	fmt.Printf("%s rclone %s %s\n", check(true), styleVersion.Render("v"+pre.Version.String()), styleHint.Render(pre.Binary))
	fmt.Printf("%s version is at least v%s\n", check(true), rclone.MinimumVersion)
	if pre.Version.AtLeast(rclone.ServeMinimumVersion) {
		fmt.Printf("%s serve is available\n", check(true))
	} else {
		fmt.Printf("%s serve needs v%s or newer\n", styleWarning.Render("!"), rclone.ServeMinimumVersion)
	}

	configFile := pre.ConfigFile
	if settings.Rclone.ConfigFile != "" {
		configFile = settings.Rclone.ConfigFile
	}
	switch {
	case configFile == "":
		fmt.Printf("%s rclone did not report a config file\n", styleWarning.Render("!"))
	case config.FileExists(configFile):
		fmt.Printf("%s config %s\n", check(true), configFile)
	default:
		fmt.Printf("%s config %s does not exist yet (create remotes with `rclone config`)\n", styleWarning.Render("!"), configFile)
	}

	if running, info, err := config.IsDaemonRunning(); err == nil && running {
		fmt.Printf("%s tray host running (PID %d)\n", check(true), info.PID)
	} else {
		fmt.Printf("%s tray host not running\n", styleHint.Render("-"))
	}

	if doctorOffline {
		return nil
	}
	result, err := version.CheckLatestRclone(ctx, nil, version.RcloneReleasesURL, pre.Version)
	if err != nil {
		fmt.Printf("%s latest release check failed: %v\n", styleWarning.Render("!"), err)
		return nil
	}
	if result.Available {
		fmt.Printf("%s %s\n", styleUpdate.Render("↑"), styleUpdate.Render(fmt.Sprintf("rclone v%s is available: %s", result.LatestVersion, result.ReleaseURL)))
	} else {
		fmt.Printf("%s rclone is up to date\n", check(true))
	}
	return nil
}

func preflightHint(err error) string {
	var se *rclone.StartupError
	if !errors.As(err, &se) {
		return ""
	}
	switch se.Reason {
	case rclone.ReasonBinaryMissing:
		return "Install rclone (https://rclone.org/install/) or run `rclonetray settings set-binary <path>`."
	case rclone.ReasonVersionTooOld:
		return "Upgrade rclone with `rclone selfupdate` or your package manager."
	case rclone.ReasonVersionUnknown:
		return "The configured binary does not look like rclone."
	}
	return ""
}
