package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/daemon/server"
	"github.com/rclonetray/rclonetray/internal/jobs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <bookmark>",
	Short: "Mount a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runAction(cmd, &server.ActionRequest{Bookmark: args[0], Action: server.ActionMount}, true)
		if err != nil {
			return err
		}
		fmt.Printf("%s mounted at %s\n", styleValue.Render(res.Bookmark), styleCommand.Render(res.MountPoint))
		return nil
	},
}

var unmountCmd = &cobra.Command{
	Use:     "unmount <bookmark>",
	Aliases: []string{"umount"},
	Short:   "Unmount a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleAction(cmd, args[0], server.ActionUnmount, "unmounted")
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <bookmark>",
	Short: "Upload the bookmark's local folder to the remote",
	Long: `Make the remote match the bookmark's local folder (rclone sync).
The command waits until the transfer has finished.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transferAction(cmd, args[0], server.ActionPush, "uploading", "uploaded")
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <bookmark>",
	Short: "Download the remote into the bookmark's local folder",
	Long: `Make the bookmark's local folder match the remote (rclone sync).
The command waits until the transfer has finished.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transferAction(cmd, args[0], server.ActionPull, "downloading", "downloaded")
	},
}

var autopushCmd = &cobra.Command{
	Use:   "autopush",
	Short: "Upload a bookmark's local folder on every change",
}

var autopushOnCmd = &cobra.Command{
	Use:   "on <bookmark>",
	Short: "Start watching the local folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleAction(cmd, args[0], server.ActionAutopushOn, "is uploaded on every change")
	},
}

var autopushOffCmd = &cobra.Command{
	Use:   "off <bookmark>",
	Short: "Stop watching the local folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleAction(cmd, args[0], server.ActionAutopushOff, "is no longer watched")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve <bookmark> <protocol>",
	Short: "Serve a bookmark over a network protocol",
	Long:  "Serve a bookmark through rclone. Protocols: " + strings.Join(jobs.ServeProtocols, ", ") + ".",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runAction(cmd, &server.ActionRequest{Bookmark: args[0], Action: server.ActionServe, Protocol: args[1]}, true)
		if err != nil {
			return err
		}
		fmt.Printf("%s served over %s on %s\n", styleValue.Render(res.Bookmark), args[1], styleCommand.Render(res.Addr))
		return nil
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop <bookmark> <protocol>",
	Short: "Stop serving a bookmark",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := runAction(cmd, &server.ActionRequest{Bookmark: args[0], Action: server.ActionServeStop, Protocol: args[1]}, true); err != nil {
			return err
		}
		fmt.Printf("%s no longer served over %s\n", styleValue.Render(args[0]), args[1])
		return nil
	},
}

func init() {
	autopushCmd.AddCommand(autopushOnCmd)
	autopushCmd.AddCommand(autopushOffCmd)
	serveCmd.AddCommand(serveStopCmd)
}

// actionTimeout bounds mounts and serves, which wait on rclone.
const actionTimeout = 2 * time.Minute

// runAction sends req to the tray host. Bounded calls time out after
// actionTimeout; transfers run until done or interrupted.
func runAction(cmd *cobra.Command, req *server.ActionRequest, bounded bool) (*server.ActionResult, error) {
	ctx := cmd.Context()
	if bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, actionTimeout)
		defer cancel()
	}
	var res *server.ActionResult
	err := withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
		var err error
		res, err = c.RunAction(ctx, req)
		return err
	})
	return res, err
}

func simpleAction(cmd *cobra.Command, bookmark, action, done string) error {
	if _, err := runAction(cmd, &server.ActionRequest{Bookmark: bookmark, Action: action}, true); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", styleValue.Render(bookmark), done)
	return nil
}

func transferAction(cmd *cobra.Command, bookmark, action, doing, done string) error {
	fmt.Printf("%s %s...\n", styleValue.Render(bookmark), doing)
	if _, err := runAction(cmd, &server.ActionRequest{Bookmark: bookmark, Action: action}, false); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", styleValue.Render(bookmark), styleSuccess.Render(done))
	return nil
}
