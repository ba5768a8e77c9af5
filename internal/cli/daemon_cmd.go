package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the rclonetray tray host",
	Long:  `Manage the tray host process that supervises rclone.`,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running && info != nil {
		fmt.Printf("Daemon is already running (PID %d, port %d).\n", info.PID, info.Port)
		return nil
	}

	// Clean up stale daemon info if it exists
	if info != nil {
		_ = config.RemoveDaemonInfo()
	}

	fmt.Print("Starting daemon...")
	if startErr := startDaemon(); startErr != nil {
		fmt.Println()
		return startErr
	}

	_, fresh, err := config.IsDaemonRunning()
	if err != nil || fresh == nil {
		fmt.Println(" started.")
		return nil
	}
	fmt.Printf(" started (PID %d, port %d).\n", fresh.PID, fresh.Port)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, _, err := config.IsDaemonRunning()
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("Daemon is not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
		st, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	})
}

func printStatus(st *server.DaemonStatus) {
	fmt.Println(styleSuccess.Render("Daemon is running."))
	fmt.Printf("  %s %s\n", label("Version:"), st.Version)
	fmt.Printf("  %s %s:%d\n", label("Control:"), st.Host, st.Port)
	fmt.Printf("  %s %d\n", label("PID:    "), st.Pid)
	if st.StartedAt != nil {
		fmt.Printf("  %s %s\n", label("Uptime: "), time.Since(st.StartedAt.AsTime()).Truncate(time.Second))
	}

	rs := st.Rclone
	fmt.Println()
	if rs == nil || !rs.Connected {
		fmt.Println(styleWarning.Render("rclone is not running."))
		return
	}
	fmt.Printf("%s %s\n", styleSuccess.Render("rclone connected"), styleHint.Render("v"+rs.Version))
	fmt.Printf("  %s %s\n", label("Binary: "), rs.Binary)
	fmt.Printf("  %s %s\n", label("RC:     "), rs.Addr)
	fmt.Printf("  %s %d\n", label("PID:    "), rs.Pid)
	if rs.Platform != "" {
		fmt.Printf("  %s %s %s\n", label("Runtime:"), rs.Platform, styleHint.Render(rs.GoVersion))
	}
	if rs.UpdateAvailable {
		fmt.Printf("  %s\n", styleUpdate.Render(fmt.Sprintf("rclone v%s is available: %s", rs.LatestVersion, rs.ReleaseURL)))
	}
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, _, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Daemon is not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	if err := withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
		return c.Shutdown(ctx)
	}); err != nil {
		return fmt.Errorf("failed to send stop request: %w", err)
	}

	// Poll for shutdown; unmounting may take a while (max 30 seconds)
	for i := 0; i < 300; i++ {
		time.Sleep(100 * time.Millisecond)
		stillRunning, _, err := config.IsDaemonRunning()
		if err == nil && !stillRunning {
			fmt.Println("Daemon stopped.")
			return nil
		}
	}

	return fmt.Errorf("daemon did not stop within timeout")
}
