// Package main is the entry point for the rclonetrayd tray host.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/host"
	"github.com/rclonetray/rclonetray/internal/daemon/tray"
	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/models"
	"github.com/rclonetray/rclonetray/internal/notify"
)

// configPassEnv carries the rclone config password to the host without
// putting it on the command line.
const configPassEnv = "RCLONETRAY_CONFIG_PASS"

// shutdownTimeout bounds unmounting on exit.
const shutdownTimeout = 30 * time.Second

var log = logging.NewLogger("rclonetrayd")

func main() {
	// Parse flags
	foreground := flag.Bool("foreground", false, "Run in foreground (no system tray)")
	port := flag.Int("port", 0, "Control API port (0 for dynamic allocation)")
	flag.Parse()

	// Ensure global directory exists
	if err := config.EnsureGlobalDir(); err != nil {
		log.Fatalf("Failed to create global directory: %v", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	setupLogging(settings, *foreground)
	defer logging.Close()

	// Check if daemon is already running
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon already running on port %d (PID %d)", info.Port, info.PID)
	}

	var quitOnce sync.Once
	quit := make(chan struct{})
	requestQuit := func() {
		quitOnce.Do(func() {
			if *foreground {
				close(quit)
			} else {
				tray.Quit()
			}
		})
	}

	var notifier notify.Notifier = notify.Log{Entry: log}
	onChange := func() {}
	if !*foreground {
		notifier = notify.NewDesktop("rclonetray")
		onChange = tray.Refresh
	}

	h, err := host.New(host.Options{
		Settings:       settings,
		LoadSettings:   config.LoadSettings,
		ConfigPassword: os.Getenv(configPassEnv),
		ControlPort:    *port,
		Notifier:       notifier,
		OnChange:       onChange,
		Shutdown:       requestQuit,
		CheckRelease:   true,
	})
	if err != nil {
		log.Fatalf("Failed to create host: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := func() {
		srv := h.Server()
		if err := config.SaveDaemonInfo(models.NewDaemonInfo(srv.Host(), srv.Port(), os.Getpid())); err != nil {
			log.Fatalf("Failed to write daemon info: %v", err)
		}
		log.WithFields(logrus.Fields{"port": srv.Port(), "pid": os.Getpid()}).Info("daemon started")

		// Serve gRPC in background
		go func() {
			if err := srv.Serve(); err != nil {
				log.WithError(err).Error("server error")
				requestQuit()
			}
		}()

		// Handle OS signals
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Infof("received signal %v, shutting down", sig)
			requestQuit()
		}()

		go func() {
			if err := h.Start(ctx); err != nil {
				log.WithError(err).Error("rclone is not running")
			}
		}()
	}

	stop := func() {
		cancel()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		h.Close(shutdownCtx)

		if err := config.RemoveDaemonInfo(); err != nil {
			log.WithError(err).Warn("failed to remove daemon info")
		}
		log.Info("daemon stopped")
	}

	if *foreground {
		log.Info("running in foreground mode (no system tray)")
		start()
		<-quit
		stop()
		return
	}

	// systray.Run must occupy the main goroutine on macOS (Cocoa requirement).
	id, changes := h.Registry().Subscribe()
	defer h.Registry().Unsubscribe(id)
	tray.Run(h.TrayState(), func() {
		start()
		go tray.Watch(ctx, changes)
	}, stop)
}

func setupLogging(settings *models.Settings, foreground bool) {
	logFile, err := config.GlobalLogFile()
	if err != nil {
		log.WithError(err).Warn("no log file, logging to stderr only")
	}
	if err := logging.Setup(logging.Options{
		Level:      settings.Log.Level,
		File:       logFile,
		MaxSizeMB:  settings.Log.MaxSizeMB,
		MaxBackups: settings.Log.MaxBackups,
		MaxAgeDays: settings.Log.MaxAgeDays,
		Stderr:     foreground,
	}); err != nil {
		log.WithError(err).Warn("failed to set up log file")
	}
}
