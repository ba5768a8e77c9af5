// Package host wires the rclone supervisor, bookmark manager and control
// server into the tray host.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/autopush"
	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/daemon/rclone"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/models"
	"github.com/rclonetray/rclonetray/internal/mountpoint"
	"github.com/rclonetray/rclonetray/internal/notify"
	"github.com/rclonetray/rclonetray/internal/rc"
)

// Launcher starts one rclone daemon run; rclone.Launch in production.
type Launcher func(ctx context.Context, cfg rclone.LaunchConfig, hooks rclone.Hooks, log *logrus.Entry) (*rclone.Supervisor, *rclone.PreflightResult, error)

// Default retry policy for retryable startup failures.
const (
	DefaultStartAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
	// DefaultQuitWait is how long StopRclone waits after core/quit before
	// signalling the daemon.
	DefaultQuitWait = 2 * time.Second
)

// Options configure a Host.
type Options struct {
	Settings *models.Settings
	// LoadSettings re-reads the settings before every daemon start. Optional.
	LoadSettings func() (*models.Settings, error)
	// ConfigPassword unlocks an encrypted rclone config.
	ConfigPassword string
	// ControlHost and ControlPort bind the control API.
	ControlHost string
	ControlPort int
	// MountHome overrides the parent of POSIX mount directories.
	MountHome string

	Notifier notify.Notifier
	// OnChange is called when bookmark or connection state changed.
	OnChange func()
	// Shutdown is called when a client or the tray asks the host to exit.
	Shutdown func()

	Launch        Launcher
	StartAttempts int
	RetryDelay    time.Duration
	QuitWait      time.Duration
	// CheckRelease enables the background latest-rclone check.
	CheckRelease bool
	ReleaseURL   string

	Log *logrus.Entry
}

// Host owns the daemon lifetime and everything that depends on it.
type Host struct {
	opts Options
	log  *logrus.Entry

	registry *jobs.Registry
	client   *rc.Client
	autopush *autopush.Controller
	manager  *bookmark.Manager
	server   *server.Server

	mu       sync.Mutex
	settings *models.Settings
	sup      *rclone.Supervisor
	pre      *rclone.PreflightResult
	running  rc.VersionInfo
	// gen numbers daemon runs; exited is the last run that has exited.
	gen    int
	exited int
}

// New creates a host and binds the control API. Nothing is started.
func New(opts Options) (*Host, error) {
	if opts.Settings == nil {
		opts.Settings = models.NewSettings()
	}
	opts.Settings.ApplyDefaults()
	if opts.Launch == nil {
		opts.Launch = rclone.Launch
	}
	if opts.StartAttempts <= 0 {
		opts.StartAttempts = DefaultStartAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.QuitWait <= 0 {
		opts.QuitWait = DefaultQuitWait
	}
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("host")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{Entry: log}
	}

	h := &Host{opts: opts, log: log, settings: opts.Settings, registry: jobs.NewRegistry()}

	alloc, err := mountpoint.New(mountpoint.Options{Home: opts.MountHome, Kind: opts.Settings.Mount.Kind})
	if err != nil {
		return nil, err
	}
	client := rc.New(h)
	h.client = client
	h.autopush = autopush.New(autopush.Options{
		Registry: h.registry,
		Sync:     client.Sync,
		Debounce: opts.Settings.Autopush.Debounce,
		OnError: func(name string, err error) {
			h.opts.Notifier.Notify(name+": automatic upload failed", err.Error())
		},
	})
	h.manager = bookmark.NewManager(bookmark.Options{
		RC:        client,
		Registry:  h.registry,
		Allocator: alloc,
		Autopush:  h.autopush,
		Settings:  h.Settings,
		Notifier:  opts.Notifier,
	})

	h.server, err = server.New(server.Options{
		Host:      opts.ControlHost,
		Port:      opts.ControlPort,
		Bookmarks: h.manager,
		Rclone:    h.RcloneStatus,
		OnActionError: func(name, action string, err error) {
			h.opts.Notifier.Notify(fmt.Sprintf("%s: %s failed", name, action), err.Error())
		},
		Shutdown:   opts.Shutdown,
		ReleaseURL: opts.ReleaseURL,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Server returns the control server.
func (h *Host) Server() *server.Server { return h.server }

// Manager returns the bookmark manager.
func (h *Host) Manager() *bookmark.Manager { return h.manager }

// Registry returns the job registry.
func (h *Host) Registry() *jobs.Registry { return h.registry }

// Settings returns the settings in effect.
func (h *Host) Settings() *models.Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}

// Endpoint implements rc.Source against the current daemon run.
func (h *Host) Endpoint() (addr, user, password string, ok bool) {
	h.mu.Lock()
	sup := h.sup
	h.mu.Unlock()
	if sup == nil {
		return "", "", "", false
	}
	return sup.Endpoint()
}

// Connected reports whether the daemon is up.
func (h *Host) Connected() bool {
	_, _, _, ok := h.Endpoint()
	return ok
}

// RcloneStatus describes the daemon for the control API.
func (h *Host) RcloneStatus() server.RcloneStatus {
	h.mu.Lock()
	sup, pre, running := h.sup, h.pre, h.running
	h.mu.Unlock()

	var st server.RcloneStatus
	if pre != nil {
		st.Binary = pre.Binary
		st.Version = pre.Version.String()
	}
	if sup != nil {
		cs := sup.State()
		st.Connected = cs.Connected
		st.Addr = cs.ServerAddress
		st.Pid = int32(cs.PID)
		if running.OS != "" {
			st.Platform = running.OS + "/" + running.Arch
		}
		st.GoVersion = running.GoVersion
	}
	return st
}

// Start launches the daemon, retrying retryable failures, and applies the
// per-bookmark startup settings once it is connected.
func (h *Host) Start(ctx context.Context) error {
	h.reloadSettings()
	settings := h.Settings()
	cfg := rclone.LaunchConfig{
		Binary:         settings.Rclone.Binary,
		ConfigFile:     settings.Rclone.ConfigFile,
		ConfigPassword: h.opts.ConfigPassword,
		RCAddr:         settings.Rclone.RCAddr,
		JSONLog:        settings.Rclone.JSONLog,
		LogLevel:       settings.Rclone.LogLevel,
		ExtraArgs:      settings.Rclone.ExtraArgs,
		StopGrace:      settings.Supervisor.StopGrace,
		ReadyTimeout:   settings.Supervisor.ReadyTimeout,
	}

	var err error
	for attempt := 1; attempt <= h.opts.StartAttempts; attempt++ {
		if err = h.launch(ctx, cfg); err == nil {
			return nil
		}
		if rclone.IsInvalidPassword(err) {
			h.opts.Notifier.Notify("Wrong rclone config password", "The rclone configuration could not be decrypted.")
			return err
		}
		var se *rclone.StartupError
		if !errors.As(err, &se) || !se.Retryable() || attempt == h.opts.StartAttempts {
			break
		}
		h.log.WithError(err).Warnf("rclone failed to start (attempt %d/%d), retrying", attempt, h.opts.StartAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.opts.RetryDelay):
		}
	}
	h.opts.Notifier.Notify("rclone failed to start", err.Error())
	return err
}

func (h *Host) reloadSettings() {
	if h.opts.LoadSettings == nil {
		return
	}
	s, err := h.opts.LoadSettings()
	if err != nil {
		h.log.WithError(err).Warn("failed to reload settings, keeping the current ones")
		return
	}
	h.mu.Lock()
	h.settings = s
	h.mu.Unlock()
}

func (h *Host) launch(ctx context.Context, cfg rclone.LaunchConfig) error {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	sup, pre, err := h.opts.Launch(ctx, cfg, rclone.Hooks{
		OnExit: func(info rclone.ExitInfo) { h.handleExit(gen, info) },
	}, logging.NewLogger("rclone"))

	h.mu.Lock()
	if pre != nil {
		h.pre = pre
	}
	if err == nil && gen == h.gen && gen != h.exited {
		h.sup = sup
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}

	running, verr := h.client.Version(ctx)
	if verr != nil {
		h.log.WithError(verr).Debug("core/version failed")
	}
	h.mu.Lock()
	h.running = running
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"pid": sup.PID(), "platform": running.OS + "/" + running.Arch}).
		Infof("rclone %s connected", h.RcloneStatus().Version)
	h.manager.OnConnected(ctx)
	if h.opts.CheckRelease && pre != nil {
		h.server.CheckRcloneRelease(ctx, pre.Version)
	}
	h.changed()
	return nil
}

// handleExit runs on the supervisor's event goroutine.
func (h *Host) handleExit(gen int, info rclone.ExitInfo) {
	h.mu.Lock()
	h.exited = gen
	current := gen == h.gen
	if current {
		h.sup = nil
	}
	h.mu.Unlock()

	if !current || info.Requested || !info.WasConnected {
		return
	}
	h.log.WithError(info.Err).Error("rclone exited unexpectedly")
	h.manager.OnDisconnected()
	h.opts.Notifier.Notify("rclone disconnected", "Mounts, transfers and automatic uploads were stopped.")
	h.changed()
}

// StopRclone unmounts everything and stops the daemon. The control API
// keeps running.
func (h *Host) StopRclone(ctx context.Context) {
	h.mu.Lock()
	sup := h.sup
	h.mu.Unlock()
	if sup == nil {
		return
	}
	h.manager.Shutdown(ctx)
	// Not holding mu: OnExit takes it before Quit returns.
	sup.Quit(func() error {
		qctx, cancel := context.WithTimeout(ctx, h.opts.QuitWait)
		defer cancel()
		return h.client.Quit(qctx)
	}, h.opts.QuitWait)
	h.changed()
}

// Restart stops the daemon, when running, and starts a fresh one.
func (h *Host) Restart(ctx context.Context) error {
	h.StopRclone(ctx)
	return h.Start(ctx)
}

// Close stops the daemon and the control API.
func (h *Host) Close(ctx context.Context) {
	h.StopRclone(ctx)
	h.server.Stop()
}

func (h *Host) changed() {
	if h.opts.OnChange != nil {
		h.opts.OnChange()
	}
}

// TrayState adapts the host to the tray.
func (h *Host) TrayState() *TrayState {
	return &TrayState{TrayState: server.NewTrayState(h.server), host: h}
}

// TrayState is the tray's view of the host.
type TrayState struct {
	*server.TrayState
	host *Host
}

// RestartRclone restarts the daemon in the background.
func (t *TrayState) RestartRclone() {
	go func() {
		if err := t.host.Restart(context.Background()); err != nil {
			t.host.log.WithError(err).Error("rclone restart failed")
		}
	}()
}
