// Package bookmark runs user operations on bookmarks against the daemon.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/autopush"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/models"
	"github.com/rclonetray/rclonetray/internal/mountpoint"
	"github.com/rclonetray/rclonetray/internal/notify"
	"github.com/rclonetray/rclonetray/internal/rc"
)

var (
	// ErrNoLocalPath is returned by push, pull and autopush for bookmarks
	// without a configured local directory.
	ErrNoLocalPath = errors.New("bookmark has no local path")
	// ErrUnknownBookmark is returned for names missing from the rclone config.
	ErrUnknownBookmark = errors.New("no such bookmark")
	// ErrUnsupportedProvider rejects backends that cannot stand alone.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrBookmarkExists is returned when creating over an existing remote.
	ErrBookmarkExists = errors.New("bookmark already exists")
)

// RC is the subset of the RC client the manager drives.
type RC interface {
	Providers(ctx context.Context) ([]rc.Provider, error)
	Bookmarks(ctx context.Context) ([]rc.Bookmark, error)
	Bookmark(ctx context.Context, name string) (rc.Bookmark, error)
	CreateBookmark(ctx context.Context, name, provider string, params map[string]any) error
	UpdateBookmark(ctx context.Context, name string, params map[string]any) error
	DeleteBookmark(ctx context.Context, name string) error
	SetOptions(ctx context.Context, blocks map[string]map[string]any) error
	Mount(ctx context.Context, fs, mountPoint string, opts rc.MountOptions) error
	Unmount(ctx context.Context, mountPoint string) error
	ListMounts(ctx context.Context) ([]rc.Mount, error)
	UnmountAll(ctx context.Context) error
	Sync(ctx context.Context, src, dst string) error
	ServeStart(ctx context.Context, protocol, fs string, opts rc.ServeOptions) (rc.Serve, error)
	ServeStop(ctx context.Context, id string) error
}

// Options wire a Manager to its collaborators.
type Options struct {
	RC        RC
	Registry  *jobs.Registry
	Allocator *mountpoint.Allocator
	Autopush  *autopush.Controller
	// Settings returns the current settings.
	Settings func() *models.Settings
	Notifier notify.Notifier
	Log      *logrus.Entry
}

// Manager performs mount, sync, serve and autopush operations per bookmark.
type Manager struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	mounts  map[string]*mountpoint.Assignment
	catalog []rc.Bookmark
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("bookmark")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{Entry: log}
	}
	if opts.Settings == nil {
		defaults := models.NewSettings()
		opts.Settings = func() *models.Settings { return defaults }
	}
	return &Manager{
		opts:   opts,
		log:    log,
		mounts: make(map[string]*mountpoint.Assignment),
	}
}

// Remote returns the rclone path for the bookmark: "<name>:<remote_path>".
func (m *Manager) Remote(name string) string {
	cfg := m.opts.Settings().Bookmark(name)
	return name + ":" + strings.TrimPrefix(cfg.RemotePath, "/")
}

func (m *Manager) localPath(name string) (string, error) {
	local := m.opts.Settings().Bookmark(name).LocalPath
	if local == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNoLocalPath)
	}
	return local, nil
}

// Mount mounts the bookmark at a freshly allocated mountpoint and returns it.
// Every step is rolled back on failure.
func (m *Manager) Mount(ctx context.Context, name string) (string, error) {
	h, err := m.opts.Registry.Start(name, jobs.KindMount, nil)
	if err != nil {
		return "", err
	}

	assignment, err := m.opts.Allocator.Allocate(name)
	if err != nil {
		h.Stop()
		return "", err
	}

	fs := m.Remote(name)
	if err := m.opts.RC.Mount(ctx, fs, assignment.Path, rc.MountOptions{}); err != nil {
		if relErr := assignment.Release(); relErr != nil {
			m.log.WithError(relErr).Warnf("failed to release %s", assignment.Path)
		}
		h.Stop()
		return "", err
	}

	if err := m.opts.Registry.Update(name, jobs.KindMount, jobs.MountMetadata{
		MountPoint: assignment.Path,
		Fs:         fs,
	}); err != nil {
		// Cleared by a disconnect while mounting; the daemon is gone.
		_ = assignment.Release()
		return "", err
	}

	m.mu.Lock()
	m.mounts[name] = assignment
	m.mu.Unlock()

	m.log.WithField("bookmark", name).Infof("mounted %s at %s", fs, assignment.Path)
	return assignment.Path, nil
}

// Unmount unmounts the bookmark. Unmounting an unmounted bookmark is a no-op.
func (m *Manager) Unmount(ctx context.Context, name string) error {
	job, ok := m.opts.Registry.Get(name, jobs.KindMount)
	if !ok {
		return nil
	}
	md, ok := job.Metadata.(jobs.MountMetadata)
	if !ok {
		// Mount still in progress.
		return &jobs.ConflictError{Bookmark: name, Kind: jobs.KindMount, Active: jobs.KindMount}
	}

	if err := m.opts.RC.Unmount(ctx, md.MountPoint); err != nil {
		if ce, isCmd := rc.AsCommandError(err); !isCmd || !ce.NotFound() {
			if m.stillMounted(ctx, md.MountPoint) {
				return err
			}
			m.log.WithError(err).Infof("%s is no longer mounted", md.MountPoint)
		}
	}
	m.releaseMount(name)
	m.opts.Registry.Stop(name, jobs.KindMount)
	m.log.WithField("bookmark", name).Infof("unmounted %s", md.MountPoint)
	return nil
}

// stillMounted asks the daemon whether mountPoint is mounted. It answers
// true when the daemon cannot tell.
func (m *Manager) stillMounted(ctx context.Context, mountPoint string) bool {
	mounts, err := m.opts.RC.ListMounts(ctx)
	if err != nil {
		return true
	}
	for _, mnt := range mounts {
		if mnt.MountPoint == mountPoint {
			return true
		}
	}
	return false
}

func (m *Manager) releaseMount(name string) {
	m.mu.Lock()
	a := m.mounts[name]
	delete(m.mounts, name)
	m.mu.Unlock()
	if a == nil {
		return
	}
	if err := a.Release(); err != nil {
		m.log.WithError(err).Warnf("failed to release %s", a.Path)
	}
}

// Push uploads the local directory to the remote and blocks until done.
func (m *Manager) Push(ctx context.Context, name string) error {
	local, err := m.localPath(name)
	if err != nil {
		return err
	}
	return m.sync(ctx, name, jobs.KindPush, local, m.Remote(name))
}

// Pull downloads the remote into the local directory and blocks until done.
func (m *Manager) Pull(ctx context.Context, name string) error {
	local, err := m.localPath(name)
	if err != nil {
		return err
	}
	return m.sync(ctx, name, jobs.KindPull, m.Remote(name), local)
}

func (m *Manager) sync(ctx context.Context, name string, kind jobs.Kind, src, dst string) error {
	h, err := m.opts.Registry.Start(name, kind, jobs.SyncMetadata{Src: src, Dst: dst})
	if err != nil {
		return err
	}
	defer h.Stop()

	entry := m.log.WithFields(logrus.Fields{"bookmark": name, "kind": kind})
	entry.Infof("syncing %s -> %s", src, dst)
	if err := m.opts.RC.Sync(ctx, src, dst); err != nil {
		if rc.IsCanceled(err) {
			entry.Info("sync cancelled")
		} else {
			entry.WithError(err).Error("sync failed")
		}
		return err
	}
	entry.Info("sync finished")
	return nil
}

// Serve exposes the bookmark over protocol.
func (m *Manager) Serve(ctx context.Context, name, protocol string) (rc.Serve, error) {
	kind := jobs.Serve(protocol)
	h, err := m.opts.Registry.Start(name, kind, nil)
	if err != nil {
		return rc.Serve{}, err
	}

	fs := m.Remote(name)
	serve, err := m.opts.RC.ServeStart(ctx, protocol, fs, rc.ServeOptions{})
	if err != nil {
		h.Stop()
		return rc.Serve{}, err
	}
	if err := m.opts.Registry.Update(name, kind, jobs.ServeMetadata{
		ServeID: serve.ID,
		Addr:    serve.Addr,
		Fs:      fs,
	}); err != nil {
		// Cleared by a disconnect or shutdown while starting.
		if stopErr := m.opts.RC.ServeStop(ctx, serve.ID); stopErr != nil {
			m.log.WithError(stopErr).Warnf("failed to stop orphaned %s serve %s", protocol, serve.ID)
		}
		return rc.Serve{}, err
	}
	m.log.WithField("bookmark", name).Infof("serving %s over %s on %s", fs, protocol, serve.Addr)
	return serve, nil
}

// StopServe stops serving the bookmark over protocol. A no-op when not serving.
func (m *Manager) StopServe(ctx context.Context, name, protocol string) error {
	kind := jobs.Serve(protocol)
	job, ok := m.opts.Registry.Get(name, kind)
	if !ok {
		return nil
	}
	md, ok := job.Metadata.(jobs.ServeMetadata)
	if !ok {
		return &jobs.ConflictError{Bookmark: name, Kind: kind, Active: kind}
	}
	if err := m.opts.RC.ServeStop(ctx, md.ServeID); err != nil {
		if ce, isCmd := rc.AsCommandError(err); !isCmd || !ce.NotFound() {
			return err
		}
	}
	m.opts.Registry.Stop(name, kind)
	return nil
}

// EnableAutopush starts watching the bookmark's local directory.
func (m *Manager) EnableAutopush(name string) error {
	local, err := m.localPath(name)
	if err != nil {
		return err
	}
	_, err = m.opts.Autopush.Enable(name, local, m.Remote(name))
	return err
}

// DisableAutopush stops watching. A no-op when not enabled.
func (m *Manager) DisableAutopush(name string) {
	m.opts.Autopush.Disable(name)
}

// Providers lists the backends a bookmark can be created with.
func (m *Manager) Providers(ctx context.Context) ([]rc.Provider, error) {
	return m.opts.RC.Providers(ctx)
}

// BookmarkConfig returns the remote's stored parameters.
func (m *Manager) BookmarkConfig(ctx context.Context, name string) (rc.Bookmark, error) {
	b, err := m.opts.RC.Bookmark(ctx, name)
	if err != nil {
		return rc.Bookmark{}, err
	}
	// config/get answers an empty object for unknown names.
	if b.Type == "" {
		return rc.Bookmark{}, fmt.Errorf("%w %q", ErrUnknownBookmark, name)
	}
	return b, nil
}

// CreateBookmark adds a remote to the rclone config store.
func (m *Manager) CreateBookmark(ctx context.Context, name, provider string, params map[string]any) error {
	if err := mountpoint.ValidateName(name); err != nil {
		return err
	}
	if provider == "" || !rc.Supported(provider) {
		return fmt.Errorf("%w %q", ErrUnsupportedProvider, provider)
	}
	if _, err := m.BookmarkConfig(ctx, name); err == nil {
		return fmt.Errorf("%w: %s", ErrBookmarkExists, name)
	} else if !errors.Is(err, ErrUnknownBookmark) {
		return err
	}
	if err := m.opts.RC.CreateBookmark(ctx, name, provider, params); err != nil {
		return err
	}
	m.log.WithField("bookmark", name).Infof("created %s bookmark", provider)
	_ = m.refresh(ctx)
	return nil
}

// UpdateBookmark replaces the given parameters of an existing remote.
func (m *Manager) UpdateBookmark(ctx context.Context, name string, params map[string]any) error {
	if _, err := m.BookmarkConfig(ctx, name); err != nil {
		return err
	}
	if err := m.opts.RC.UpdateBookmark(ctx, name, params); err != nil {
		return err
	}
	m.log.WithField("bookmark", name).Info("updated bookmark")
	_ = m.refresh(ctx)
	return nil
}

// DeleteBookmark removes a remote. It is refused while the bookmark has jobs.
func (m *Manager) DeleteBookmark(ctx context.Context, name string) error {
	if kinds := m.opts.Registry.Kinds(name); len(kinds) > 0 {
		return &jobs.ConflictError{Bookmark: name, Kind: "delete", Active: kinds[0]}
	}
	if _, err := m.BookmarkConfig(ctx, name); err != nil {
		return err
	}
	if err := m.opts.RC.DeleteBookmark(ctx, name); err != nil {
		return err
	}
	m.log.WithField("bookmark", name).Info("deleted bookmark")
	_ = m.refresh(ctx)
	return nil
}

// OnConnected applies the global rclone options and the per-bookmark
// auto_mount and autopush settings.
// Failures are reported through the notifier and do not stop the others.
func (m *Manager) OnConnected(ctx context.Context) {
	settings := m.opts.Settings()
	if len(settings.Rclone.Options) > 0 {
		if err := m.opts.RC.SetOptions(ctx, settings.Rclone.Options); err != nil {
			m.report("rclone", "options", err)
		}
	}
	for name, cfg := range settings.Bookmarks {
		if cfg == nil {
			continue
		}
		if cfg.AutoMount {
			if _, err := m.Mount(ctx, name); err != nil {
				m.report(name, "mount", err)
			}
		}
		if cfg.Autopush {
			if err := m.EnableAutopush(name); err != nil {
				m.report(name, "autopush", err)
			}
		}
	}
	_ = m.refresh(ctx)
}

// OnDisconnected tears down everything that depended on the daemon.
func (m *Manager) OnDisconnected() {
	stopped := m.opts.Autopush.DisableAll()

	m.mu.Lock()
	mounts := m.mounts
	m.mounts = make(map[string]*mountpoint.Assignment)
	m.mu.Unlock()
	for _, a := range mounts {
		if err := a.Release(); err != nil {
			m.log.WithError(err).Warnf("failed to release %s", a.Path)
		}
	}

	removed := m.opts.Registry.Clear()
	m.log.WithFields(logrus.Fields{
		"autopush": len(stopped),
		"jobs":     len(removed),
	}).Info("cleared bookmark state after disconnect")
}

// Shutdown stops autopush and serves and unmounts everything. The daemon
// keeps running.
func (m *Manager) Shutdown(ctx context.Context) {
	m.opts.Autopush.DisableAll()

	for name, byKind := range m.opts.Registry.ListActive() {
		for kind := range byKind {
			if kind.IsServe() {
				if err := m.StopServe(ctx, name, kind.Protocol()); err != nil {
					m.log.WithError(err).Warnf("failed to stop %s serve for %s", kind.Protocol(), name)
				}
			}
		}
	}
	if err := m.opts.RC.UnmountAll(ctx); err != nil {
		m.log.WithError(err).Warn("failed to unmount all")
	}
	m.OnDisconnected()
}

func (m *Manager) report(name, op string, err error) {
	m.log.WithError(err).WithField("bookmark", name).Errorf("%s failed", op)
	m.opts.Notifier.Notify(fmt.Sprintf("%s: %s failed", name, op), err.Error())
}
