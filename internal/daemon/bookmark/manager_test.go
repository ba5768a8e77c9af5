package bookmark

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/autopush"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/models"
	"github.com/rclonetray/rclonetray/internal/mountpoint"
	"github.com/rclonetray/rclonetray/internal/notify"
	"github.com/rclonetray/rclonetray/internal/rc"
	"github.com/rclonetray/rclonetray/internal/rc/rctest"
)

type fixture struct {
	srv      *rctest.Server
	reg      *jobs.Registry
	ap       *autopush.Controller
	mgr      *Manager
	home     string
	settings *models.Settings
	notes    *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := rctest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddRemote("docs", "drive")
	srv.AddRemote("photos", "s3")

	home := t.TempDir()
	alloc, err := mountpoint.New(mountpoint.Options{Home: home, Log: logging.Discard()})
	require.NoError(t, err)

	client := rc.New(srv.Source(), rc.WithLogger(logging.Discard()))
	reg := jobs.NewRegistry()
	ap := autopush.New(autopush.Options{
		Registry: reg,
		Sync:     client.Sync,
		Debounce: time.Hour,
		Log:      logging.Discard(),
	})
	t.Cleanup(func() { ap.DisableAll() })

	settings := models.NewSettings()
	settings.Bookmarks["docs"] = &models.BookmarkConfig{LocalPath: t.TempDir(), RemotePath: "/backup"}

	notes := &notify.Recorder{}
	mgr := NewManager(Options{
		RC:        client,
		Registry:  reg,
		Allocator: alloc,
		Autopush:  ap,
		Settings:  func() *models.Settings { return settings },
		Notifier:  notes,
		Log:       logging.Discard(),
	})
	return &fixture{srv: srv, reg: reg, ap: ap, mgr: mgr, home: home, settings: settings, notes: notes}
}

func TestMountAndUnmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.home, "volume.docs.rclone"), path)
	assert.Equal(t, map[string]string{path: "docs:backup"}, f.srv.Mounts())

	job, ok := f.reg.Get("docs", jobs.KindMount)
	require.True(t, ok)
	assert.Equal(t, path, job.Metadata.(jobs.MountMetadata).MountPoint)

	_, err = f.mgr.Mount(ctx, "docs")
	var conflict *jobs.ConflictError
	assert.ErrorAs(t, err, &conflict)

	require.NoError(t, f.mgr.Unmount(ctx, "docs"))
	assert.Empty(t, f.srv.Mounts())
	assert.NoDirExists(t, path)
	assert.Empty(t, f.reg.Kinds("docs"))

	require.NoError(t, f.mgr.Unmount(ctx, "docs"))
}

func TestMountFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail("mount/mount", "fuse not available")

	_, err := f.mgr.Mount(context.Background(), "docs")
	ce, ok := rc.AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "fuse not available", ce.Message)
	assert.Equal(t, "mount/mount", ce.Command)

	assert.Empty(t, f.reg.Kinds("docs"))
	assert.NoDirExists(t, filepath.Join(f.home, "volume.docs.rclone"))
}

func TestUnmountFailureKeepsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)

	f.srv.Fail("mount/unmount", "device busy")
	assert.Error(t, f.mgr.Unmount(ctx, "docs"))
	_, ok := f.reg.Get("docs", jobs.KindMount)
	assert.True(t, ok)
}

func TestUnmountReleasesVanishedMount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)

	// The mount went away behind the daemon's back.
	require.NoError(t, f.srv.Client().UnmountAll(ctx))
	f.srv.Fail("mount/unmount", "mount point not found")

	require.NoError(t, f.mgr.Unmount(ctx, "docs"))
	assert.Empty(t, f.reg.Kinds("docs"))
	assert.NoDirExists(t, path)
	assert.Len(t, f.srv.Calls("mount/listmounts"), 1)
}

func TestPushAndPull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.settings.Bookmarks["docs"].LocalPath

	require.NoError(t, f.mgr.Push(ctx, "docs"))
	require.NoError(t, f.mgr.Pull(ctx, "docs"))

	calls := f.srv.Calls("sync/sync")
	require.Len(t, calls, 2)
	assert.Equal(t, local, calls[0].Payload["srcFs"])
	assert.Equal(t, "docs:backup", calls[0].Payload["dstFs"])
	assert.Equal(t, "docs:backup", calls[1].Payload["srcFs"])
	assert.Equal(t, local, calls[1].Payload["dstFs"])
	assert.Empty(t, f.reg.Kinds("docs"))
}

func TestPullRefusedWhilePushing(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.srv.OnSync = func(src, dst string) error {
		close(started)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- f.mgr.Push(context.Background(), "docs") }()
	<-started

	err := f.mgr.Pull(context.Background(), "docs")
	var conflict *jobs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Cannot perform downloading and uploading at the same time", err.Error())

	close(release)
	require.NoError(t, <-done)
}

func TestPushRequiresLocalPath(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.Push(context.Background(), "photos")
	assert.ErrorIs(t, err, ErrNoLocalPath)
	assert.ErrorIs(t, f.mgr.EnableAutopush("photos"), ErrNoLocalPath)
}

func TestServeAndStopServe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	serve, err := f.mgr.Serve(ctx, "docs", "webdav")
	require.NoError(t, err)
	assert.NotEmpty(t, serve.ID)
	assert.Equal(t, 1, f.srv.Serves())

	// Mount and serve may coexist.
	_, err = f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)

	states, err := f.mgr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "docs", states[0].Name)
	assert.True(t, states[0].Mounted)
	assert.Equal(t, []ServeState{{Protocol: "webdav", Addr: "127.0.0.1:8080"}}, states[0].Serves)
	assert.False(t, states[1].Busy())

	require.NoError(t, f.mgr.StopServe(ctx, "docs", "webdav"))
	assert.Zero(t, f.srv.Serves())
	require.NoError(t, f.mgr.StopServe(ctx, "docs", "webdav"))
}

// clearingRC drops every job once serve/start returns, like a disconnect
// landing mid-call.
type clearingRC struct {
	RC
	reg *jobs.Registry
}

func (c clearingRC) ServeStart(ctx context.Context, protocol, fs string, opts rc.ServeOptions) (rc.Serve, error) {
	serve, err := c.RC.ServeStart(ctx, protocol, fs, opts)
	c.reg.Clear()
	return serve, err
}

func TestServeStopsOrphanWhenJobCleared(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(Options{
		RC:        clearingRC{RC: rc.New(f.srv.Source(), rc.WithLogger(logging.Discard())), reg: f.reg},
		Registry:  f.reg,
		Allocator: f.mgr.opts.Allocator,
		Autopush:  f.ap,
		Settings:  func() *models.Settings { return f.settings },
		Log:       logging.Discard(),
	})

	_, err := mgr.Serve(context.Background(), "docs", "webdav")
	require.Error(t, err)
	assert.Zero(t, f.srv.Serves())
	assert.Len(t, f.srv.Calls("serve/stop"), 1)
	assert.Empty(t, f.reg.Kinds("docs"))
}

func TestServeRejectsUnknownProtocol(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Serve(context.Background(), "docs", "gopher")
	assert.ErrorIs(t, err, jobs.ErrInvalidKind)
	assert.Empty(t, f.srv.Calls("serve/start"))
}

func TestDeleteBookmarkRefusedWhileBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)

	err = f.mgr.DeleteBookmark(ctx, "docs")
	var conflict *jobs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, jobs.KindMount, conflict.Active)

	require.NoError(t, f.mgr.Unmount(ctx, "docs"))
	require.NoError(t, f.mgr.DeleteBookmark(ctx, "docs"))
	states, err := f.mgr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "photos", states[0].Name)
}

func TestCreateBookmark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.CreateBookmark(ctx, "mydrive", "drive", map[string]any{}))

	states, err := f.mgr.Snapshot(ctx)
	require.NoError(t, err)
	var names []string
	for _, s := range states {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "mydrive")
}

func TestCreateBookmarkValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.mgr.CreateBookmark(ctx, "disk", "local", nil), ErrUnsupportedProvider)
	assert.ErrorIs(t, f.mgr.CreateBookmark(ctx, "x", "", nil), ErrUnsupportedProvider)
	assert.ErrorIs(t, f.mgr.CreateBookmark(ctx, "bad:name", "drive", nil), mountpoint.ErrInvalidBookmark)
	assert.ErrorIs(t, f.mgr.CreateBookmark(ctx, "docs", "drive", nil), ErrBookmarkExists)
	assert.Empty(t, f.srv.Calls("config/create"))
}

func TestBookmarkConfigAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.BookmarkConfig(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownBookmark)
	assert.ErrorIs(t, f.mgr.UpdateBookmark(ctx, "missing", map[string]any{"a": "b"}), ErrUnknownBookmark)
	assert.ErrorIs(t, f.mgr.DeleteBookmark(ctx, "missing"), ErrUnknownBookmark)

	require.NoError(t, f.mgr.UpdateBookmark(ctx, "docs", map[string]any{"scope": "drive.file"}))
	b, err := f.mgr.BookmarkConfig(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "drive", b.Type)
	assert.Equal(t, "drive.file", b.Params["scope"])
}

func TestProvidersFiltered(t *testing.T) {
	f := newFixture(t)
	providers, err := f.mgr.Providers(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, providers)
	for _, p := range providers {
		assert.True(t, rc.Supported(p.Prefix), p.Prefix)
	}
}

func TestSnapshotKeepsLastListOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Snapshot(ctx)
	require.NoError(t, err)

	f.srv.Fail("config/dump", "daemon busy")
	states, err := f.mgr.Snapshot(ctx)
	assert.Error(t, err)
	assert.Len(t, states, 2)
}

func TestOnConnectedAppliesSettings(t *testing.T) {
	f := newFixture(t)
	f.settings.Bookmarks["docs"].AutoMount = true
	f.settings.Bookmarks["docs"].Autopush = true
	f.settings.Bookmarks["photos"] = &models.BookmarkConfig{Autopush: true}

	f.mgr.OnConnected(context.Background())

	assert.Len(t, f.srv.Mounts(), 1)
	_, ok := f.reg.Get("docs", jobs.KindAutopush)
	assert.True(t, ok)
	require.Len(t, f.notes.All(), 1)
	assert.Equal(t, "photos: autopush failed", f.notes.All()[0].Title)
}

func TestOnConnectedSetsOptions(t *testing.T) {
	f := newFixture(t)
	f.settings.Rclone.Options = map[string]map[string]any{"vfs": {"CacheMode": "full"}}

	f.mgr.OnConnected(context.Background())

	assert.Equal(t, "full", f.srv.Options("vfs")["CacheMode"])
	assert.Empty(t, f.notes.All())
}

func TestOnDisconnectedCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, f.mgr.EnableAutopush("docs"))
	_, err = f.mgr.Serve(ctx, "photos", "http")
	require.NoError(t, err)

	f.mgr.OnDisconnected()

	assert.Empty(t, f.reg.ListActive())
	assert.NoDirExists(t, path)
}

func TestShutdownUnmountsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Mount(ctx, "docs")
	require.NoError(t, err)
	_, err = f.mgr.Serve(ctx, "docs", "ftp")
	require.NoError(t, err)

	f.mgr.Shutdown(ctx)

	assert.Empty(t, f.srv.Mounts())
	assert.Zero(t, f.srv.Serves())
	assert.Empty(t, f.reg.ListActive())
	assert.Len(t, f.srv.Calls("mount/unmountall"), 1)
}

func TestNotStartedSurfaces(t *testing.T) {
	reg := jobs.NewRegistry()
	alloc, err := mountpoint.New(mountpoint.Options{Home: t.TempDir(), Log: logging.Discard()})
	require.NoError(t, err)
	mgr := NewManager(Options{
		RC:        rc.New(rc.StaticSource{}, rc.WithLogger(logging.Discard())),
		Registry:  reg,
		Allocator: alloc,
		Autopush:  autopush.New(autopush.Options{Registry: reg, Log: logging.Discard()}),
		Log:       logging.Discard(),
	})

	_, err = mgr.Mount(context.Background(), "docs")
	assert.True(t, errors.Is(err, rc.ErrNotStarted))
	assert.Empty(t, reg.Kinds("docs"))
}
